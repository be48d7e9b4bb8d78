package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/stressoor/pkg/indexstore"
)

var errNoIndex = errors.New("index database is not enabled (set index.enabled or STRESSOOR_INDEX_ENABLED)")

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Query the index of summarized runs",
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed runs",
	Args:  cobra.NoArgs,
	RunE:  runIndexList,
}

func init() {
	indexListCmd.Flags().String("kernel", "", "only list runs of this kernel")

	indexCmd.AddCommand(indexListCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexList(cmd *cobra.Command, _ []string) error {
	if !cfg.Index.Enabled {
		return errNoIndex
	}

	if err := cfg.Index.Database.Validate(); err != nil {
		return fmt.Errorf("validating index config: %w", err)
	}

	ctx := cmd.Context()
	kernel, _ := cmd.Flags().GetString("kernel")

	store := indexstore.NewStore(log, &cfg.Index.Database)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close index store")
		}
	}()

	runs, err := store.ListRuns(ctx, kernel)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KERNEL\tHOST\tMODE\tSTARTED\tTESTS\tPASS\tFAIL\tHANG\tCRASH\tFILE")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Kernel, r.Host, r.Mode, r.Date, r.Time,
			r.Tests, r.Pass, r.Fail, r.Hang, r.Crash, r.File)
	}

	return w.Flush()
}
