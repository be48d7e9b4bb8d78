package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/stressoor/pkg/config"
	"github.com/ethpandaops/stressoor/pkg/indexstore"
	"github.com/ethpandaops/stressoor/pkg/render"
	"github.com/ethpandaops/stressoor/pkg/server"
	"github.com/ethpandaops/stressoor/pkg/summary"
)

var serveCmd = &cobra.Command{
	Use:   "serve FOLDER",
	Short: "Serve live summaries of a results folder over HTTP",
	Long: `Serve the summary of FOLDER in every output format. Each request rescans
the folder, so new runs show up without restarting.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", "", "listen address (overrides server.listen)")
	f.Bool("devices", false, "extract device callback statistics")
	f.Bool("issues", false, "extract issues found in dmesg logs")
	f.Bool("index", false, "store every scan in the index database")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()

	if f.Changed("listen") {
		cfg.Server.Listen, _ = f.GetString("listen")
	}

	if f.Changed("devices") {
		cfg.Summary.Devices, _ = f.GetBool("devices")
	}

	if f.Changed("issues") {
		cfg.Summary.Issues, _ = f.GetBool("issues")
	}

	if v, _ := f.GetBool("index"); v {
		cfg.Index.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	opts := server.Options{
		Root: args[0],
		Parse: summary.ParseOptions{
			Devices: cfg.Summary.Devices,
			Issues:  cfg.Summary.Issues,
		},
		Render: serveRenderOptions(cfg),
	}

	if cfg.Index.Enabled {
		store := indexstore.NewStore(log, &cfg.Index.Database)
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("starting index store: %w", err)
		}

		defer func() {
			if err := store.Stop(); err != nil {
				log.WithError(err).Warn("Failed to close index store")
			}
		}()

		opts.Index = store
	}

	srv := server.NewServer(log, &cfg.Server, opts)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}

	return nil
}

// serveRenderOptions links report files through the server's /files
// route unless the config names an external url prefix.
func serveRenderOptions(c *config.Config) render.Options {
	prefix := c.Summary.URLPrefix
	if prefix == "" {
		prefix = server.FilesPrefix
	}

	return render.Options{
		Devices:   c.Summary.Devices,
		Issues:    c.Summary.Issues,
		URLPrefix: prefix,
	}
}
