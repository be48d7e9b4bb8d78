package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/stressoor/pkg/config"
	"github.com/ethpandaops/stressoor/pkg/fsutil"
	"github.com/ethpandaops/stressoor/pkg/gsheet"
	"github.com/ethpandaops/stressoor/pkg/indexstore"
	"github.com/ethpandaops/stressoor/pkg/mail"
	"github.com/ethpandaops/stressoor/pkg/render"
	"github.com/ethpandaops/stressoor/pkg/summary"
	"github.com/ethpandaops/stressoor/pkg/upload"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize FOLDER",
	Short: "Summarize every summary.html below a folder",
	Long: `Scan FOLDER recursively for sleepgraph summary.html files and render one
summary of all runs found. The report is written to --output when given,
mailed when --mail is given, and printed to stdout otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	defineSummarizeFlags(summarizeCmd)
	rootCmd.AddCommand(summarizeCmd)
}

func defineSummarizeFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.String("format", config.DefaultFormat,
		"output format ("+formatNames()+")")
	f.Bool("html", false, "shorthand for --format html")
	f.Bool("sheet", false, "shorthand for --format sheet (implies --gdrive)")
	f.Bool("devices", false, "extract device callback statistics")
	f.Bool("issues", false, "extract issues found in dmesg logs")
	f.Bool("gdrive", false, "link runs to their Google Drive spreadsheets")
	f.StringSlice("mail", nil, "mail the report: server,sender,receiver[;receiver...]")
	f.String("subject", "", "mail subject")
	f.String("url-prefix", "", "url prefix replacing the folder in report links")
	f.String("output", "", "write the report to this file")
	f.String("outsum", config.DefaultSummaryPath, "Google Drive path template of kernel summaries")
	f.String("out", config.DefaultTestPath, "Google Drive path template of single runs")
	f.Bool("upload", false, "publish the folder and report to S3")
	f.Bool("index", false, "store the scanned runs in the index database")
}

func formatNames() string {
	names := make([]string, 0, len(render.Formats))
	for _, f := range render.Formats {
		names = append(names, string(f))
	}

	return strings.Join(names, ", ")
}

// summarizeSettings is the effective behaviour of one summarize call.
type summarizeSettings struct {
	format render.Format
	gdrive bool
}

// applySummarizeFlags folds explicitly set flags over the configuration.
func applySummarizeFlags(cmd *cobra.Command, c *config.Config) (summarizeSettings, error) {
	f := cmd.Flags()

	var s summarizeSettings

	if f.Changed("format") {
		c.Summary.Format, _ = f.GetString("format")
	}

	if v, _ := f.GetBool("html"); v {
		c.Summary.Format = string(render.FormatHTML)
	}

	if v, _ := f.GetBool("sheet"); v {
		c.Summary.Format = string(render.FormatSheet)
	}

	format, err := render.ParseFormat(c.Summary.Format)
	if err != nil {
		return s, err
	}

	s.format = format
	c.Summary.Format = string(format)

	if f.Changed("devices") {
		c.Summary.Devices, _ = f.GetBool("devices")
	}

	if f.Changed("issues") {
		c.Summary.Issues, _ = f.GetBool("issues")
	}

	if f.Changed("url-prefix") {
		c.Summary.URLPrefix, _ = f.GetString("url-prefix")
	}

	c.Summary.URLPrefix = strings.TrimRight(c.Summary.URLPrefix, "/")

	if f.Changed("output") {
		c.Summary.Output, _ = f.GetString("output")
	}

	if f.Changed("mail") {
		parts, _ := f.GetStringSlice("mail")
		if len(parts) != 3 {
			return s, fmt.Errorf("--mail needs server,sender,receiver, got %d values", len(parts))
		}

		c.Mail.Server, c.Mail.Sender, c.Mail.Receivers = parts[0], parts[1], parts[2]
	}

	if f.Changed("subject") {
		c.Mail.Subject, _ = f.GetString("subject")
	}

	if f.Changed("outsum") {
		c.Sheets.SummaryPath, _ = f.GetString("outsum")
	}

	if f.Changed("out") {
		c.Sheets.TestPath, _ = f.GetString("out")
	}

	if v, _ := f.GetBool("gdrive"); v {
		c.Sheets.Enabled = true
	}

	if v, _ := f.GetBool("upload"); v {
		c.Upload.S3.Enabled = true
	}

	if v, _ := f.GetBool("index"); v {
		c.Index.Enabled = true
	}

	s.gdrive = c.Sheets.Enabled || format == render.FormatSheet

	return s, c.Validate()
}

func runSummarize(cmd *cobra.Command, args []string) error {
	root := args[0]

	settings, err := applySummarizeFlags(cmd, cfg)
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := cmd.Context()

	c, err := summary.Collect(log, root, summary.ParseOptions{
		Devices: cfg.Summary.Devices,
		Issues:  cfg.Summary.Issues,
	})
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"root":    root,
		"runs":    len(c.Runs),
		"devices": c.Devices.Len(),
	}).Info("Collected summaries")

	if cfg.Index.Enabled {
		if err := indexCollection(ctx, c); err != nil {
			return err
		}
	}

	var sheetsClient *gsheet.Client

	if settings.gdrive {
		sheetsClient, err = gsheet.New(ctx, log, cfg.Sheets)
		if err != nil {
			return fmt.Errorf("initializing google apis: %w", err)
		}
	}

	if settings.format == render.FormatSheet {
		log.Info("Creating summary spreadsheets")

		urls, err := sheetsClient.CreateSummary(ctx, c,
			cfg.Sheets.SummaryPath, cfg.Sheets.TestPath, cfg.Summary.URLPrefix)
		if err != nil {
			return fmt.Errorf("creating summary spreadsheets: %w", err)
		}

		for _, u := range urls {
			fmt.Println(u)
		}

		return nil
	}

	opts := render.Options{
		Devices:   cfg.Summary.Devices,
		Issues:    cfg.Summary.Issues,
		URLPrefix: cfg.Summary.URLPrefix,
		TestPath:  cfg.Sheets.TestPath,
	}

	if sheetsClient != nil {
		opts.Linker = sheetsClient
	}

	body, err := render.Render(settings.format, c, opts)
	if err != nil {
		return err
	}

	if err := deliver(ctx, settings.format, body); err != nil {
		return err
	}

	if cfg.Upload.S3.Enabled {
		if err := publish(ctx, root, settings.format, body); err != nil {
			return err
		}
	}

	return nil
}

// deliver writes the report to the output file and/or mails it, and
// prints it when neither is configured.
func deliver(ctx context.Context, format render.Format, body []byte) error {
	if cfg.Summary.Output != "" {
		owner, err := fsutil.ParseOwner(cfg.Summary.OutputOwner)
		if err != nil {
			return fmt.Errorf("parsing summary.output_owner: %w", err)
		}

		if err := fsutil.WriteReport(cfg.Summary.Output, body, owner); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}

		log.WithFields(logrus.Fields{
			"path": cfg.Summary.Output,
			"size": units.HumanSize(float64(len(body))),
		}).Info("Report written")
	}

	if cfg.Mail.IsConfigured() {
		m := mail.New(log, cfg.Mail)
		if err := m.Send(ctx, format.ContentType(), cfg.Mail.Subject, string(body)); err != nil {
			return fmt.Errorf("sending mail: %w", err)
		}
	}

	if cfg.Summary.Output == "" && !cfg.Mail.IsConfigured() {
		if _, err := os.Stdout.Write(body); err != nil {
			return fmt.Errorf("printing report: %w", err)
		}
	}

	return nil
}

// publish uploads the scanned folder and the rendered report.
func publish(ctx context.Context, root string, format render.Format, body []byte) error {
	uploader, err := upload.NewS3Uploader(log, &cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("s3 preflight: %w", err)
	}

	if _, err := uploader.Publish(ctx, root); err != nil {
		return fmt.Errorf("uploading folder: %w", err)
	}

	if _, err := uploader.PutReport(ctx, root, "stressoor-summary"+format.Extension(),
		body, format.ContentType()); err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}

	return nil
}

// indexCollection stores a scan in the configured index database.
func indexCollection(ctx context.Context, c *summary.Collection) error {
	store := indexstore.NewStore(log, &cfg.Index.Database)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close index store")
		}
	}()

	if _, err := store.IndexCollection(ctx, c); err != nil {
		return fmt.Errorf("indexing runs: %w", err)
	}

	return nil
}
