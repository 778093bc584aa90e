package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuties-app/cuties/pkg/csvsource"
	"github.com/cuties-app/cuties/pkg/importer"
)

type importKind string

const (
	kindMessages     importKind = "messages"
	kindTestimonials importKind = "testimonials"
)

type importOptions struct {
	csvPath     string
	batchSize   int
	dryRun      bool
	reportPath  string
	metricsPath string
	jsonOut     bool
}

func newMessagesCmd(a *app) *cobra.Command {
	return newImportCmd(a, kindMessages,
		"Replace the messages table with the legacy All-Messages export",
		importer.MessagesBatchSize)
}

func newTestimonialsCmd(a *app) *cobra.Command {
	return newImportCmd(a, kindTestimonials,
		"Replace friend_testimonials with the legacy FriendTestimonials export",
		importer.TestimonialsBatchSize)
}

func newImportCmd(a *app, kind importKind, short string, defaultBatch int) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), a, kind, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "Path to the exported CSV file (required)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", defaultBatch, "Rows per insert request")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Read and match only; do not delete or insert")
	cmd.Flags().StringVar(&opts.reportPath, "unmatched-report", "", "Write unmatched records to this .xlsx or .csv file")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics-file", "", "Write run counters in Prometheus text format to this file")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the summary as a JSON line")
	_ = cmd.MarkFlagRequired("csv")

	return cmd
}

func runImport(ctx context.Context, a *app, kind importKind, opts importOptions, out io.Writer) error {
	if strings.TrimSpace(opts.csvPath) == "" {
		return withCode(exitUsage, fmt.Errorf("--csv is required"))
	}
	if opts.batchSize <= 0 {
		return withCode(exitUsage, fmt.Errorf("invalid --batch-size: %d", opts.batchSize))
	}

	records, err := csvsource.Read(opts.csvPath)
	if err != nil {
		return withCode(exitValidation, err)
	}
	a.log.WithField("records", len(records)).Infof("read %s", opts.csvPath)

	s, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	var metrics *importer.Metrics
	if opts.metricsPath != "" {
		metrics = importer.NewMetrics()
	}
	im := importer.New(s, a.log, metrics, importer.Options{
		BatchSize: opts.batchSize,
		PageSize:  a.cfg.PageSize,
		DryRun:    opts.dryRun,
	})

	var res *importer.Result
	switch kind {
	case kindMessages:
		res, err = im.Messages(ctx, records)
	case kindTestimonials:
		res, err = im.Testimonials(ctx, records)
	default:
		return withCode(exitUsage, fmt.Errorf("unknown import %q", kind))
	}
	if err != nil {
		if res == nil {
			// users could not be loaded
			return withCode(exitFatal, err)
		}
		return withCode(exitDB, err)
	}

	if opts.reportPath != "" {
		if err := importer.WriteUnmatchedReport(opts.reportPath, res.Unmatched); err != nil {
			return withCode(exitFatal, err)
		}
		a.log.WithField("path", opts.reportPath).Info("unmatched report written")
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(opts.metricsPath); err != nil {
			return withCode(exitFatal, err)
		}
	}

	if opts.jsonOut {
		return writeJSONLine(out, res.Summary)
	}
	printUnmatched(out, res.Unmatched)
	printImportSummary(out, res.Summary)
	return nil
}
