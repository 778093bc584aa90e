package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuties-app/cuties/pkg/bubble"
)

type exportOptions struct {
	outputDir  string
	appID      string
	headless   bool
	slowMotion bool
}

func newExportCmd(a *app) *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download every data type of the legacy app as CSV through a browser",
		Long: "Opens a browser on the app editor. Log in by hand, press Enter, and the\n" +
			"export of each data type is downloaded into the output directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("output-dir") {
				opts.outputDir = a.cfg.Bubble.ExportDir
			}
			if !cmd.Flags().Changed("app-id") {
				opts.appID = a.cfg.Bubble.AppID
			}
			if !cmd.Flags().Changed("headless") {
				opts.headless = a.cfg.Bubble.Headless
			}
			return runExport(cmd.Context(), a, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "./bubble-exports", "Directory for the screenshot, page dump and CSV files")
	cmd.Flags().StringVar(&opts.appID, "app-id", "clink-61483", "Application id in the editor URL")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run the browser without a window")
	cmd.Flags().BoolVar(&opts.slowMotion, "slow-motion", true, "Delay browser actions by 300ms")
	return cmd
}

func runExport(ctx context.Context, a *app, opts exportOptions, in io.Reader, out io.Writer) error {
	cfg := bubble.DefaultConfig()
	cfg.OutputDir = opts.outputDir
	cfg.AppID = opts.appID

	rodOpts := bubble.RodOptions{Headless: opts.headless, Bin: a.cfg.Bubble.BrowserBin}
	if opts.slowMotion {
		rodOpts.SlowMotion = bubble.DefaultSlowMotion
	}

	a.log.Info("launching browser")
	driver, err := bubble.LaunchRod(ctx, rodOpts)
	if err != nil {
		return withCode(exitFatal, err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			a.log.WithError(err).Warn("close browser")
		}
	}()

	report, err := bubble.NewExporter(driver, bubble.NewLinePrompter(in, out), out, a.log, cfg).Run(ctx)
	if err != nil {
		return withCode(exitFatal, err)
	}
	if n := report.Failed(); n > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d data types failed to export\n", n, len(report.Types))
	}
	return nil
}
