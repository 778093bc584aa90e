// Package bubble drives the no-code builder's editor in a real browser to
// download the CSV export of every data type of an app. An operator logs in
// by hand; everything after that is automated.
package bubble

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

const (
	ScreenshotFile = "current-page.png"
	PageHTMLFile   = "page-structure.html"

	exportSelector  = `button, [role="button"]`
	exportPattern   = `Export`
	confirmSelector = `button`
	confirmPattern  = `Download|CSV`
)

var ErrNotVisible = errors.New("element not visible")

// Element is something on the page that can be clicked.
type Element interface {
	Click(ctx context.Context) error
}

// Driver is the browser surface the exporter needs. Every call is bounded by
// the deadline of ctx.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	// FindVisible waits for the first element matching selector whose text
	// matches the pattern regexp. A hidden match yields ErrNotVisible.
	FindVisible(ctx context.Context, selector, pattern string) (Element, error)
	// ExpectDownload starts listening for a download saved into dir. The
	// returned function blocks until it completes or ctx ends and returns the
	// path of the downloaded file.
	ExpectDownload(ctx context.Context, dir string) func() (string, error)
	Close() error
}

type Config struct {
	AppID     string
	StartType string
	OutputDir string

	NavigationTimeout time.Duration
	LoginSettle       time.Duration
	PageSettle        time.Duration
	ExportTimeout     time.Duration
	DownloadTimeout   time.Duration
	DialogSettle      time.Duration
	ConfirmTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		AppID:             "clink-61483",
		StartType:         "testimonials",
		OutputDir:         "./bubble-exports",
		NavigationTimeout: 60 * time.Second,
		LoginSettle:       2 * time.Second,
		PageSettle:        3 * time.Second,
		ExportTimeout:     5 * time.Second,
		DownloadTimeout:   60 * time.Second,
		DialogSettle:      2 * time.Second,
		ConfirmTimeout:    3 * time.Second,
	}
}

type TypeResult struct {
	Type TypeLink
	File string
	Err  error
}

type Report struct {
	Types    []TypeResult
	CSVFiles []string
}

func (r *Report) Failed() int {
	n := 0
	for _, t := range r.Types {
		if t.Err != nil {
			n++
		}
	}
	return n
}

type Exporter struct {
	driver Driver
	prompt Prompter
	out    io.Writer
	log    logrus.FieldLogger
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewExporter(d Driver, p Prompter, out io.Writer, log logrus.FieldLogger, cfg Config) *Exporter {
	return &Exporter{driver: d, prompt: p, out: out, log: log, cfg: cfg, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Exporter) banner(lines ...string) {
	fmt.Fprintln(e.out, "\n========================================")
	for _, l := range lines {
		fmt.Fprintln(e.out, l)
	}
	fmt.Fprintln(e.out, "========================================")
}

func (e *Exporter) navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.NavigationTimeout)
	defer cancel()
	return e.driver.Navigate(ctx, url)
}

// Run performs the whole export. Only failures before the per-type loop are
// returned; a failing type is recorded in the report and the next is tried.
func (e *Exporter) Run(ctx context.Context) (*Report, error) {
	dir, err := filepath.Abs(e.cfg.OutputDir)
	if err != nil {
		return nil, errors.Wrap(err, "resolve output dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output dir")
	}

	e.log.Info("navigating to editor")
	if err := e.navigate(ctx, DataURL(e.cfg.AppID, e.cfg.StartType)); err != nil {
		return nil, errors.Wrap(err, "open editor")
	}

	e.banner("Please log in in the browser window.", "After logging in, make sure you can see the Data tab.")
	if err := e.prompt.WaitForEnter(ctx, "Press Enter once you are logged in and see the Data tab..."); err != nil {
		return nil, err
	}
	if err := e.sleep(ctx, e.cfg.LoginSettle); err != nil {
		return nil, err
	}

	if png, err := e.driver.Screenshot(ctx); err != nil {
		e.log.WithError(err).Warn("screenshot failed")
	} else if err := os.WriteFile(filepath.Join(dir, ScreenshotFile), png, 0o644); err != nil {
		return nil, errors.Wrap(err, "save screenshot")
	}

	html, err := e.driver.HTML(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read page html")
	}
	if err := os.WriteFile(filepath.Join(dir, PageHTMLFile), []byte(html), 0o644); err != nil {
		return nil, errors.Wrap(err, "save page html")
	}

	links, err := DiscoverTypeLinks(html)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Text
	}
	e.log.WithField("types", names).Infof("found %d data types", len(links))

	if len(links) == 0 {
		fmt.Fprintln(e.out, "No data types found automatically.")
		fmt.Fprintln(e.out, "Please check the browser and look for the data types sidebar.")
		if err := e.prompt.WaitForEnter(ctx, "Press Enter after reviewing the page structure..."); err != nil {
			return nil, err
		}
	}

	report := &Report{}
	for _, link := range links {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		log := e.log.WithFields(logrus.Fields{"type": link.TypeID, "text": link.Text})
		log.Info("exporting")

		file, err := e.exportType(ctx, dir, link)
		report.Types = append(report.Types, TypeResult{Type: link, File: file, Err: err})
		if err != nil {
			log.WithError(err).Error("export failed")
			continue
		}
		log.WithField("file", file).Info("saved")
	}

	report.CSVFiles, err = listCSV(dir)
	if err != nil {
		return report, err
	}
	e.banner("Export process completed!", "Files saved to: "+dir)
	fmt.Fprintf(e.out, "Exported %d files:\n", len(report.CSVFiles))
	for _, f := range report.CSVFiles {
		fmt.Fprintf(e.out, "  - %s\n", f)
	}

	if err := e.prompt.WaitForEnter(ctx, "\nPress Enter to close the browser..."); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Exporter) exportType(ctx context.Context, dir string, link TypeLink) (string, error) {
	if err := e.navigate(ctx, DataURL(e.cfg.AppID, link.TypeID)); err != nil {
		return "", errors.Wrap(err, "navigate")
	}
	if err := e.sleep(ctx, e.cfg.PageSettle); err != nil {
		return "", err
	}

	findCtx, cancelFind := context.WithTimeout(ctx, e.cfg.ExportTimeout)
	button, err := e.driver.FindVisible(findCtx, exportSelector, exportPattern)
	cancelFind()
	if err != nil {
		return "", errors.Wrap(err, "export button")
	}

	dlCtx, cancelDL := context.WithTimeout(ctx, e.cfg.DownloadTimeout)
	defer cancelDL()
	wait := e.driver.ExpectDownload(dlCtx, dir)

	if err := button.Click(ctx); err != nil {
		return "", errors.Wrap(err, "click export")
	}
	if err := e.sleep(ctx, e.cfg.DialogSettle); err != nil {
		return "", err
	}

	confirmCtx, cancelConfirm := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	if confirm, err := e.driver.FindVisible(confirmCtx, confirmSelector, confirmPattern); err == nil {
		if err := confirm.Click(confirmCtx); err != nil {
			e.log.WithError(err).Debug("confirm click failed")
		}
	}
	cancelConfirm()

	downloaded, err := wait()
	if err != nil {
		return "", errors.Wrap(err, "download")
	}
	target := filepath.Join(dir, FileName(link.Text))
	if err := os.Rename(downloaded, target); err != nil {
		return "", errors.Wrap(err, "save download")
	}
	return target, nil
}

func listCSV(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "list output dir")
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
