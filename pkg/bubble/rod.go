package bubble

import (
	"context"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultSlowMotion is the delay between browser actions of an interactive export.
const DefaultSlowMotion = 300 * time.Millisecond

type RodOptions struct {
	Headless   bool
	SlowMotion time.Duration
	// Bin is the browser executable. Empty lets the launcher find or fetch one.
	Bin string
}

// RodDriver is a Driver backed by a Chromium instance controlled over CDP.
type RodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func LaunchRod(ctx context.Context, opts RodOptions) (*RodDriver, error) {
	l := launcher.New().Context(ctx).Headless(opts.Headless)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "launch browser")
	}

	b := rod.New().ControlURL(controlURL)
	if opts.SlowMotion > 0 {
		b = b.SlowMotion(opts.SlowMotion)
	}
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, errors.Wrap(err, "connect browser")
	}

	p, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, errors.Wrap(err, "open page")
	}
	return &RodDriver{launcher: l, browser: b, page: p}, nil
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (d *RodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.page.Context(ctx).Screenshot(false, nil)
}

func (d *RodDriver) HTML(ctx context.Context) (string, error) {
	return d.page.Context(ctx).HTML()
}

func (d *RodDriver) FindVisible(ctx context.Context, selector, pattern string) (Element, error) {
	el, err := d.page.Context(ctx).ElementR(selector, pattern)
	if err != nil {
		return nil, err
	}
	visible, err := el.Visible()
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotVisible
	}
	return rodElement{el: el}, nil
}

func (d *RodDriver) ExpectDownload(ctx context.Context, dir string) func() (string, error) {
	wait := d.browser.Context(ctx).WaitDownload(dir)
	return func() (string, error) {
		info := wait()
		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(err, "wait for download")
		}
		if info == nil || info.GUID == "" {
			return "", errors.New("download did not start")
		}
		return filepath.Join(dir, info.GUID), nil
	}
}

func (d *RodDriver) Close() error {
	defer d.launcher.Cleanup()
	return d.browser.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}
