package bubble

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const sidebarHTML = `<html><body>
<nav>
  <a href="/page?id=app&type_id=user&tab=Data">User</a>
  <a href="/page?id=app&type_id=message">  </a>
  <a href="/page?id=app&type_id=user&tab=Data">User again</a>
  <a href="https://bubble.io/page?type_id=friend_testimonial&version=live">Friend Testimonial</a>
  <a href="/page?id=app&tab=Design">Design</a>
  <a>no href</a>
</nav>
</body></html>`

func TestDiscoverTypeLinks(t *testing.T) {
	links, err := DiscoverTypeLinks(sidebarHTML)
	require.NoError(t, err)
	require.Len(t, links, 3)

	require.Equal(t, "user", links[0].TypeID)
	require.Equal(t, "User", links[0].Text)
	require.Equal(t, "message", links[1].TypeID)
	require.Equal(t, "message", links[1].Text)
	require.Equal(t, "friend_testimonial", links[2].TypeID)
	require.Equal(t, "Friend Testimonial", links[2].Text)
}

func TestFileNameAndDataURL(t *testing.T) {
	require.Equal(t, "Friend_Testimonial.csv", FileName("Friend Testimonial"))
	require.Equal(t, "Caf__d_j__vu.csv", FileName("Café déjà-vu"))
	require.Equal(t,
		"https://bubble.io/page?id=clink-61483&tab=Data&name=index&type_id=user&version=live&subtab=App+Data",
		DataURL("clink-61483", "user"))
}

type fakeElement struct {
	name string
	d    *fakeDriver
}

func (e fakeElement) Click(context.Context) error {
	e.d.clicks = append(e.d.clicks, e.d.current+":"+e.name)
	return nil
}

// fakeDriver simulates the editor: pages listed in noExport have no visible
// export button, pages in confirm need the dialog button, pages in noDownload
// never produce a file.
type fakeDriver struct {
	html       string
	current    string
	navigated  []string
	clicks     []string
	noExport   map[string]bool
	confirm    map[string]bool
	noDownload map[string]bool
	confirmed  bool
	dir        string
}

func (d *fakeDriver) typeID() string {
	i := strings.Index(d.current, "type_id=")
	rest := d.current[i+len("type_id="):]
	return rest[:strings.Index(rest, "&")]
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.current = url
	d.navigated = append(d.navigated, url)
	d.confirmed = false
	return nil
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }
func (d *fakeDriver) HTML(context.Context) (string, error)       { return d.html, nil }

func (d *fakeDriver) FindVisible(_ context.Context, selector, pattern string) (Element, error) {
	id := d.typeID()
	switch pattern {
	case exportPattern:
		if d.noExport[id] {
			return nil, ErrNotVisible
		}
		return fakeElement{name: "export", d: d}, nil
	case confirmPattern:
		if !d.confirm[id] {
			return nil, context.DeadlineExceeded
		}
		d.confirmed = true
		return fakeElement{name: "confirm", d: d}, nil
	}
	return nil, errors.New("unexpected selector " + selector)
}

func (d *fakeDriver) ExpectDownload(ctx context.Context, dir string) func() (string, error) {
	d.dir = dir
	id := d.typeID()
	return func() (string, error) {
		if d.noDownload[id] || (d.confirm[id] && !d.confirmed) {
			return "", errors.New("timed out")
		}
		path := filepath.Join(dir, "guid-"+id)
		return path, os.WriteFile(path, []byte("id\n1\n"), 0o644)
	}
}

func (d *fakeDriver) Close() error { return nil }

type countingPrompter struct{ prompts []string }

func (p *countingPrompter) WaitForEnter(_ context.Context, prompt string) error {
	p.prompts = append(p.prompts, prompt)
	return nil
}

func newTestExporter(t *testing.T, d Driver, p Prompter) (*Exporter, string) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "exports")
	e := NewExporter(d, p, &bytes.Buffer{}, log, cfg)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e, cfg.OutputDir
}

func TestExporter_ExportsEachTypeAndContinuesOnFailure(t *testing.T) {
	d := &fakeDriver{
		html:       sidebarHTML,
		noExport:   map[string]bool{"message": true},
		confirm:    map[string]bool{"friend_testimonial": true},
		noDownload: map[string]bool{},
	}
	p := &countingPrompter{}
	e, dir := newTestExporter(t, d, p)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Types, 3)
	require.NoError(t, report.Types[0].Err)
	require.ErrorIs(t, report.Types[1].Err, ErrNotVisible)
	require.NoError(t, report.Types[2].Err)
	require.Equal(t, 1, report.Failed())
	require.Equal(t, []string{"Friend_Testimonial.csv", "User.csv"}, report.CSVFiles)

	require.FileExists(t, filepath.Join(dir, ScreenshotFile))
	require.FileExists(t, filepath.Join(dir, PageHTMLFile))
	require.NoFileExists(t, filepath.Join(dir, "guid-user"))

	require.Equal(t, DataURL("clink-61483", "testimonials"), d.navigated[0])
	require.Len(t, d.navigated, 4)
	require.Contains(t, d.clicks[len(d.clicks)-1], "confirm")

	require.Len(t, p.prompts, 2)
	require.Contains(t, p.prompts[0], "logged in")
	require.Contains(t, p.prompts[1], "close the browser")
}

func TestExporter_NoTypesAsksOperatorToReview(t *testing.T) {
	d := &fakeDriver{html: "<html><body><a href='/x'>nothing</a></body></html>"}
	p := &countingPrompter{}
	e, _ := newTestExporter(t, d, p)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Types)
	require.Len(t, p.prompts, 3)
	require.Contains(t, p.prompts[1], "reviewing the page")
}

func TestExporter_DownloadFailureIsRecorded(t *testing.T) {
	d := &fakeDriver{html: sidebarHTML, noDownload: map[string]bool{"user": true, "message": true, "friend_testimonial": true}}
	e, _ := newTestExporter(t, d, &countingPrompter{})

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Failed())
	require.Empty(t, report.CSVFiles)
}

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("\n"), &out)
	require.NoError(t, p.WaitForEnter(context.Background(), "Press Enter..."))
	require.Equal(t, "Press Enter...", out.String())

	// closed input counts as confirmation
	require.NoError(t, p.WaitForEnter(context.Background(), "again"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocking := NewLinePrompter(blockingReader{}, &out)
	require.ErrorIs(t, blocking.WaitForEnter(ctx, "x"), context.Canceled)
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) { select {} }
