// Package csvsource reads the legacy app's CSV exports into header-keyed records.
package csvsource

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
)

var ErrMissingHeader = errors.New("missing header")

// Record is one data row keyed by header column name.
type Record map[string]string

// Get returns the first non-empty value among the given column aliases.
func (r Record) Get(aliases ...string) string {
	for _, a := range aliases {
		if v := r[a]; v != "" {
			return v
		}
	}
	return ""
}

// Trimmed is Get with surrounding whitespace removed.
func (r Record) Trimmed(aliases ...string) string {
	for _, a := range aliases {
		if v := strings.TrimSpace(r[a]); v != "" {
			return v
		}
	}
	return ""
}

// Read opens path and parses it with Parse.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return records, nil
}

// Parse reads a comma-separated document whose first row is the header.
// Quoting is relaxed, rows may be shorter or longer than the header and
// blank lines are skipped.
func Parse(r io.Reader) ([]Record, error) {
	br := stripUTF8BOM(bufio.NewReader(r))

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read row")
		}
		if isBlank(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrMissingHeader
		}
		return nil, errors.Wrap(err, "read header")
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, errors.New("invalid header encoding")
		}
	}
	return h, nil
}

// isBlank reports rows the csv reader returns for whitespace-only lines.
func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
