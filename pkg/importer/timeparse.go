package importer

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// isoMillis is the timestamp shape the app stores: UTC with milliseconds.
const isoMillis = "2006-01-02T15:04:05.000Z"

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2, 2006 3:04 pm",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 15:04",
	"January 2, 2006 3:04 pm",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"1/2/2006 3:04 pm",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
	"1/2/2006",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseTime accepts the date shapes found in the legacy exports. Values
// without a zone are read as UTC.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("missing time value")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("invalid time: %s", v)
}

// FormatTime renders t as the stored ISO-8601 form, e.g. 2024-01-01T00:00:00.000Z.
func FormatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// timestampOrNow parses v, falling back to now when v is not a date.
func timestampOrNow(v string, now func() time.Time) string {
	t, err := ParseTime(v)
	if err != nil {
		return FormatTime(now())
	}
	return FormatTime(t)
}
