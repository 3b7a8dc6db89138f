package seed

import (
	"fmt"
	"strings"
	"time"

	"github.com/bcampbell/fuzzytime"
	"github.com/itlightning/dateparse"
)

const isoLayout = "2006-01-02T15:04:05"

// fuzzyLayouts are the shapes fuzzytime's ISOFormat produces, most specific first.
var fuzzyLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// NormalizeDate turns a free-text date into an ISO local timestamp. A value
// without a year is placed on its next occurrence after now. Text neither
// parser understands is returned with an error and should be kept verbatim.
func NormalizeDate(input string, now time.Time) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}

	if t, err := dateparse.ParseAny(s); err == nil && t.Year() != 0 {
		return wallClock(t).Format(isoLayout), nil
	}

	dt, _, err := fuzzytime.Extract(s)
	if err != nil || dt.Empty() {
		return "", fmt.Errorf("unparseable date: %q", input)
	}

	iso := dt.ISOFormat()
	yearless := strings.HasPrefix(iso, "0000")
	if yearless {
		iso = fmt.Sprintf("%04d", now.Year()) + iso[4:]
	}

	var t time.Time
	for _, layout := range fuzzyLayouts {
		if t, err = time.Parse(layout, iso); err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("unparseable date: %q", input)
	}

	t = wallClock(t)
	if yearless && t.Before(now) {
		t = t.AddDate(1, 0, 0)
	}
	return t.Format(isoLayout), nil
}

// wallClock drops the zone, keeping the clock reading as written.
func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}
