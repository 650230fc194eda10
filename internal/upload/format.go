package upload

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// AirtimeLayout is how airtimes appear in the tracking sheet.
const AirtimeLayout = "Jan 2, 2006, 3:04 PM"

// Airtime is the zone the tracking sheet is kept in.
var Airtime = mustLoad("America/Los_Angeles")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// whenLayouts are the ISO 8601 forms browsers produce. Values without an
// offset are read as UTC.
var whenLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseWhen parses the requested airtime. An empty value is allowed.
func ParseWhen(whenISO string) (time.Time, error) {
	if whenISO == "" {
		return time.Time{}, nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.Parse(layout, whenISO); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid whenISO %q", whenISO)
}

// FormatAirtime renders whenISO in loc, falling back to now when the
// form carried no airtime.
func FormatAirtime(whenISO string, now time.Time, loc *time.Location) (string, error) {
	t, err := ParseWhen(whenISO)
	if err != nil {
		return "", err
	}
	if t.IsZero() {
		t = now
	}
	return t.In(loc).Format(AirtimeLayout), nil
}

// FormatSizeMB renders a byte count in mebibytes with two decimals.
func FormatSizeMB(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1<<20))
}
