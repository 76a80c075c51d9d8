package datefmt

import (
	"regexp"
	"strings"
	"time"
)

const (
	// Layout is the day-first form dates are stored and displayed in.
	Layout = "02-01-2006"
	// HTMLLayout is what <input type="date"> sends and expects.
	HTMLLayout = "2006-01-02"
)

var dayFirst = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

// Title turns "17-10-2026" into "17/10/2026" for a tooltip. Other input
// yields "".
func Title(s string) string {
	s = strings.TrimSpace(s)
	if !dayFirst.MatchString(s) {
		return ""
	}
	return strings.ReplaceAll(s, "-", "/")
}

// Parse accepts the stored and the HTML input layouts.
func Parse(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{Layout, HTMLLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ForInput converts a stored date for an <input type="date"> value.
func ForInput(s string) string {
	t, ok := Parse(s)
	if !ok {
		return ""
	}
	return t.Format(HTMLLayout)
}

// FromTimestamp renders a "2006-01-02 15:04:05" database timestamp in the
// day-first layout.
func FromTimestamp(ts string) string {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format(Layout)
		}
	}
	return ts
}

// Display renders a date in either accepted layout as day-first. Anything
// else is returned unchanged.
func Display(s string) string {
	t, ok := Parse(s)
	if !ok {
		return s
	}
	return t.Format(Layout)
}
