// Package slots describes the studio's fixed hourly grid.
package slots

import (
	"fmt"
	"regexp"
	"time"
)

const (
	DefaultOpen  = 9
	DefaultClose = 17

	layout = "15:04"
)

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Grid returns "HH:00" for every hour in [open, close).
func Grid(open, close int) []string {
	if open < 0 {
		open = 0
	}
	if close > 24 {
		close = 24
	}
	if open >= close {
		return nil
	}
	out := make([]string, 0, close-open)
	for h := open; h < close; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return out
}

// End returns the end of the slot starting at start.
func End(start string) (string, error) {
	t, err := time.Parse(layout, start)
	if err != nil {
		return "", fmt.Errorf("bad slot start %q: %w", start, err)
	}
	return t.Add(time.Hour).Format(layout), nil
}

// IsDate reports whether s is a literal YYYY-MM-DD string. The calendar
// value is not checked.
func IsDate(s string) bool {
	return dateRegex.MatchString(s)
}

// Contains reports whether start is one of the grid's slots.
func Contains(grid []string, start string) bool {
	for _, s := range grid {
		if s == start {
			return true
		}
	}
	return false
}
