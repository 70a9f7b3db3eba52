package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// ParseDate parses s with the first matching layout and truncates it to a UTC date.
func ParseDate(s string, layouts ...string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ParseInputDate parses a YYYY-MM-DD request field, reporting failures as
// validation errors naming the field.
func ParseInputDate(field, raw string) (time.Time, error) {
	t, err := ParseDate(raw, time.DateOnly)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", httpx.ErrValidation, field, err)
	}
	return t, nil
}

// DateOnly drops the clock component, keeping the calendar day in t's location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	d := DateOnly(a).Sub(DateOnly(b))
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}
