package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/radsync/internal/common"
)

// ParseCursor reads a sync cursor. An empty cursor means the epoch.
func ParseCursor(s string) (time.Time, error) {
	if s == "" {
		s = common.CursorEpoch
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", common.ErrInvalidCursor, s)
	}
	return t.UTC(), nil
}

// FormatCursor renders t the way the server hands cursors out.
func FormatCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// EarlierCursor returns whichever of a and b is earlier. Any unparsable
// value yields the epoch so a pull never starts past unseen rows.
func EarlierCursor(a, b string) string {
	ta, errA := ParseCursor(a)
	tb, errB := ParseCursor(b)
	switch {
	case errA != nil || errB != nil:
		return common.CursorEpoch
	case tb.Before(ta):
		return b
	default:
		return a
	}
}

// LaterCursor returns whichever of a and b is later. Unparsable values lose.
func LaterCursor(a, b string) string {
	ta, errA := ParseCursor(a)
	tb, errB := ParseCursor(b)
	switch {
	case errA != nil && errB != nil:
		return common.CursorEpoch
	case errA != nil:
		return b
	case errB != nil:
		return a
	case tb.After(ta):
		return b
	default:
		return a
	}
}
