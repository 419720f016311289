package query

import (
	"fmt"
	"strings"
	"time"
)

// previewLength bounds content previews in shaped results.
const previewLength = 150

// ContentPreview truncates text for display, preferring to cut at a
// sentence boundary when one falls in the second half of the budget.
func ContentPreview(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}

	cut := text[:max]
	if i := strings.LastIndexAny(cut, ".!?"); i >= max/2 {
		return cut[:i+1]
	}
	// No usable sentence boundary; break at the last word instead.
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// RelativeTime renders how long ago t was, relative to ref.
func RelativeTime(t, ref time.Time) string {
	d := ref.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	case d < 30*24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	case d < 365*24*time.Hour:
		return plural(int(d.Hours()/(24*30)), "month")
	default:
		return plural(int(d.Hours()/(24*365)), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
