package services

import (
	"fmt"
	"strings"
	"time"
)

// Digest period slugs.
const (
	PeriodToday     = "today"
	PeriodYesterday = "yesterday"
	PeriodThisWeek  = "this_week"
	PeriodLast7Days = "last_7_days"
)

// Window is a resolved digest period. Anchor is the calendar day the digest
// is keyed under.
type Window struct {
	Slug   string
	Label  string
	From   time.Time
	To     time.Time
	Anchor time.Time
}

// Periods lists the supported slugs in display order.
func Periods() []string {
	return []string{PeriodToday, PeriodYesterday, PeriodThisWeek, PeriodLast7Days}
}

// ResolvePeriod maps a slug to its window relative to now in loc. Weeks start
// on Monday.
func ResolvePeriod(slug string, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	today := startOfDay(now)

	w := Window{Slug: strings.ToLower(strings.TrimSpace(slug)), To: now, Anchor: today}
	switch w.Slug {
	case PeriodToday:
		w.Label, w.From = "Today", today
	case PeriodYesterday:
		w.Label = "Yesterday"
		w.From = today.AddDate(0, 0, -1)
		w.To = today.Add(-time.Second)
		w.Anchor = w.From
	case PeriodThisWeek:
		offset := (int(today.Weekday()) + 6) % 7
		w.Label, w.From = "This Week", today.AddDate(0, 0, -offset)
	case PeriodLast7Days:
		w.Label, w.From = "Last 7 Days", today.AddDate(0, 0, -6)
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, slug)
	}
	return w, nil
}
