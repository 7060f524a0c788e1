package report

import (
	"strings"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

// KeyLayout is the comparison key format for a calendar day.
const KeyLayout = "2006-01-02"

// displayLayout is day/month/year, the dashboard's table format.
const displayLayout = "02/01/2006"

var dayLayouts = []string{
	KeyLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102",
	"2006/01/02",
}

// Day truncates t to midnight UTC of its wall-clock date. The offset of t is
// not applied first: a report row dated 2025-08-01T23:00:00-05:00 is a row
// for 2025-08-01.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses the date representations the reporting API emits and
// truncates the result to a day.
func ParseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// DayKey returns the YYYY-MM-DD comparison key of t.
func DayKey(t time.Time) string {
	return Day(t).Format(KeyLayout)
}

// DisplayDate renders t as DD/MM/YYYY. Never use it as a comparison key.
func DisplayDate(t time.Time) string {
	return Day(t).Format(displayLayout)
}

// Window is an inclusive day range. All means no date bound at all; Empty
// means nothing can match.
type Window struct {
	From  time.Time
	To    time.Time
	All   bool
	Empty bool
}

// Contains reports whether day d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	switch {
	case w.All:
		return true
	case w.Empty:
		return false
	}
	d = Day(d)
	return !d.Before(w.From) && !d.After(w.To)
}

// WindowFor resolves a named range relative to today. start and end are only
// consulted for RangeCustom, which yields an empty window unless both are set.
// Unknown ranges do not filter.
func WindowFor(r models.DateRange, today time.Time, start, end *time.Time) Window {
	today = Day(today)
	switch r {
	case models.RangeAll:
		return Window{All: true}
	case models.RangeToday:
		return Window{From: today, To: today}
	case models.RangeYesterday:
		y := today.AddDate(0, 0, -1)
		return Window{From: y, To: y}
	case models.RangeLast7Days:
		return Window{From: today.AddDate(0, 0, -6), To: today}
	case models.RangeLast30Days:
		return Window{From: today.AddDate(0, 0, -29), To: today}
	case models.RangeCustom:
		if start == nil || end == nil {
			return Window{Empty: true}
		}
		return Window{From: Day(*start), To: Day(*end)}
	default:
		return Window{All: true}
	}
}

// Today returns the current day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}
