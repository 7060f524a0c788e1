package models

import (
	"fmt"
	"strings"
	"time"
)

// DateRange is the named reporting window selected in the dashboard.
type DateRange string

const (
	RangeAll        DateRange = "ALL"
	RangeToday      DateRange = "TODAY"
	RangeYesterday  DateRange = "YESTERDAY"
	RangeLast7Days  DateRange = "LAST_7_DAYS"
	RangeLast30Days DateRange = "LAST_30_DAYS"
	RangeCustom     DateRange = "CUSTOM"
)

// DateRanges lists the selectable ranges in display order.
var DateRanges = []DateRange{RangeAll, RangeToday, RangeYesterday, RangeLast7Days, RangeLast30Days, RangeCustom}

var rangeLabels = map[DateRange]string{
	RangeAll:        "All Dates",
	RangeToday:      "Today",
	RangeYesterday:  "Yesterday",
	RangeLast7Days:  "Last 7 Days",
	RangeLast30Days: "Last 30 Days",
	RangeCustom:     "Custom",
}

// ParseDateRange normalizes s and rejects unknown names.
func ParseDateRange(s string) (DateRange, error) {
	r := DateRange(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rangeLabels[r]; !ok {
		return "", fmt.Errorf("unknown date range %q", s)
	}
	return r, nil
}

// Known reports whether r is one of the defined ranges.
func (r DateRange) Known() bool {
	_, ok := rangeLabels[r]
	return ok
}

// Label returns the human readable name of the range. A custom range with
// both bounds set renders as "YYYY-MM-DD → YYYY-MM-DD".
func (r DateRange) Label(start, end *time.Time) string {
	if r == RangeCustom && start != nil && end != nil {
		return start.Format("2006-01-02") + " → " + end.Format("2006-01-02")
	}
	if l, ok := rangeLabels[r]; ok {
		return l
	}
	return string(r)
}
