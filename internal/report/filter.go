package report

import (
	"strings"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

// FilterState is the user's current selection. StartDate and EndDate only
// matter when DateRange is CUSTOM.
type FilterState struct {
	DateRange    models.DateRange `json:"date_range"`
	StartDate    *time.Time       `json:"start_date,omitempty"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
	Sites        []string         `json:"sites,omitempty"`
	Countries    []string         `json:"countries,omitempty"`
	SiteQuery    string           `json:"site_query,omitempty"`
	CountryQuery string           `json:"country_query,omitempty"`
}

// Label returns the date range label shown above the table.
func (f FilterState) Label() string {
	return f.DateRange.Label(f.StartDate, f.EndDate)
}

// Predicate decides whether a row is in scope.
type Predicate func(Row) bool

// NewPredicate combines the date, site and country criteria of f with AND.
// today is the viewer's current day.
func NewPredicate(f FilterState, l *Layout, today time.Time) Predicate {
	window := WindowFor(f.DateRange, today, f.StartDate, f.EndDate)
	sites := lowerSet(f.Sites)
	countries := lowerSet(f.Countries)

	return func(r Row) bool {
		if !window.All {
			d, ok := ParseDay(r[l.DateKey])
			if !ok || !window.Contains(d) {
				return false
			}
		}
		if len(sites) > 0 {
			if _, ok := sites[normalizeKey(r[l.SiteKey])]; !ok {
				return false
			}
		}
		if len(countries) > 0 {
			if _, ok := countries[normalizeKey(r[l.CountryKey])]; !ok {
				return false
			}
		}
		return true
	}
}

// Filter returns the rows matching p, preserving order.
func Filter(rows []Row, p Predicate) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if p(r) {
			out = append(out, r)
		}
	}
	return out
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k := normalizeKey(v); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
