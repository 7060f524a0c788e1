package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
)

// Transition is a named mutation of a view.
type Transition func(*State) error

// SetDateRange selects a named range. Custom bounds are kept but only
// apply to CUSTOM.
func SetDateRange(r models.DateRange) Transition {
	return func(s *State) error {
		if !r.Known() {
			return fmt.Errorf("%w: unknown date range %q", ErrInvalid, r)
		}
		s.Filter.DateRange = r
		s.Page = 1
		return nil
	}
}

// SetCustomRange selects CUSTOM with inclusive day bounds.
func SetCustomRange(start, end time.Time) Transition {
	return func(s *State) error {
		start, end = report.Day(start), report.Day(end)
		if end.Before(start) {
			return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalid, report.DayKey(end), report.DayKey(start))
		}
		s.Filter.DateRange = models.RangeCustom
		s.Filter.StartDate = &start
		s.Filter.EndDate = &end
		s.Page = 1
		return nil
	}
}

// SetAccount switches the view to another account of the same provider.
func SetAccount(id string) Transition {
	return func(s *State) error {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("%w: account id is required", ErrInvalid)
		}
		s.AccountID = id
		s.Page = 1
		return nil
	}
}

// ToggleSite adds site to the selection, or removes it if present.
func ToggleSite(site string) Transition {
	return func(s *State) error {
		s.Filter.Sites = toggle(s.Filter.Sites, site)
		s.Page = 1
		return nil
	}
}

func RemoveSite(site string) Transition {
	return func(s *State) error {
		s.Filter.Sites = remove(s.Filter.Sites, site)
		s.Page = 1
		return nil
	}
}

func ClearSites() Transition {
	return func(s *State) error {
		s.Filter.Sites = nil
		s.Page = 1
		return nil
	}
}

// ToggleCountry adds country to the selection, or removes it if present.
func ToggleCountry(country string) Transition {
	return func(s *State) error {
		s.Filter.Countries = toggle(s.Filter.Countries, country)
		s.Page = 1
		return nil
	}
}

func RemoveCountry(country string) Transition {
	return func(s *State) error {
		s.Filter.Countries = remove(s.Filter.Countries, country)
		s.Page = 1
		return nil
	}
}

func ClearCountries() Transition {
	return func(s *State) error {
		s.Filter.Countries = nil
		s.Page = 1
		return nil
	}
}

// SetSiteQuery narrows the site option list. Rows are unaffected.
func SetSiteQuery(q string) Transition {
	return func(s *State) error {
		s.Filter.SiteQuery = q
		return nil
	}
}

// SetCountryQuery narrows the country option list. Rows are unaffected.
func SetCountryQuery(q string) Transition {
	return func(s *State) error {
		s.Filter.CountryQuery = q
		return nil
	}
}

// SortBy toggles the sort on key.
func SortBy(key string) Transition {
	return func(s *State) error {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("%w: sort key is required", ErrInvalid)
		}
		l := report.LayoutFor(s.Provider)
		k := l.Key(key)
		if _, ok := l.Column(k); !ok {
			return fmt.Errorf("%w: unknown sort column %q", ErrInvalid, key)
		}
		s.Sort = s.Sort.Toggle(k)
		s.Page = 1
		return nil
	}
}

// GoToPage moves to page n. Out-of-range pages are clamped at render.
func GoToPage(n int) Transition {
	return func(s *State) error {
		if n < 1 {
			return fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalid, n)
		}
		s.Page = n
		return nil
	}
}

// ResetFilters clears every selection and returns to range def.
func ResetFilters(def models.DateRange) Transition {
	return func(s *State) error {
		s.Filter = report.FilterState{DateRange: def}
		s.Sort = report.SortState{}
		s.Page = 1
		return nil
	}
}

func toggle(set []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return set
	}
	for _, x := range set {
		if strings.EqualFold(x, v) {
			return remove(set, v)
		}
	}
	return append(set, v)
}

func remove(set []string, v string) []string {
	v = strings.TrimSpace(v)
	out := make([]string, 0, len(set))
	for _, x := range set {
		if !strings.EqualFold(x, v) {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
