package session

import (
	"fmt"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

// Command is the wire form of a transition.
type Command struct {
	Op        string     `json:"op" validate:"required"`
	Value     string     `json:"value,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Page      int        `json:"page,omitempty"`
}

// Command names.
const (
	OpSetDateRange    = "set_date_range"
	OpSetCustomRange  = "set_custom_range"
	OpSetAccount      = "set_account"
	OpToggleSite      = "toggle_site"
	OpRemoveSite      = "remove_site"
	OpClearSites      = "clear_sites"
	OpToggleCountry   = "toggle_country"
	OpRemoveCountry   = "remove_country"
	OpClearCountries  = "clear_countries"
	OpSetSiteQuery    = "set_site_query"
	OpSetCountryQuery = "set_country_query"
	OpSortBy          = "sort_by"
	OpGoToPage        = "go_to_page"
	OpResetFilters    = "reset_filters"
)

// Transition decodes c. def is the range ResetFilters returns to.
func (c Command) Transition(def models.DateRange) (Transition, error) {
	switch c.Op {
	case OpSetDateRange:
		r, err := models.ParseDateRange(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return SetDateRange(r), nil
	case OpSetCustomRange:
		if c.StartDate == nil || c.EndDate == nil {
			return nil, fmt.Errorf("%w: start_date and end_date are required", ErrInvalid)
		}
		return SetCustomRange(*c.StartDate, *c.EndDate), nil
	case OpSetAccount:
		return SetAccount(c.Value), nil
	case OpToggleSite:
		return ToggleSite(c.Value), nil
	case OpRemoveSite:
		return RemoveSite(c.Value), nil
	case OpClearSites:
		return ClearSites(), nil
	case OpToggleCountry:
		return ToggleCountry(c.Value), nil
	case OpRemoveCountry:
		return RemoveCountry(c.Value), nil
	case OpClearCountries:
		return ClearCountries(), nil
	case OpSetSiteQuery:
		return SetSiteQuery(c.Value), nil
	case OpSetCountryQuery:
		return SetCountryQuery(c.Value), nil
	case OpSortBy:
		return SortBy(c.Value), nil
	case OpGoToPage:
		return GoToPage(c.Page), nil
	case OpResetFilters:
		return ResetFilters(def), nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", ErrInvalid, c.Op)
}

// Transitions decodes cmds in order.
func Transitions(cmds []Command, def models.DateRange) ([]Transition, error) {
	out := make([]Transition, 0, len(cmds))
	for i, c := range cmds {
		t, err := c.Transition(def)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
