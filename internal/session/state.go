// Package session holds the state of open report views. Every mutation is a
// named Transition; a view lives from Open (route entry) to Close (route
// exit).
package session

import (
	"errors"
	"time"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
	"github.com/radiusdt/adreport/internal/reportapi"
)

var (
	// ErrNotFound is returned for unknown or expired views.
	ErrNotFound = errors.New("view not found")
	// ErrInvalid wraps rejected requests and transitions.
	ErrInvalid = errors.New("invalid view request")
)

// State is one open view. The fetched table is stored as headers and rows;
// the layout is derived from the provider.
type State struct {
	ID        string             `json:"id"`
	Owner     string             `json:"owner"`
	Provider  models.Provider    `json:"provider"`
	AccountID string             `json:"account_id"`
	Filter    report.FilterState `json:"filter"`
	Sort      report.SortState   `json:"sort"`
	Page      int                `json:"page"`
	PageSize  int                `json:"page_size"`

	// SeenRows is the filtered row count at the previous render, -1 before
	// the first one.
	SeenRows int `json:"seen_rows"`

	Fetched   bool         `json:"fetched"`
	Headers   []string     `json:"headers,omitempty"`
	Rows      []report.Row `json:"rows,omitempty"`
	Error     string       `json:"error,omitempty"`
	FetchedAt time.Time    `json:"fetched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Table returns the fetched report, or nil before the first successful fetch.
func (s *State) Table() *report.Table {
	if !s.Fetched {
		return nil
	}
	return &report.Table{Layout: report.LayoutFor(s.Provider), Headers: s.Headers, Rows: s.Rows}
}

func (s *State) setTable(t *report.Table, at time.Time) {
	s.Fetched = true
	s.Headers = t.Headers
	s.Rows = t.Rows
	s.Error = ""
	s.FetchedAt = at
}

// Query returns the upstream request the view's data comes from.
func (s *State) Query() reportapi.Query {
	q := reportapi.Query{
		Provider:  s.Provider,
		AccountID: s.AccountID,
		DateRange: s.Filter.DateRange,
	}
	if s.Filter.DateRange == models.RangeCustom {
		q.StartDate = s.Filter.StartDate
		q.EndDate = s.Filter.EndDate
	}
	return q
}

// ReportQuery returns the pipeline query for the current selection.
func (s *State) ReportQuery() report.Query {
	return report.Query{Filter: s.Filter, Sort: s.Sort, Page: s.Page, PageSize: s.PageSize}
}

func (s *State) clone() *State {
	cp := *s
	cp.Filter.Sites = append([]string(nil), s.Filter.Sites...)
	cp.Filter.Countries = append([]string(nil), s.Filter.Countries...)
	return &cp
}
