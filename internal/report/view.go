package report

import (
	"sort"
	"strings"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

// Query is everything that shapes a rendered view of a table.
type Query struct {
	Filter   FilterState `json:"filter"`
	Sort     SortState   `json:"sort"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// KPI is a rendered summary card.
type KPI struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// View is a rendered page of a report.
type View struct {
	DateRangeLabel string     `json:"date_range_label"`
	Columns        []Column   `json:"columns"`
	Rows           [][]string `json:"rows"`
	TotalsRow      []string   `json:"totals_row"`
	Totals         Totals     `json:"totals"`
	Cards          []KPI      `json:"cards"`
	Sort           SortState  `json:"sort"`
	Page           int        `json:"page"`
	PageSize       int        `json:"page_size"`
	TotalPages     int        `json:"total_pages"`
	TotalRows      int        `json:"total_rows"`
}

// Prepare filters and sorts the table and totals the filtered rows.
func Prepare(t *Table, f FilterState, s SortState, today time.Time) ([]Row, Totals) {
	if t == nil || t.Layout == nil {
		return nil, Aggregate(nil, AdManagerLayout)
	}
	filtered := Filter(t.Rows, NewPredicate(f, t.Layout, today))
	return Sort(filtered, s, t.Layout), Aggregate(filtered, t.Layout)
}

// Build runs the full pipeline: filter, total, sort, page, format. The
// requested page is not clamped; callers own the page number.
func Build(t *Table, q Query, today time.Time) View {
	layout := AdManagerLayout
	if t != nil && t.Layout != nil {
		layout = t.Layout
	}
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	rows, totals := Prepare(t, q.Filter, q.Sort, today)
	visible := Paginate(rows, page, size)

	return View{
		DateRangeLabel: q.Filter.Label(),
		Columns:        layout.Columns,
		Rows:           FormatRows(visible, layout, StyleFull),
		TotalsRow:      TotalsRow(totals, layout, StyleFull),
		Totals:         totals,
		Cards:          Cards(totals, layout),
		Sort:           q.Sort,
		Page:           page,
		PageSize:       size,
		TotalPages:     PageCount(len(rows), size),
		TotalRows:      len(rows),
	}
}

// FormatRows renders rows in layout column order.
func FormatRows(rows []Row, l *Layout, style Style) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		cells := make([]string, len(l.Columns))
		for j, c := range l.Columns {
			cells[j] = FormatCell(c, r[c.Key], style)
		}
		out[i] = cells
	}
	return out
}

// TotalsRow renders totals in layout column order. The first cell reads
// "TOTAL"; columns without a meaningful total are left blank.
func TotalsRow(t Totals, l *Layout, style Style) []string {
	cells := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		if i == 0 {
			cells[i] = "TOTAL"
			continue
		}
		v, ok := t.Value(c.Key, l)
		if !ok || c.Kind == KindText || c.Kind == KindDate {
			continue
		}
		cells[i] = FormatCell(c, v, style)
	}
	return cells
}

// Cards renders the layout's KPI cards from totals.
func Cards(t Totals, l *Layout) []KPI {
	out := make([]KPI, 0, len(l.Cards))
	for _, card := range l.Cards {
		v, _ := t.Value(card.Key, l)
		col, ok := l.Column(card.Key)
		if !ok {
			col = Column{Key: card.Key, Kind: KindNumber}
		}
		if v == "" {
			v = "0"
		}
		out = append(out, KPI{Title: card.Title, Value: FormatCell(col, v, StyleFull)})
	}
	return out
}

// RangeOption is a selectable date range.
type RangeOption struct {
	Value models.DateRange `json:"value"`
	Label string           `json:"label"`
}

// Options are the choices offered by the filter controls.
type Options struct {
	DateRanges        []RangeOption `json:"date_ranges"`
	Sites             []string      `json:"sites"`
	Countries         []string      `json:"countries"`
	SelectedSites     []string      `json:"selected_sites"`
	SelectedCountries []string      `json:"selected_countries"`
}

// BuildOptions lists the distinct sites and countries in the table. Sites
// are narrowed by SiteQuery and exclude those already selected; countries
// are narrowed by CountryQuery. Matching is case-insensitive and results are
// sorted.
func BuildOptions(t *Table, f FilterState) Options {
	opts := Options{
		DateRanges:        make([]RangeOption, 0, len(models.DateRanges)),
		Sites:             []string{},
		Countries:         []string{},
		SelectedSites:     append([]string{}, f.Sites...),
		SelectedCountries: append([]string{}, f.Countries...),
	}
	for _, r := range models.DateRanges {
		opts.DateRanges = append(opts.DateRanges, RangeOption{Value: r, Label: r.Label(nil, nil)})
	}
	if t == nil || t.Layout == nil {
		return opts
	}

	selected := lowerSet(f.Sites)
	opts.Sites = distinct(t.Rows, t.Layout.SiteKey, func(v string) bool {
		if _, ok := selected[normalizeKey(v)]; ok {
			return false
		}
		return containsFold(v, f.SiteQuery)
	})
	opts.Countries = distinct(t.Rows, t.Layout.CountryKey, func(v string) bool {
		return containsFold(v, f.CountryQuery)
	})
	return opts
}

func distinct(rows []Row, key string, keep func(string) bool) []string {
	out := []string{}
	if key == "" {
		return out
	}
	seen := make(map[string]struct{})
	for _, r := range rows {
		v := strings.TrimSpace(r[key])
		k := normalizeKey(v)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

func containsFold(s, q string) bool {
	q = normalizeKey(q)
	return q == "" || strings.Contains(strings.ToLower(s), q)
}
