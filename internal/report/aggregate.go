package report

import (
	"math"
	"strconv"
	"time"
)

// Totals summarizes a filtered row set. Money is in micros.
type Totals struct {
	Rows          int                `json:"rows"`
	Impressions   int64              `json:"impressions"`
	Clicks        int64              `json:"clicks"`
	PageViews     int64              `json:"page_views"`
	RevenueMicros int64              `json:"revenue_micros"`
	CTR           float64            `json:"ctr"`
	ECPMMicros    int64              `json:"ecpm_micros"`
	CPCMicros     int64              `json:"cpc_micros"`
	LatestDate    *time.Time         `json:"latest_date,omitempty"`
	Sums          map[string]float64 `json:"sums,omitempty"`
}

// Ratios derives CTR (percent), eCPM and CPC (both micros) from summed
// metrics. A zero denominator yields 0.
func Ratios(impressions, clicks, revenueMicros int64) (ctr float64, ecpmMicros, cpcMicros int64) {
	if impressions > 0 {
		ctr = float64(clicks) / float64(impressions) * 100
		ecpmMicros = int64(math.Round(float64(revenueMicros) / float64(impressions) * 1000))
	}
	if clicks > 0 {
		cpcMicros = int64(math.Round(float64(revenueMicros) / float64(clicks)))
	}
	return ctr, ecpmMicros, cpcMicros
}

// Accumulator sums rows in a single pass. Accumulators over disjoint row
// sets can be merged in any order with the same result.
type Accumulator struct {
	layout *Layout
	t      Totals
}

// NewAccumulator returns an empty accumulator for rows of layout l.
func NewAccumulator(l *Layout) *Accumulator {
	return &Accumulator{layout: l, t: Totals{Sums: map[string]float64{}}}
}

// Add folds one row into the running totals. Absent or malformed metrics
// count as zero.
func (a *Accumulator) Add(r Row) {
	l := a.layout
	a.t.Rows++
	a.t.Impressions += parseCount(r[l.ImpressionsKey])
	a.t.Clicks += parseCount(r[l.ClicksKey])
	a.t.RevenueMicros += parseCount(r[l.RevenueKey])
	if l.PageViewsKey != "" {
		a.t.PageViews += parseCount(r[l.PageViewsKey])
	}
	if d, ok := ParseDay(r[l.DateKey]); ok {
		if a.t.LatestDate == nil || d.After(*a.t.LatestDate) {
			a.t.LatestDate = &d
		}
	}
	for _, c := range l.Columns {
		if !a.summable(c) {
			continue
		}
		if f, ok := parseNumber(r[c.Key]); ok {
			a.t.Sums[c.Key] += f
		}
	}
}

// Merge folds b into a.
func (a *Accumulator) Merge(b *Accumulator) {
	a.t.Rows += b.t.Rows
	a.t.Impressions += b.t.Impressions
	a.t.Clicks += b.t.Clicks
	a.t.RevenueMicros += b.t.RevenueMicros
	a.t.PageViews += b.t.PageViews
	if b.t.LatestDate != nil && (a.t.LatestDate == nil || b.t.LatestDate.After(*a.t.LatestDate)) {
		d := *b.t.LatestDate
		a.t.LatestDate = &d
	}
	for k, v := range b.t.Sums {
		a.t.Sums[k] += v
	}
}

// Totals returns the summed metrics with derived ratios filled in.
func (a *Accumulator) Totals() Totals {
	t := a.t
	t.Sums = make(map[string]float64, len(a.t.Sums))
	for k, v := range a.t.Sums {
		t.Sums[k] = v
	}
	t.CTR, t.ECPMMicros, t.CPCMicros = Ratios(t.Impressions, t.Clicks, t.RevenueMicros)
	return t
}

// summable reports whether c is an extra numeric column summed into Sums.
// Core metrics, derived ratios and percentages are excluded.
func (a *Accumulator) summable(c Column) bool {
	l := a.layout
	switch c.Key {
	case l.ImpressionsKey, l.ClicksKey, l.RevenueKey, l.PageViewsKey:
		return false
	}
	if l.isDerived(c.Key) {
		return false
	}
	return c.Kind == KindCount || c.Kind == KindMoney || c.Kind == KindNumber
}

// Aggregate sums rows into Totals.
func Aggregate(rows []Row, l *Layout) Totals {
	acc := NewAccumulator(l)
	for _, r := range rows {
		acc.Add(r)
	}
	return acc.Totals()
}

// Value returns the total for a column key as a normalized cell string, the
// same representation rows use, so it can go through FormatCell.
func (t Totals) Value(key string, l *Layout) (string, bool) {
	switch key {
	case "":
		return "", false
	case l.ImpressionsKey:
		return itoa(t.Impressions), true
	case l.ClicksKey:
		return itoa(t.Clicks), true
	case l.RevenueKey:
		return itoa(t.RevenueMicros), true
	case l.PageViewsKey:
		return itoa(t.PageViews), true
	case l.CTRKey:
		return ftoa(t.CTR), true
	case l.ECPMKey:
		return itoa(t.ECPMMicros), true
	case l.CPCKey:
		return itoa(t.CPCMicros), true
	case l.DateKey:
		if t.LatestDate == nil {
			return "", false
		}
		return DayKey(*t.LatestDate), true
	}
	if v, ok := t.Sums[key]; ok {
		return ftoa(v), true
	}
	return "", false
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
