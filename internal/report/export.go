package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// Orientation of an exported document page.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// Document is what a PDF or spreadsheet renderer needs: every filtered and
// sorted row (not just the visible page), formatted, plus a totals strip.
type Document struct {
	Title          string      `json:"title"`
	DateRangeLabel string      `json:"date_range_label"`
	FileName       string      `json:"file_name"`
	Orientation    Orientation `json:"orientation"`
	Headers        []string    `json:"headers"`
	Rows           [][]string  `json:"rows"`
	TotalsHeaders  []string    `json:"totals_headers"`
	Totals         []string    `json:"totals"`
}

// Export builds the export document for the table under q. Paging in q is
// ignored.
func Export(t *Table, q Query, today time.Time, title string) Document {
	layout := AdManagerLayout
	if t != nil && t.Layout != nil {
		layout = t.Layout
	}
	rows, totals := Prepare(t, q.Filter, q.Sort, today)

	headers := make([]string, len(layout.Columns))
	for i, c := range layout.Columns {
		headers[i] = c.Label
	}
	orientation := Portrait
	if len(headers) > 6 {
		orientation = Landscape
	}
	if title == "" {
		title = "Report"
	}

	th, tv := totalsStrip(totals, layout)
	return Document{
		Title:          title,
		DateRangeLabel: q.Filter.Label(),
		FileName:       layout.Name + "_report",
		Orientation:    orientation,
		Headers:        headers,
		Rows:           FormatRows(rows, layout, StyleFull),
		TotalsHeaders:  th,
		Totals:         tv,
	}
}

// totalsStrip renders counts abbreviated and money in full dollars.
func totalsStrip(t Totals, l *Layout) ([]string, []string) {
	headers := []string{"Impressions", "Clicks"}
	values := []string{
		Abbreviate(float64(t.Impressions)),
		Abbreviate(float64(t.Clicks)),
	}
	if l.PageViewsKey != "" {
		headers = append(headers, "Page Views")
		values = append(values, Abbreviate(float64(t.PageViews)))
	}
	headers = append(headers, "Revenue", "CTR (%)", "Avg eCPM", "CPC")
	values = append(values,
		FormatMoney(t.RevenueMicros),
		FormatPercent(t.CTR),
		FormatMoney(t.ECPMMicros),
		FormatMoney(t.CPCMicros),
	)
	return headers, values
}

// WriteCSV writes the document as CSV: the header line, every row, a blank
// line, then the totals strip.
func (d Document) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(d.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	if len(d.TotalsHeaders) > 0 {
		for _, rec := range [][]string{{}, d.TotalsHeaders, d.Totals} {
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("write csv totals: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
