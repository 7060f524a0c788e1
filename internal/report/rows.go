package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Header is one column identifier of a report. The API sends either a plain
// string or a {"name": ...} record.
type Header struct {
	Name string
}

func (h *Header) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &h.Name)
	}
	var rec struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return fmt.Errorf("decode header: %w", err)
	}
	h.Name = rec.Name
	return nil
}

func (h Header) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Name)
}

// HeaderNames wraps plain names as headers.
func HeaderNames(names ...string) []Header {
	out := make([]Header, len(names))
	for i, n := range names {
		out[i] = Header{Name: n}
	}
	return out
}

// Shape tags which wire form a RawRow was decoded from.
type Shape int

const (
	ShapeNamed      Shape = iota + 1 // {"reportDate": "...", "site": "..."}
	ShapePositional                  // ["2025-08-01", "example.com", ...]
	ShapeCells                       // {"cells": [{"value": "..."}, ...]}
)

// RawRow is a report row exactly as the API delivered it. Named rows carry
// their own keys; positional and cell rows line up with the headers.
type RawRow struct {
	Shape Shape
	Named map[string]string
	Cells []string
}

// NamedRow builds a ShapeNamed row.
func NamedRow(fields map[string]string) RawRow {
	return RawRow{Shape: ShapeNamed, Named: fields}
}

// PositionalRow builds a ShapePositional row.
func PositionalRow(cells ...string) RawRow {
	return RawRow{Shape: ShapePositional, Cells: cells}
}

func (r *RawRow) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("decode row: empty")
	}
	switch b[0] {
	case '[':
		var cells []json.RawMessage
		if err := json.Unmarshal(b, &cells); err != nil {
			return fmt.Errorf("decode row: %w", err)
		}
		r.Shape = ShapePositional
		r.Cells = make([]string, len(cells))
		for i, c := range cells {
			r.Cells[i] = scalarString(c)
		}
		return nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(b, &fields); err != nil {
			return fmt.Errorf("decode row: %w", err)
		}
		if raw, ok := fields["cells"]; ok && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
			var cells []struct {
				Value json.RawMessage `json:"value"`
			}
			if err := json.Unmarshal(raw, &cells); err != nil {
				return fmt.Errorf("decode row cells: %w", err)
			}
			r.Shape = ShapeCells
			r.Cells = make([]string, len(cells))
			for i, c := range cells {
				r.Cells[i] = scalarString(c.Value)
			}
			return nil
		}
		r.Shape = ShapeNamed
		r.Named = make(map[string]string, len(fields))
		for k, v := range fields {
			r.Named[k] = scalarString(v)
		}
		return nil
	}
	return fmt.Errorf("decode row: unexpected %q", b[:1])
}

func (r RawRow) MarshalJSON() ([]byte, error) {
	switch r.Shape {
	case ShapePositional:
		return json.Marshal(r.Cells)
	case ShapeCells:
		type cell struct {
			Value string `json:"value"`
		}
		cells := make([]cell, len(r.Cells))
		for i, v := range r.Cells {
			cells[i] = cell{Value: v}
		}
		return json.Marshal(struct {
			Cells []cell `json:"cells"`
		}{cells})
	default:
		return json.Marshal(r.Named)
	}
}

// scalarString renders a JSON scalar as its text. Numbers keep their literal
// form so micro-unit integers never pass through float64.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// Row is a normalized report row keyed by column key.
type Row map[string]string

// Table is a normalized report: every row has the same shape regardless of
// what the API sent.
type Table struct {
	Layout  *Layout
	Headers []string // column keys in upstream order
	Rows    []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Normalize resolves raw rows against their headers and the layout.
//
// Money columns are converted to integer micro-units here and nowhere else.
// Malformed money values become "0". The derived ctr, eCPM and CPC columns
// are recomputed from each row's own counts, replacing whatever the API sent.
func Normalize(headers []Header, raw []RawRow, layout *Layout) (*Table, error) {
	if layout == nil {
		return nil, errors.New("layout is required")
	}

	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = layout.Key(h.Name)
	}

	t := &Table{Layout: layout, Headers: keys, Rows: make([]Row, 0, len(raw))}
	for i, rr := range raw {
		row := make(Row, len(keys)+3)
		switch rr.Shape {
		case ShapeNamed:
			for k, v := range rr.Named {
				row[layout.Key(k)] = v
			}
		case ShapePositional, ShapeCells:
			if len(keys) == 0 && len(rr.Cells) > 0 {
				return nil, fmt.Errorf("row %d: positional row without headers", i)
			}
			for j, v := range rr.Cells {
				if j >= len(keys) {
					break
				}
				row[keys[j]] = v
			}
		default:
			return nil, fmt.Errorf("row %d: unknown shape %d", i, rr.Shape)
		}
		layout.canonicalize(row)
		t.Rows = append(t.Rows, row)
	}
	if len(t.Headers) == 0 && len(t.Rows) > 0 {
		t.Headers = layout.ColumnKeys()
	}
	return t, nil
}

func (l *Layout) canonicalize(row Row) {
	for _, c := range l.Columns {
		if c.Kind != KindMoney || l.isDerived(c.Key) {
			continue
		}
		v, ok := row[c.Key]
		if !ok {
			continue
		}
		m, err := ParseMicros(v, l.MoneyUnit)
		if err != nil {
			m = 0
		}
		row[c.Key] = strconv.FormatInt(m, 10)
	}

	impressions := parseCount(row[l.ImpressionsKey])
	clicks := parseCount(row[l.ClicksKey])
	revenue := parseCount(row[l.RevenueKey])
	ctr, ecpm, cpc := Ratios(impressions, clicks, revenue)
	if l.CTRKey != "" {
		row[l.CTRKey] = strconv.FormatFloat(ctr, 'f', -1, 64)
	}
	if l.ECPMKey != "" {
		row[l.ECPMKey] = strconv.FormatInt(ecpm, 10)
	}
	if l.CPCKey != "" {
		row[l.CPCKey] = strconv.FormatInt(cpc, 10)
	}
}

// parseNumber reads a numeric cell. Thousands separators are tolerated;
// NaN and infinities are rejected.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseCount reads an integer metric; missing or malformed values are 0.
func parseCount(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, ok := parseNumber(s)
	if !ok {
		return 0
	}
	return int64(math.Round(f))
}
