package report

import (
	"sort"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortState is the single active sort column.
type SortState struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

// Toggle returns the state after the user clicks the header of key: the
// active column flips direction, any other column starts ascending.
func (s SortState) Toggle(key string) SortState {
	if s.Key == key {
		if s.Direction == Desc {
			return SortState{Key: key, Direction: Asc}
		}
		return SortState{Key: key, Direction: Desc}
	}
	return SortState{Key: key, Direction: Asc}
}

// Sort returns a stably sorted copy of rows. The date column compares as
// days; other columns compare numerically when both values are numbers,
// numbers rank before text, and text compares case-insensitively. An empty
// key leaves the order unchanged.
func Sort(rows []Row, s SortState, l *Layout) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	if s.Key == "" {
		return out
	}
	isDate := s.Key == l.DateKey || l.kindOf(s.Key) == KindDate
	desc := s.Direction == Desc
	sort.SliceStable(out, func(i, j int) bool {
		c := compareValues(out[i][s.Key], out[j][s.Key], isDate)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compareValues(a, b string, isDate bool) int {
	if isDate {
		da, okA := ParseDay(a)
		db, okB := ParseDay(b)
		switch {
		case okA && okB:
			return da.Compare(db)
		case okA:
			return 1
		case okB:
			return -1
		}
		return strings.Compare(a, b)
	}

	fa, okA := parseNumber(a)
	fb, okB := parseNumber(b)
	switch {
	case okA && okB:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
