package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortByDateDescending(t *testing.T) {
	table := admTable(t,
		admFixture{date: "2025-08-01"},
		admFixture{date: "2025-08-03"},
		admFixture{date: "2025-08-02"},
	)

	sorted := Sort(table.Rows, SortState{Key: "reportDate", Direction: Desc}, AdManagerLayout)
	assert.Equal(t, []string{"2025-08-03", "2025-08-02", "2025-08-01"}, columnValues(sorted, "reportDate"))

	// the input is not reordered
	assert.Equal(t, []string{"2025-08-01", "2025-08-03", "2025-08-02"}, columnValues(table.Rows, "reportDate"))
}

func TestSortComparesDatesAsDates(t *testing.T) {
	rows := []Row{
		{"DATE": "2025-10-02"},
		{"DATE": "20250903"},
		{"DATE": "2025-09-10T00:00:00Z"},
		{"DATE": ""},
	}
	sorted := Sort(rows, SortState{Key: "DATE", Direction: Asc}, AdSenseLayout)
	assert.Equal(t, []string{"", "20250903", "2025-09-10T00:00:00Z", "2025-10-02"}, columnValues(sorted, "DATE"))
}

func TestSortNumericThenText(t *testing.T) {
	rows := []Row{
		{"site": "b.com", "n": "10"},
		{"site": "A.com", "n": "9"},
		{"site": "c.com", "n": "n/a"},
		{"site": "d.com", "n": "1,000"},
		{"site": "e.com", "n": "-"},
	}

	asc := Sort(rows, SortState{Key: "n", Direction: Asc}, AdManagerLayout)
	assert.Equal(t, []string{"9", "10", "1,000", "-", "n/a"}, columnValues(asc, "n"))

	desc := Sort(rows, SortState{Key: "n", Direction: Desc}, AdManagerLayout)
	assert.Equal(t, []string{"n/a", "-", "1,000", "10", "9"}, columnValues(desc, "n"))

	bySite := Sort(rows, SortState{Key: "site", Direction: Asc}, AdManagerLayout)
	assert.Equal(t, []string{"A.com", "b.com", "c.com", "d.com", "e.com"}, columnValues(bySite, "site"))
}

func TestSortIsStableAndRepeatable(t *testing.T) {
	rows := []Row{
		{"id": "1", "v": "5"},
		{"id": "2", "v": "3"},
		{"id": "3", "v": "5"},
		{"id": "4", "v": "3"},
	}
	state := SortState{Key: "v", Direction: Desc}

	once := Sort(rows, state, AdManagerLayout)
	require.Equal(t, []string{"1", "3", "2", "4"}, columnValues(once, "id"))

	twice := Sort(once, state, AdManagerLayout)
	assert.Equal(t, once, twice)
}

func TestSortWithoutKeyKeepsOrder(t *testing.T) {
	rows := []Row{{"v": "2"}, {"v": "1"}}
	assert.Equal(t, rows, Sort(rows, SortState{}, AdManagerLayout))
}

func TestSortStateToggle(t *testing.T) {
	s := SortState{Key: "reportDate", Direction: Asc}

	s = s.Toggle("reportDate")
	assert.Equal(t, SortState{Key: "reportDate", Direction: Desc}, s)

	s = s.Toggle("reportDate")
	assert.Equal(t, SortState{Key: "reportDate", Direction: Asc}, s)

	s = s.Toggle("reportDate").Toggle("site")
	assert.Equal(t, SortState{Key: "site", Direction: Asc}, s)
}
