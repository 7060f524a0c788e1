package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/adreport/internal/models"
)

func TestBuildView(t *testing.T) {
	fixtures := make([]admFixture, 0, 45)
	for i := 0; i < 45; i++ {
		fixtures = append(fixtures, admFixture{
			date:        fmt.Sprintf("2025-07-%02d", i%28+1),
			site:        "a.com",
			impressions: 100,
			clicks:      2,
			revenue:     1_000_000,
		})
	}
	table := admTable(t, fixtures...)

	v := Build(table, Query{
		Filter: FilterState{DateRange: models.RangeAll},
		Sort:   SortState{Key: "reportDate", Direction: Desc},
		Page:   2,
	}, day("2025-08-01"))

	assert.Equal(t, "All Dates", v.DateRangeLabel)
	assert.Equal(t, 45, v.TotalRows)
	assert.Equal(t, 2, v.TotalPages)
	assert.Equal(t, 2, v.Page)
	assert.Equal(t, DefaultPageSize, v.PageSize)
	require.Len(t, v.Rows, 15)
	require.Len(t, v.Rows[0], len(AdManagerLayout.Columns))

	assert.Equal(t, []string{
		"TOTAL", "", "4,500", "90", "$45.00", "$10.00", "2.00%", "$0.50",
	}, v.TotalsRow)

	require.Len(t, v.Cards, 4)
	assert.Equal(t, KPI{Title: "Gross Revenue", Value: "$45.00"}, v.Cards[0])
	assert.Equal(t, KPI{Title: "Total AdX Clicks", Value: "90"}, v.Cards[1])
	assert.Equal(t, KPI{Title: "AdX Impressions", Value: "4,500"}, v.Cards[2])
	assert.Equal(t, KPI{Title: "CTR", Value: "2.00%"}, v.Cards[3])
}

func TestBuildPastLastPageIsEmpty(t *testing.T) {
	table := admTable(t, admFixture{date: "2025-08-01", impressions: 1})

	v := Build(table, Query{Filter: FilterState{DateRange: models.RangeAll}, Page: 7}, day("2025-08-01"))
	assert.Empty(t, v.Rows)
	assert.Equal(t, 1, v.TotalPages)
	assert.Equal(t, 7, v.Page)
}

func TestBuildNilTable(t *testing.T) {
	v := Build(nil, Query{}, day("2025-08-01"))
	assert.Empty(t, v.Rows)
	assert.Zero(t, v.TotalRows)
	assert.Equal(t, 1, v.Page)
}

func TestAdSenseCards(t *testing.T) {
	raw := []RawRow{PositionalRow("2025-08-01", "example.com", "Canada", "12.34", "10", "200", "500")}
	table, err := Normalize(HeaderNames("DATE", "DOMAIN_NAME", "COUNTRY_NAME", "ESTIMATED_EARNINGS", "CLICKS", "PAGE_VIEWS", "IMPRESSIONS"), raw, AdSenseLayout)
	require.NoError(t, err)

	v := Build(table, Query{Filter: FilterState{DateRange: models.RangeAll}}, day("2025-08-01"))
	assert.Equal(t, []KPI{
		{Title: "Total Earnings", Value: "$12.34"},
		{Title: "Total Clicks", Value: "10"},
		{Title: "Total Page Views", Value: "200"},
		{Title: "Total Impressions", Value: "500"},
	}, v.Cards)
	assert.Equal(t, []string{"01/08/2025", "example.com", "Canada", "$12.34", "10", "200", "500", "2.00%", "$24.68", "$1.23"}, v.Rows[0])
}

func TestBuildOptions(t *testing.T) {
	table := filterFixture(t)

	opts := BuildOptions(table, FilterState{Sites: []string{"ALPHA.com"}})
	assert.Equal(t, []string{"beta.com", "gamma.com"}, opts.Sites)
	assert.Equal(t, []string{"Canada", "Germany", "United States"}, opts.Countries)
	assert.Equal(t, []string{"ALPHA.com"}, opts.SelectedSites)
	require.Len(t, opts.DateRanges, len(models.DateRanges))
	assert.Equal(t, RangeOption{Value: models.RangeAll, Label: "All Dates"}, opts.DateRanges[0])

	opts = BuildOptions(table, FilterState{SiteQuery: "ALP", CountryQuery: "an"})
	assert.Equal(t, []string{"Alpha.com"}, opts.Sites)
	assert.Equal(t, []string{"Canada", "Germany"}, opts.Countries)

	empty := BuildOptions(nil, FilterState{})
	assert.Empty(t, empty.Sites)
	assert.NotEmpty(t, empty.DateRanges)
}

func TestExport(t *testing.T) {
	table := admTable(t,
		admFixture{date: "2025-08-01", site: "a.com", impressions: 1000, clicks: 50, revenue: 20_000_000},
		admFixture{date: "2025-08-02", site: "b.com", impressions: 3000, clicks: 10, revenue: 4_000_000},
		admFixture{date: "2025-08-02", site: "c.com", impressions: 5, clicks: 0, revenue: 0},
	)

	doc := Export(table, Query{
		Filter: FilterState{DateRange: models.RangeCustom, StartDate: dayPtr("2025-08-01"), EndDate: dayPtr("2025-08-02"), Sites: []string{"a.com", "b.com"}},
		Sort:   SortState{Key: "adxExchangeLineItemLevelImpressions", Direction: Desc},
		Page:   99,
	}, day("2025-08-10"), "Ad Manager Report")

	assert.Equal(t, "Ad Manager Report", doc.Title)
	assert.Equal(t, "2025-08-01 → 2025-08-02", doc.DateRangeLabel)
	assert.Equal(t, Landscape, doc.Orientation)
	assert.Equal(t, "admanager_report", doc.FileName)
	assert.Equal(t, "Date", doc.Headers[0])
	require.Len(t, doc.Rows, 2, "paging is ignored")
	assert.Equal(t, "b.com", doc.Rows[0][1])
	assert.Equal(t, []string{"Impressions", "Clicks", "Revenue", "CTR (%)", "Avg eCPM", "CPC"}, doc.TotalsHeaders)
	assert.Equal(t, []string{"4.00K", "60.00", "$24.00", "1.50%", "$6.00", "$0.40"}, doc.Totals)

	var buf bytes.Buffer
	require.NoError(t, doc.WriteCSV(&buf))
	_, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.Error(t, err, "totals strip has a different width")

	r := csv.NewReader(bytes.NewReader(buf.Bytes()))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, doc.Headers, records[0])
	assert.Equal(t, doc.Totals, records[4])
}

func TestExportPortraitForNarrowLayouts(t *testing.T) {
	narrow := &Layout{
		Name:           "narrow",
		DateKey:        "d",
		ImpressionsKey: "i",
		Columns:        []Column{{Key: "d", Label: "Date", Kind: KindDate}, {Key: "i", Label: "Impressions", Kind: KindCount}},
	}
	table, err := Normalize(HeaderNames("d", "i"), []RawRow{PositionalRow("2025-08-01", "5")}, narrow)
	require.NoError(t, err)

	doc := Export(table, Query{Filter: FilterState{DateRange: models.RangeAll}}, day("2025-08-01"), "")
	assert.Equal(t, Portrait, doc.Orientation)
	assert.Equal(t, "Report", doc.Title)
	assert.Equal(t, [][]string{{"01/08/2025", "5"}}, doc.Rows)
}
