package report

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/adreport/internal/models"
)

func TestTotalsSingleDay(t *testing.T) {
	table := admTable(t, admFixture{date: "2025-08-01", site: "a.com", impressions: 1000, clicks: 50, revenue: 20_000_000})

	rows, totals := Prepare(table, FilterState{DateRange: models.RangeToday}, SortState{}, day("2025-08-01"))
	require.Len(t, rows, 1)

	assert.EqualValues(t, 1000, totals.Impressions)
	assert.EqualValues(t, 50, totals.Clicks)
	assert.Equal(t, "$20.00", FormatMoney(totals.RevenueMicros))
	assert.Equal(t, "5.00%", FormatPercent(totals.CTR))
	assert.Equal(t, "$20.00", FormatMoney(totals.ECPMMicros))
	assert.Equal(t, "$0.40", FormatMoney(totals.CPCMicros))
	require.NotNil(t, totals.LatestDate)
	assert.Equal(t, "2025-08-01", DayKey(*totals.LatestDate))
}

func TestTotalsEmptySet(t *testing.T) {
	table := admTable(t, admFixture{date: "2025-08-01", impressions: 1000, clicks: 50, revenue: 20_000_000})

	rows, totals := Prepare(table, FilterState{DateRange: models.RangeToday}, SortState{}, day("2025-09-01"))
	assert.Empty(t, rows)

	assert.Zero(t, totals.Impressions)
	assert.Zero(t, totals.Clicks)
	assert.Equal(t, "$0.00", FormatMoney(totals.RevenueMicros))
	assert.Equal(t, "0.00%", FormatPercent(totals.CTR))
	assert.Equal(t, "$0.00", FormatMoney(totals.ECPMMicros))
	assert.Equal(t, "$0.00", FormatMoney(totals.CPCMicros))
	assert.Nil(t, totals.LatestDate)
}

func TestRatiosNeverNaN(t *testing.T) {
	t.Parallel()

	tt := []struct {
		name                        string
		impressions, clicks, micros int64
		ctr                         float64
		ecpm, cpc                   int64
	}{
		{name: "all zero"},
		{name: "zero impressions", clicks: 5, micros: 1_000_000, cpc: 200_000},
		{name: "zero clicks", impressions: 2000, micros: 4_000_000, ecpm: 2_000_000},
		{name: "normal", impressions: 1000, clicks: 50, micros: 20_000_000, ctr: 5, ecpm: 20_000_000, cpc: 400_000},
	}

	for i := range tt {
		tc := tt[i]
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctr, ecpm, cpc := Ratios(tc.impressions, tc.clicks, tc.micros)
			assert.False(t, math.IsNaN(ctr) || math.IsInf(ctr, 0))
			assert.InDelta(t, tc.ctr, ctr, 1e-9)
			assert.Equal(t, tc.ecpm, ecpm)
			assert.Equal(t, tc.cpc, cpc)
		})
	}
}

func TestAccumulatorMergeIsOrderIndependent(t *testing.T) {
	table := admTable(t,
		admFixture{date: "2025-08-01", impressions: 100, clicks: 1, revenue: 1_000_000},
		admFixture{date: "2025-08-05", impressions: 200, clicks: 2, revenue: 3_000_000},
		admFixture{date: "2025-08-03", impressions: 300, clicks: 3, revenue: 5_000_000},
		admFixture{impressions: 400, clicks: 4, revenue: 7_000_000},
	)
	whole := Aggregate(table.Rows, AdManagerLayout)

	left := NewAccumulator(AdManagerLayout)
	right := NewAccumulator(AdManagerLayout)
	for i, r := range table.Rows {
		if i%2 == 0 {
			left.Add(r)
		} else {
			right.Add(r)
		}
	}
	right.Merge(left)
	merged := right.Totals()

	assert.Equal(t, whole, merged)
	assert.EqualValues(t, 4, whole.Rows)
	assert.EqualValues(t, 1000, whole.Impressions)
	assert.EqualValues(t, 16_000_000, whole.RevenueMicros)
	require.NotNil(t, whole.LatestDate)
	assert.Equal(t, "2025-08-05", DayKey(*whole.LatestDate))
}

func TestTotalsValue(t *testing.T) {
	table := admTable(t, admFixture{date: "2025-08-02", impressions: 1000, clicks: 50, revenue: 20_000_000})
	totals := Aggregate(table.Rows, AdManagerLayout)

	v, ok := totals.Value("adxExchangeLineItemLevelRevenue", AdManagerLayout)
	require.True(t, ok)
	assert.Equal(t, "20000000", v)

	v, ok = totals.Value("adxExchangeLineItemLevelCtr", AdManagerLayout)
	require.True(t, ok)
	assert.Equal(t, "5", v)

	v, ok = totals.Value("reportDate", AdManagerLayout)
	require.True(t, ok)
	assert.Equal(t, "2025-08-02", v)

	_, ok = totals.Value("site", AdManagerLayout)
	assert.False(t, ok)
}
