package report

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, ok := ParseDay(s)
	if !ok {
		panic("bad test date " + s)
	}
	return d
}

func dayPtr(s string) *time.Time {
	d := day(s)
	return &d
}

type admFixture struct {
	date        string
	site        string
	country     string
	impressions int64
	clicks      int64
	revenue     int64 // micros
}

func admTable(t *testing.T, fixtures ...admFixture) *Table {
	t.Helper()

	raw := make([]RawRow, 0, len(fixtures))
	for _, f := range fixtures {
		fields := map[string]string{
			"site":                                f.site,
			"country":                             f.country,
			"adxExchangeLineItemLevelImpressions": strconv.FormatInt(f.impressions, 10),
			"adxExchangeLineItemLevelClicks":      strconv.FormatInt(f.clicks, 10),
			"adxExchangeLineItemLevelRevenue":     strconv.FormatInt(f.revenue, 10),
		}
		if f.date != "" {
			fields["reportDate"] = f.date
		}
		raw = append(raw, NamedRow(fields))
	}

	table, err := Normalize(nil, raw, AdManagerLayout)
	require.NoError(t, err)
	return table
}

func columnValues(rows []Row, key string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r[key]
	}
	return out
}
