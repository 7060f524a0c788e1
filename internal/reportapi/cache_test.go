package reportapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingSource) FetchReport(ctx context.Context, q Query) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{
		Headers: report.HeaderNames("DATE"),
		Rows:    []report.RawRow{report.PositionalRow(q.AccountID)},
	}, nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	b, ok := c.entries[key]
	return b, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func TestCachedSource(t *testing.T) {
	src := &countingSource{}
	cache := &mapCache{entries: map[string][]byte{}}
	cs := NewCachedSource(src, cache, time.Minute, nil, nil, nil)

	q := Query{Provider: models.ProviderAdSense, AccountID: "pub-1", DateRange: models.RangeToday}
	alice := WithToken(context.Background(), "alice")
	bob := WithToken(context.Background(), "bob")

	first, err := cs.FetchReport(alice, q)
	require.NoError(t, err)
	second, err := cs.FetchReport(alice, q)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first, second)

	_, err = cs.FetchReport(bob, q)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "entries are scoped per token")

	q.DateRange = models.RangeYesterday
	_, err = cs.FetchReport(alice, q)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestCachedSourceBypassesBrokenCache(t *testing.T) {
	src := &countingSource{}
	cs := NewCachedSource(src, &mapCache{entries: map[string][]byte{}, failGet: true}, time.Minute, nil, nil, nil)

	q := Query{Provider: models.ProviderAdManager, AccountID: "1", DateRange: models.RangeAll}
	for i := 0; i < 2; i++ {
		_, err := cs.FetchReport(context.Background(), q)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.calls)
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: &APIError{Status: 500}}
	cache := &mapCache{entries: map[string][]byte{}}
	cs := NewCachedSource(src, cache, time.Minute, nil, nil, nil)

	q := Query{Provider: models.ProviderAdManager, AccountID: "1", DateRange: models.RangeAll}
	_, err := cs.FetchReport(context.Background(), q)
	require.Error(t, err)
	assert.Empty(t, cache.entries)
}

func TestQueryKey(t *testing.T) {
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC)

	named := Query{Provider: models.ProviderAdSense, AccountID: "a", DateRange: models.RangeToday, StartDate: &start}
	assert.Equal(t, "adsense|a|TODAY", named.Key())

	custom := Query{Provider: models.ProviderAdSense, AccountID: "a", DateRange: models.RangeCustom, StartDate: &start, EndDate: &end}
	assert.Equal(t, "adsense|a|CUSTOM|2025-08-01|2025-08-02", custom.Key())

	day := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.NotEqual(t, CacheKey(named, "x", day), CacheKey(named, "y", day))
	assert.NotEqual(t, CacheKey(named, "x", day), CacheKey(named, "x", day.AddDate(0, 0, 1)))
	assert.Equal(t, CacheKey(custom, "x", day), CacheKey(custom, "x", day.AddDate(0, 0, 1)))
}

func TestCachedSourceRollsOverAtMidnight(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	now := time.Date(2025, 8, 1, 23, 59, 0, 0, loc)

	src := &countingSource{}
	cs := NewCachedSource(src, &mapCache{entries: map[string][]byte{}}, time.Hour, loc, nil, nil)
	cs.now = func() time.Time { return now }
	ctx := WithToken(context.Background(), "alice")

	today := Query{Provider: models.ProviderAdSense, AccountID: "pub-1", DateRange: models.RangeToday}
	all := Query{Provider: models.ProviderAdSense, AccountID: "pub-1", DateRange: models.RangeAll}
	for _, q := range []Query{today, all, today, all} {
		_, err := cs.FetchReport(ctx, q)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.calls)

	now = now.Add(2 * time.Minute)
	for _, q := range []Query{today, all} {
		_, err := cs.FetchReport(ctx, q)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.calls, "TODAY is fetched again on the new day, ALL is not")
}
