package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/reportapi"
)

func TestFetcherLatestWins(t *testing.T) {
	started := make(chan struct{})
	src := &fakeSource{respond: func(ctx context.Context, q reportapi.Query) (*reportapi.Response, error) {
		if q.DateRange == models.RangeToday {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return admResponse(2, nil), nil
	}}
	f := NewFetcher(src, time.Minute, nil, nil)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.Fetch(context.Background(), "v1", reportapi.Query{Provider: models.ProviderAdManager, AccountID: "1", DateRange: models.RangeToday})
	}()
	<-started

	table, err := f.Fetch(context.Background(), "v1", reportapi.Query{Provider: models.ProviderAdManager, AccountID: "1", DateRange: models.RangeAll})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	wg.Wait()
	assert.ErrorIs(t, firstErr, ErrStale)
}

func TestFetcherViewsAreIndependent(t *testing.T) {
	src := &fakeSource{respond: fixedRows(1)}
	f := NewFetcher(src, 0, nil, nil)

	q := reportapi.Query{Provider: models.ProviderAdManager, AccountID: "1", DateRange: models.RangeAll}
	_, err := f.Fetch(context.Background(), "a", q)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), "b", q)
	require.NoError(t, err)
	assert.Empty(t, f.inflight)
}

func TestFetcherCancel(t *testing.T) {
	started := make(chan struct{})
	src := &fakeSource{respond: func(ctx context.Context, q reportapi.Query) (*reportapi.Response, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	f := NewFetcher(src, time.Minute, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), "v1", reportapi.Query{Provider: models.ProviderAdSense, AccountID: "pub-1", DateRange: models.RangeAll})
		done <- err
	}()
	<-started
	f.Cancel("v1")
	assert.ErrorIs(t, <-done, ErrStale)
}

func TestFetcherPassesErrorsThrough(t *testing.T) {
	boom := &reportapi.APIError{Status: 500, Message: "Failed to fetch all reports"}
	src := &fakeSource{respond: func(context.Context, reportapi.Query) (*reportapi.Response, error) {
		return nil, boom
	}}
	f := NewFetcher(src, time.Minute, nil, nil)

	_, err := f.Fetch(context.Background(), "v1", reportapi.Query{Provider: models.ProviderAdSense, AccountID: "pub-1", DateRange: models.RangeAll})
	var apiErr *reportapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.Status)
}
