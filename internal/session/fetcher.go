package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/report"
	"github.com/radiusdt/adreport/internal/reportapi"
)

// ErrStale is returned when a newer fetch for the same view superseded this one.
var ErrStale = errors.New("fetch superseded")

type flight struct {
	token  string
	cancel context.CancelFunc
}

// Fetcher runs report fetches so that only the latest fetch per view
// commits. Starting a fetch cancels the one in flight for the same view.
type Fetcher struct {
	source  reportapi.Source
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]flight
}

func NewFetcher(source reportapi.Source, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		source:   source,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
		inflight: make(map[string]flight),
	}
}

// Fetch loads and normalizes the report of q for view id. It returns
// ErrStale if another Fetch for id started before this one finished.
func (f *Fetcher) Fetch(ctx context.Context, id string, q reportapi.Query) (*report.Table, error) {
	ctx, token := f.begin(ctx, id)

	resp, err := f.source.FetchReport(ctx, q)
	if !f.finish(id, token) {
		f.metrics.RecordStaleFetch()
		f.logger.Debug("discarding superseded fetch", zap.String("view_id", id), zap.String("query", q.Key()))
		return nil, ErrStale
	}
	if err != nil {
		return nil, err
	}

	t, err := report.Normalize(resp.Headers, resp.Rows, report.LayoutFor(q.Provider))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize report: %w", err)
	}
	return t, nil
}

// Cancel aborts the fetch in flight for id, if any.
func (f *Fetcher) Cancel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl, ok := f.inflight[id]; ok {
		fl.cancel()
		delete(f.inflight, id)
	}
}

func (f *Fetcher) begin(parent context.Context, id string) (context.Context, string) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, f.timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	token := uuid.NewString()

	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.inflight[id]; ok {
		prev.cancel()
	}
	f.inflight[id] = flight{token: token, cancel: cancel}
	return ctx, token
}

// finish releases the flight and reports whether token was still current.
func (f *Fetcher) finish(id, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.inflight[id]
	if !ok || fl.token != token {
		return false
	}
	fl.cancel()
	delete(f.inflight, id)
	return true
}
