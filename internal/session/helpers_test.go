package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
	"github.com/radiusdt/adreport/internal/reportapi"
	"github.com/radiusdt/adreport/internal/storage"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   []reportapi.Query
	respond func(ctx context.Context, q reportapi.Query) (*reportapi.Response, error)
}

func (f *fakeSource) FetchReport(ctx context.Context, q reportapi.Query) (*reportapi.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	respond := f.respond
	f.mu.Unlock()
	return respond(ctx, q)
}

func (f *fakeSource) setRespond(fn func(ctx context.Context, q reportapi.Query) (*reportapi.Response, error)) {
	f.mu.Lock()
	f.respond = fn
	f.mu.Unlock()
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// admResponse builds n Ad Manager rows dated 2025-08-01, alternating
// between a.com and b.com.
func admResponse(n int, site func(i int) string) *reportapi.Response {
	if site == nil {
		site = func(i int) string {
			if i%2 == 0 {
				return "a.com"
			}
			return "b.com"
		}
	}
	resp := &reportapi.Response{
		Headers: report.HeaderNames("reportDate", "site", "adxExchangeLineItemLevelImpressions",
			"adxExchangeLineItemLevelClicks", "adxExchangeLineItemLevelRevenue"),
	}
	for i := 0; i < n; i++ {
		resp.Rows = append(resp.Rows, report.NamedRow(map[string]string{
			"reportDate":                          "2025-08-01",
			"site":                                site(i),
			"adxExchangeLineItemLevelImpressions": fmt.Sprint(100 + i),
			"adxExchangeLineItemLevelClicks":      "1",
			"adxExchangeLineItemLevelRevenue":     "1000000",
		}))
	}
	return resp
}

func fixedRows(n int) func(context.Context, reportapi.Query) (*reportapi.Response, error) {
	return func(context.Context, reportapi.Query) (*reportapi.Response, error) {
		return admResponse(n, nil), nil
	}
}

func newTestManager(src *fakeSource) (*Manager, *storage.InMemorySnapshotArchive) {
	archive := storage.NewInMemorySnapshotArchive()
	m := NewManager(
		NewMemoryStore(time.Hour),
		NewFetcher(src, time.Minute, nil, nil),
		archive,
		Config{DefaultRange: models.RangeAll, PageSize: 30},
		nil, nil,
	)
	m.now = func() time.Time { return time.Date(2025, 8, 3, 9, 0, 0, 0, time.UTC) }
	return m, archive
}

var testToday = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
