package reportapi

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/report"
)

// Cache stores encoded responses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedSource serves repeated queries from a cache. Entries are scoped to
// the caller's token so one user never sees another user's report.
type CachedSource struct {
	next    Source
	cache   Cache
	ttl     time.Duration
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCachedSource wraps next. A non-positive ttl disables caching. Relative
// ranges are cached per day of loc.
func NewCachedSource(next Source, cache Cache, ttl time.Duration, loc *time.Location, logger *zap.Logger, m *metrics.Metrics) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CachedSource{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// FetchReport returns the cached response for q or fetches and stores it.
// Cache failures are logged and bypassed.
func (s *CachedSource) FetchReport(ctx context.Context, q Query) (*Response, error) {
	if s.cache == nil || s.ttl <= 0 {
		return s.next.FetchReport(ctx, q)
	}
	key := CacheKey(q, TokenFrom(ctx), report.Today(s.now(), s.loc))

	if b, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("Report cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var resp Response
		if err := json.Unmarshal(b, &resp); err == nil {
			s.metrics.RecordCacheLookup(true)
			return &resp, nil
		}
		s.logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
	}
	s.metrics.RecordCacheLookup(false)

	resp, err := s.next.FetchReport(ctx, q)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			s.logger.Warn("Report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

// CacheKey builds the cache key of q for the holder of token. Ranges
// relative to today carry the day they were resolved on.
func CacheKey(q Query, token string, today time.Time) string {
	key := "report:" + q.Key()
	if q.DateRange != models.RangeAll && q.DateRange != models.RangeCustom {
		key += "@" + report.DayKey(today)
	}
	return key + ":" + ownerKey(token)
}
