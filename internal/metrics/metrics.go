package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the report service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Upstream reporting API
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	// Report cache
	CacheLookups *prometheus.CounterVec

	// Views
	OpenViews     prometheus.Gauge
	ViewRenders   *prometheus.CounterVec
	StaleFetches  prometheus.Counter
	FetchFailures *prometheus.CounterVec
	RenderedRows  prometheus.Histogram

	// Archive
	SnapshotWrites *prometheus.CounterVec

	// HTTP
	HTTPRequests  *prometheus.CounterVec
	HTTPLatency   *prometheus.HistogramVec
	RateLimitHits *prometheus.CounterVec

	// System
	DBConnections    *prometheus.GaugeVec
	GeoLookupLatency *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// means the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests sent to the reporting API",
			},
			[]string{"endpoint", "status"},
		),
		UpstreamLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Reporting API latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_cache_lookups_total",
				Help:      "Report cache lookups by result",
			},
			[]string{"result"},
		),
		OpenViews: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_views",
				Help:      "Report views currently open",
			},
		),
		ViewRenders: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_renders_total",
				Help:      "Rendered view pages",
			},
			[]string{"provider"},
		),
		StaleFetches: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_fetches_total",
				Help:      "Fetch results discarded because a newer fetch superseded them",
			},
		),
		FetchFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_failures_total",
				Help:      "Report fetches that failed",
			},
			[]string{"provider"},
		),
		RenderedRows: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "filtered_rows",
				Help:      "Rows surviving the filter per render",
				Buckets:   []float64{0, 10, 30, 100, 300, 1000, 3000, 10000},
			},
		),
		SnapshotWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_writes_total",
				Help:      "Report snapshots archived",
			},
			[]string{"provider", "status"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		HTTPLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_latency_seconds",
				Help:      "HTTP handler latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
		DBConnections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Postgres pool connections by state",
			},
			[]string{"state"},
		),
		GeoLookupLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "geo_lookup_latency_seconds",
				Help:      "GeoIP lookup latency",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01},
			},
			[]string{"found"},
		),
	}
}

// Handler returns the metrics endpoint for g. A nil g serves the default
// gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordUpstream records one reporting API call.
func (m *Metrics) RecordUpstream(endpoint string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(endpoint, label).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordCacheLookup records a report cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ViewOpened increments the open view gauge.
func (m *Metrics) ViewOpened() {
	if m == nil {
		return
	}
	m.OpenViews.Inc()
}

// ViewClosed decrements the open view gauge.
func (m *Metrics) ViewClosed() {
	if m == nil {
		return
	}
	m.OpenViews.Dec()
}

// RecordRender records a rendered page and the filtered row count behind it.
func (m *Metrics) RecordRender(provider string, filteredRows int) {
	if m == nil {
		return
	}
	m.ViewRenders.WithLabelValues(provider).Inc()
	m.RenderedRows.Observe(float64(filteredRows))
}

// RecordStaleFetch records a discarded fetch result.
func (m *Metrics) RecordStaleFetch() {
	if m == nil {
		return
	}
	m.StaleFetches.Inc()
}

// RecordFetchFailure records a failed report fetch.
func (m *Metrics) RecordFetchFailure(provider string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(provider).Inc()
}

// RecordSnapshot records an archive write.
func (m *Metrics) RecordSnapshot(provider string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SnapshotWrites.WithLabelValues(provider, status).Inc()
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordGeoLookup records a GeoIP lookup.
func (m *Metrics) RecordGeoLookup(found bool, latency time.Duration) {
	if m == nil {
		return
	}
	m.GeoLookupLatency.WithLabelValues(strconv.FormatBool(found)).Observe(latency.Seconds())
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	if m == nil {
		return
	}
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}
