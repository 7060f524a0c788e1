// Package geo resolves the viewer's time zone, which decides what "today"
// means for date-range filters.
package geo

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/report"
)

// TimezoneHeader lets the client state its IANA time zone explicitly.
const TimezoneHeader = "X-Timezone"

// Lookuper returns the IANA time zone of an IP address, or "" if unknown.
type Lookuper interface {
	TimeZone(ip net.IP) (string, error)
}

// MaxMindLookup reads time zones from a GeoLite2/GeoIP2 City database.
type MaxMindLookup struct {
	reader *maxminddb.Reader
}

type cityRecord struct {
	Location struct {
		TimeZone string `maxminddb:"time_zone"`
	} `maxminddb:"location"`
}

// OpenMaxMind opens the database at path.
func OpenMaxMind(path string) (*MaxMindLookup, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindLookup{reader: reader}, nil
}

func (m *MaxMindLookup) TimeZone(ip net.IP) (string, error) {
	var rec cityRecord
	if err := m.reader.Lookup(ip, &rec); err != nil {
		return "", err
	}
	return rec.Location.TimeZone, nil
}

// Close closes the GeoIP database.
func (m *MaxMindLookup) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

// Resolver picks the viewer's location: the X-Timezone header, then the
// GeoIP zone of the client address, then the fallback.
type Resolver struct {
	lookup   Lookuper
	fallback *time.Location
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewResolver creates a resolver. lookup may be nil; fallback nil means UTC.
func NewResolver(lookup Lookuper, fallback *time.Location, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if fallback == nil {
		fallback = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{lookup: lookup, fallback: fallback, logger: logger, metrics: m, now: time.Now}
}

// Location returns the time zone for r.
func (res *Resolver) Location(r *http.Request) *time.Location {
	if name := strings.TrimSpace(r.Header.Get(TimezoneHeader)); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
		res.logger.Debug("ignoring unknown time zone header", zap.String("tz", name))
	}

	if res.lookup == nil {
		return res.fallback
	}
	ip := net.ParseIP(ClientIP(r))
	if ip == nil {
		return res.fallback
	}

	start := time.Now()
	name, err := res.lookup.TimeZone(ip)
	res.metrics.RecordGeoLookup(err == nil && name != "", time.Since(start))
	if err != nil {
		res.logger.Warn("GeoIP lookup failed", zap.String("ip", ip.String()), zap.Error(err))
		return res.fallback
	}
	if name == "" {
		return res.fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return res.fallback
	}
	return loc
}

// Today returns the viewer's current date as a UTC-midnight day value.
func (res *Resolver) Today(r *http.Request) time.Time {
	return report.Today(res.now(), res.Location(r))
}

// ClientIP extracts the client IP from the request.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
