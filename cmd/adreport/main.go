package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/config"
	"github.com/radiusdt/adreport/internal/database"
	"github.com/radiusdt/adreport/internal/geo"
	"github.com/radiusdt/adreport/internal/httpserver"
	applog "github.com/radiusdt/adreport/internal/logger"
	"github.com/radiusdt/adreport/internal/metrics"
	"github.com/radiusdt/adreport/internal/middleware"
	"github.com/radiusdt/adreport/internal/models"
	"github.com/radiusdt/adreport/internal/reportapi"
	"github.com/radiusdt/adreport/internal/session"
	"github.com/radiusdt/adreport/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	format := cfg.Log.Format
	if cfg.IsDevelopment() {
		format = "console"
	}
	logger, err := applog.New(cfg.Log.Level, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting adreport",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
	}

	deps := &httpserver.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
	}

	// PostgreSQL backs the account registry.
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("PostgreSQL not available, using in-memory registry", zap.Error(err))
		} else {
			defer db.Close()
			deps.Accounts = storage.NewPostgresAccountRepo(db.Pool)
			deps.Sites = storage.NewPostgresSiteRepo(db.Pool)
			deps.Websites = storage.NewPostgresWebsiteRepo(db.Pool)
			go reportDBStats(ctx, db, m)
		}
	}

	// Redis holds cached reports and view state.
	var reportCache storage.ReportCache = storage.NewInMemoryReportCache()
	var views session.Store = session.NewMemoryStore(cfg.View.SessionTTL)
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, caching views in memory", zap.Error(err))
		} else {
			defer rdb.Close()
			reportCache = storage.NewRedisReportCache(rdb.Client)
			views = session.NewRedisStore(rdb.Client, cfg.View.SessionTTL)
		}
	}

	// ClickHouse archives report snapshots.
	var archive storage.SnapshotArchive = storage.NewInMemorySnapshotArchive()
	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("ClickHouse not available, keeping snapshots in memory", zap.Error(err))
		} else {
			defer ch.Close()
			archive = storage.NewClickHouseSnapshotArchive(ch.DB)
		}
	}
	deps.Snapshots = archive

	loc, _ := cfg.View.Location()
	var lookup geo.Lookuper
	if cfg.Geo.Enabled {
		mm, err := geo.OpenMaxMind(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("GeoIP database not available, using default time zone",
				zap.String("path", cfg.Geo.DatabasePath),
				zap.Error(err),
			)
		} else {
			defer mm.Close()
			lookup = mm
		}
	}
	deps.Geo = geo.NewResolver(lookup, loc, logger, m)

	client := reportapi.NewClient(cfg.Upstream.BaseURL, nil, cfg.Upstream.Timeout, logger, m)
	reports := reportapi.NewCachedSource(client, reportCache, cfg.View.ReportCacheTTL, loc, logger, m)
	deps.Directory = client
	deps.Reports = reports

	defaultRange, err := models.ParseDateRange(cfg.View.DefaultRange)
	if err != nil {
		logger.Warn("invalid default range, using LAST_7_DAYS", zap.Error(err))
		defaultRange = models.RangeLast7Days
	}
	deps.Views = session.NewManager(
		views,
		session.NewFetcher(reports, cfg.View.FetchTimeout, logger, m),
		archive,
		session.Config{DefaultRange: defaultRange, PageSize: cfg.View.PageSize},
		logger, m,
	)

	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m)
		deps.RateLimiter = rl
		go cleanupLimiters(ctx, rl, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpserver.NewServer(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func cleanupLimiters(ctx context.Context, rl *middleware.RateLimitMiddleware, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.CleanupIPLimiters(30 * time.Minute); n > 0 {
				logger.Debug("removed idle rate limiters", zap.Int("count", n))
			}
		}
	}
}

func reportDBStats(ctx context.Context, db *database.PostgresDB, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := db.Stats()
			m.UpdateDBStats(int(st.IdleConns()), int(st.AcquiredConns()), int(st.TotalConns()))
		}
	}
}
