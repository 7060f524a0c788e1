package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/radiusdt/adreport/internal/config"
)

// ClickHouseDB holds the database/sql handle of the snapshot archive.
type ClickHouseDB struct {
	DB     *sql.DB
	logger *zap.Logger
}

// NewClickHouseDB opens the archive connection and creates the snapshot
// table if needed.
func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouseDB, error) {
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	if _, err := db.ExecContext(ctx, clickhouseSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}

	logger.Info("connected to ClickHouse",
		zap.Strings("addr", cfg.Addr),
		zap.String("database", cfg.Database),
	)

	return &ClickHouseDB{DB: db, logger: logger}, nil
}

const clickhouseSchema = `
CREATE TABLE IF NOT EXISTS report_snapshots (
	id            String,
	owner         String,
	source        LowCardinality(String),
	provider      LowCardinality(String),
	account_id    String,
	date_range    LowCardinality(String),
	start_date    Nullable(Date),
	end_date      Nullable(Date),
	headers_json  String,
	rows_json     String,
	totals_json   String,
	averages_json String,
	row_count     UInt32,
	created_at    DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (owner, provider, account_id, created_at)`

// Close closes the archive connection.
func (c *ClickHouseDB) Close() error {
	if c.DB != nil {
		c.logger.Info("ClickHouse connection closed")
		return c.DB.Close()
	}
	return nil
}

// Health checks if ClickHouse is reachable.
func (c *ClickHouseDB) Health(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}
