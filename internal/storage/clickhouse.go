package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

const snapshotColumns = "id, owner, source, provider, account_id, date_range, start_date, end_date, headers_json, rows_json, totals_json, averages_json, row_count, created_at"

// ClickHouseSnapshotArchive stores snapshots in ClickHouse through
// database/sql. Headers, rows and totals are kept as JSON strings.
type ClickHouseSnapshotArchive struct {
	db *sql.DB
}

func NewClickHouseSnapshotArchive(db *sql.DB) *ClickHouseSnapshotArchive {
	return &ClickHouseSnapshotArchive{db: db}
}

func (a *ClickHouseSnapshotArchive) Save(ctx context.Context, s *models.Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	headers, err := json.Marshal(s.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	rows, err := json.Marshal(s.Rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	totals, err := json.Marshal(s.Totals)
	if err != nil {
		return fmt.Errorf("failed to encode totals: %w", err)
	}
	averages, err := json.Marshal(s.Averages)
	if err != nil {
		return fmt.Errorf("failed to encode averages: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		"INSERT INTO report_snapshots ("+snapshotColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.Owner, s.Source, string(s.Provider), s.AccountID, string(s.DateRange), dayPtr(s.StartDate), dayPtr(s.EndDate),
		string(headers), string(rows), string(totals), string(averages), s.RowCount, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (a *ClickHouseSnapshotArchive) List(ctx context.Context, f SnapshotFilter) ([]*models.Snapshot, error) {
	query, args := snapshotListQuery(f)
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	res := make([]*models.Snapshot, 0)
	for rows.Next() {
		var (
			s                               models.Snapshot
			provider, dateRange             string
			start, end                      sql.NullTime
			headers, body, totals, averages string
		)
		err := rows.Scan(&s.ID, &s.Owner, &s.Source, &provider, &s.AccountID, &dateRange, &start, &end,
			&headers, &body, &totals, &averages, &s.RowCount, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Provider = models.Provider(provider)
		s.DateRange = models.DateRange(dateRange)
		if start.Valid {
			s.StartDate = &start.Time
		}
		if end.Valid {
			s.EndDate = &end.Time
		}
		if err := decodeSnapshotJSON(&s, headers, body, totals, averages); err != nil {
			return nil, err
		}
		res = append(res, &s)
	}
	return res, rows.Err()
}

func snapshotListQuery(f SnapshotFilter) (string, []any) {
	where := []string{"owner = ?"}
	args := []any{f.Owner}
	if f.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, string(f.Provider))
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}

	var b strings.Builder
	b.WriteString("SELECT " + snapshotColumns + " FROM report_snapshots")
	b.WriteString(" WHERE " + strings.Join(where, " AND "))
	b.WriteString(" ORDER BY created_at DESC LIMIT ?")
	args = append(args, f.Max())
	return b.String(), args
}

func decodeSnapshotJSON(s *models.Snapshot, headers, rows, totals, averages string) error {
	if err := json.Unmarshal([]byte(headers), &s.Headers); err != nil {
		return fmt.Errorf("failed to decode snapshot %s headers: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(rows), &s.Rows); err != nil {
		return fmt.Errorf("failed to decode snapshot %s rows: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(totals), &s.Totals); err != nil {
		return fmt.Errorf("failed to decode snapshot %s totals: %w", s.ID, err)
	}
	if averages != "" {
		if err := json.Unmarshal([]byte(averages), &s.Averages); err != nil {
			return fmt.Errorf("failed to decode snapshot %s averages: %w", s.ID, err)
		}
	}
	return nil
}

// dayPtr drops the time of day; nil stays NULL.
func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
