package models

import (
	"errors"
	"time"
)

// Snapshot sources.
const (
	// SnapshotView is a snapshot taken from an open view.
	SnapshotView = "view"
	// SnapshotOffline is a report stored by the reporting API.
	SnapshotOffline = "offline"
)

// Snapshot is an archived copy of a fetched report ("offline report").
// Rows hold the normalized cell strings in Headers order.
type Snapshot struct {
	ID        string     `json:"id"`
	Owner     string     `json:"-"`
	Source    string     `json:"source"`
	Provider  Provider   `json:"provider"`
	AccountID string     `json:"account_id"`
	DateRange DateRange  `json:"date_range"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	Totals    []string   `json:"totals"`
	Averages  []string   `json:"averages,omitempty"`
	RowCount  int        `json:"row_count"`
	CreatedAt time.Time  `json:"created_at"`
}

// Validate checks the fields required by the archive.
func (s *Snapshot) Validate() error {
	if s == nil {
		return errors.New("snapshot is nil")
	}
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.AccountID == "" {
		return errors.New("account_id is required")
	}
	if len(s.Headers) == 0 {
		return errors.New("headers are required")
	}
	return nil
}
