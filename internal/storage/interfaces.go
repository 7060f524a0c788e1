package storage

import (
	"context"
	"errors"
	"time"

	"github.com/radiusdt/adreport/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique value is already stored.
	ErrDuplicate = errors.New("already exists")
)

// =============================================
// ACCOUNT REGISTRY
// =============================================

// Every record below belongs to an owner, the caller key derived from the
// bearer token. Records of other owners are never listed and are reported
// as ErrNotFound.

// AccountRepo keeps the connected accounts per provider.
type AccountRepo interface {
	List(ctx context.Context, owner string, provider models.Provider) ([]*models.Account, error)
	Upsert(ctx context.Context, owner string, a *models.Account) error
	Delete(ctx context.Context, owner string, provider models.Provider, id string) error
}

// SiteRepo caches the sites of AdSense accounts.
type SiteRepo interface {
	ListByAccount(ctx context.Context, owner, accountID string) ([]models.Site, error)
	ListAll(ctx context.Context, owner string) ([]models.Site, error)
	ReplaceForAccount(ctx context.Context, owner, accountID string, sites []models.Site) error
}

// WebsiteRepo stores the websites the user registered. Add creates a
// record locally; Put and Replace mirror records the reporting API owns.
type WebsiteRepo interface {
	List(ctx context.Context, owner string) ([]*models.Website, error)
	Add(ctx context.Context, owner, url string) (*models.Website, error)
	Put(ctx context.Context, owner string, w models.Website) error
	Replace(ctx context.Context, owner string, websites []models.Website) error
	Delete(ctx context.Context, owner, id string) error
}

// =============================================
// SNAPSHOT ARCHIVE
// =============================================

// SnapshotArchive stores fetched reports for offline viewing.
type SnapshotArchive interface {
	Save(ctx context.Context, s *models.Snapshot) error
	List(ctx context.Context, filter SnapshotFilter) ([]*models.Snapshot, error)
}

// SnapshotFilter narrows a snapshot listing to one owner. Empty provider
// and account match everything.
type SnapshotFilter struct {
	Owner     string
	Provider  models.Provider
	AccountID string
	Limit     int
}

// DefaultSnapshotLimit caps listings without an explicit limit.
const DefaultSnapshotLimit = 100

// Max returns the listing limit, DefaultSnapshotLimit when unset.
func (f SnapshotFilter) Max() int {
	if f.Limit <= 0 {
		return DefaultSnapshotLimit
	}
	return f.Limit
}

func (f SnapshotFilter) matches(s *models.Snapshot) bool {
	if s.Owner != f.Owner {
		return false
	}
	if f.Provider != "" && s.Provider != f.Provider {
		return false
	}
	return f.AccountID == "" || s.AccountID == f.AccountID
}

// =============================================
// REPORT CACHE
// =============================================

// ReportCache stores encoded upstream responses with a TTL.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
