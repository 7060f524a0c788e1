package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radiusdt/adreport/internal/models"
)

type accountKey struct {
	owner    string
	provider models.Provider
	id       string
}

// InMemoryAccountRepo is a thread-safe in-memory AccountRepo.
type InMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[accountKey]*models.Account
}

// NewInMemoryAccountRepo creates an empty account registry.
func NewInMemoryAccountRepo() *InMemoryAccountRepo {
	return &InMemoryAccountRepo{accounts: make(map[accountKey]*models.Account)}
}

// List returns the owner's accounts of provider ordered by id.
func (r *InMemoryAccountRepo) List(_ context.Context, owner string, provider models.Provider) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Account, 0)
	for k, a := range r.accounts {
		if k.owner == owner && k.provider == provider {
			cp := *a
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Upsert inserts or replaces the account.
func (r *InMemoryAccountRepo) Upsert(_ context.Context, owner string, a *models.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	r.accounts[accountKey{owner, a.Provider, a.ID}] = &cp
	return nil
}

// Delete removes the account or returns ErrNotFound.
func (r *InMemoryAccountRepo) Delete(_ context.Context, owner string, provider models.Provider, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := accountKey{owner, provider, id}
	if _, ok := r.accounts[k]; !ok {
		return ErrNotFound
	}
	delete(r.accounts, k)
	return nil
}

type ownedKey struct {
	owner string
	id    string
}

// InMemorySiteRepo is a thread-safe in-memory SiteRepo.
type InMemorySiteRepo struct {
	mu    sync.RWMutex
	sites map[ownedKey][]models.Site
}

func NewInMemorySiteRepo() *InMemorySiteRepo {
	return &InMemorySiteRepo{sites: make(map[ownedKey][]models.Site)}
}

// ListByAccount returns the cached sites of the account, possibly none.
func (r *InMemorySiteRepo) ListByAccount(_ context.Context, owner, accountID string) ([]models.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Site{}, r.sites[ownedKey{owner, accountID}]...), nil
}

// ListAll returns every cached site of the owner ordered by account.
func (r *InMemorySiteRepo) ListAll(_ context.Context, owner string) ([]models.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]models.Site, 0)
	for k, sites := range r.sites {
		if k.owner == owner {
			res = append(res, sites...)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].AccountID != res[j].AccountID {
			return res[i].AccountID < res[j].AccountID
		}
		return res[i].Domain < res[j].Domain
	})
	return res, nil
}

// ReplaceForAccount swaps the cached site list of the account.
func (r *InMemorySiteRepo) ReplaceForAccount(_ context.Context, owner, accountID string, sites []models.Site) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]models.Site, len(sites))
	for i, s := range sites {
		s.AccountID = accountID
		cp[i] = s
	}
	r.sites[ownedKey{owner, accountID}] = cp
	return nil
}

// InMemoryWebsiteRepo is a thread-safe in-memory WebsiteRepo.
type InMemoryWebsiteRepo struct {
	mu       sync.RWMutex
	websites map[ownedKey]*models.Website
}

func NewInMemoryWebsiteRepo() *InMemoryWebsiteRepo {
	return &InMemoryWebsiteRepo{websites: make(map[ownedKey]*models.Website)}
}

// List returns the owner's websites, newest first.
func (r *InMemoryWebsiteRepo) List(_ context.Context, owner string) ([]*models.Website, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Website, 0)
	for k, w := range r.websites {
		if k.owner == owner {
			cp := *w
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].URL < res[j].URL
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// Add registers url. URLs are unique per owner ignoring case.
func (r *InMemoryWebsiteRepo) Add(_ context.Context, owner, url string) (*models.Website, error) {
	url = strings.TrimSpace(url)
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, w := range r.websites {
		if k.owner == owner && strings.EqualFold(w.URL, url) {
			return nil, ErrDuplicate
		}
	}
	w := &models.Website{ID: uuid.NewString(), URL: url, CreatedAt: time.Now().UTC()}
	r.websites[ownedKey{owner, w.ID}] = w
	cp := *w
	return &cp, nil
}

// Put stores w under its id, replacing an earlier copy.
func (r *InMemoryWebsiteRepo) Put(_ context.Context, owner string, w models.Website) error {
	if w.ID == "" {
		return errors.New("website id is required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.websites[ownedKey{owner, w.ID}] = &w
	return nil
}

// Replace swaps the owner's websites for websites.
func (r *InMemoryWebsiteRepo) Replace(_ context.Context, owner string, websites []models.Website) error {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.websites {
		if k.owner == owner {
			delete(r.websites, k)
		}
	}
	for _, w := range websites {
		if w.ID == "" {
			continue
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		cp := w
		r.websites[ownedKey{owner, w.ID}] = &cp
	}
	return nil
}

// Delete removes the website or returns ErrNotFound.
func (r *InMemoryWebsiteRepo) Delete(_ context.Context, owner, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := ownedKey{owner, id}
	if _, ok := r.websites[k]; !ok {
		return ErrNotFound
	}
	delete(r.websites, k)
	return nil
}

// InMemorySnapshotArchive keeps snapshots in process memory.
type InMemorySnapshotArchive struct {
	mu        sync.RWMutex
	snapshots []*models.Snapshot
}

func NewInMemorySnapshotArchive() *InMemorySnapshotArchive {
	return &InMemorySnapshotArchive{}
}

// Save appends the snapshot.
func (a *InMemorySnapshotArchive) Save(_ context.Context, s *models.Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *s
	a.snapshots = append(a.snapshots, &cp)
	return nil
}

// List returns matching snapshots, newest first.
func (a *InMemorySnapshotArchive) List(_ context.Context, f SnapshotFilter) ([]*models.Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res := make([]*models.Snapshot, 0)
	for i := len(a.snapshots) - 1; i >= 0 && len(res) < f.Max(); i-- {
		if s := a.snapshots[i]; f.matches(s) {
			cp := *s
			res = append(res, &cp)
		}
	}
	return res, nil
}

type cacheEntry struct {
	value   []byte
	expires time.Time
}

// InMemoryReportCache is a TTL map used when Redis is unavailable.
type InMemoryReportCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewInMemoryReportCache() *InMemoryReportCache {
	return &InMemoryReportCache{entries: make(map[string]cacheEntry), now: time.Now}
}

// Get returns the live entry for key. Expired entries are dropped.
func (c *InMemoryReportCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores value for ttl.
func (c *InMemoryReportCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: append([]byte(nil), value...), expires: c.now().Add(ttl)}
	return nil
}
