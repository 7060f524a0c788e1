package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/radiusdt/adreport/internal/models"
)

const pgUniqueViolation = "23505"

// PgxPool is the part of *pgxpool.Pool the repositories use.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresAccountRepo implements AccountRepo using PostgreSQL.
type PostgresAccountRepo struct {
	pool PgxPool
}

func NewPostgresAccountRepo(pool PgxPool) *PostgresAccountRepo {
	return &PostgresAccountRepo{pool: pool}
}

func (r *PostgresAccountRepo) List(ctx context.Context, owner string, provider models.Provider) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider, id, display_name, email, google_id, updated_at
		FROM accounts WHERE owner = $1 AND provider = $2 ORDER BY id
	`, owner, string(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		var a models.Account
		var p string
		if err := rows.Scan(&p, &a.ID, &a.DisplayName, &a.Email, &a.GoogleID, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Provider = models.Provider(p)
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (r *PostgresAccountRepo) Upsert(ctx context.Context, owner string, a *models.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (owner, provider, id, display_name, email, google_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner, provider, id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			google_id = EXCLUDED.google_id,
			updated_at = EXCLUDED.updated_at
	`, owner, string(a.Provider), a.ID, a.DisplayName, a.Email, a.GoogleID, updated)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// Delete removes the account. Deleting an AdSense account also drops its
// cached sites in the same transaction.
func (r *PostgresAccountRepo) Delete(ctx context.Context, owner string, provider models.Provider, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE owner = $1 AND provider = $2 AND id = $3`, owner, string(provider), id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if provider == models.ProviderAdSense {
		if _, err := tx.Exec(ctx, `DELETE FROM account_sites WHERE owner = $1 AND account_id = $2`, owner, id); err != nil {
			return fmt.Errorf("failed to delete account sites: %w", err)
		}
	}
	return tx.Commit(ctx)
}

var siteColumns = []string{"owner", "account_id", "name", "domain", "state"}

// PostgresSiteRepo implements SiteRepo using PostgreSQL.
type PostgresSiteRepo struct {
	pool PgxPool
}

func NewPostgresSiteRepo(pool PgxPool) *PostgresSiteRepo {
	return &PostgresSiteRepo{pool: pool}
}

func (r *PostgresSiteRepo) ListByAccount(ctx context.Context, owner, accountID string) ([]models.Site, error) {
	return r.list(ctx, `
		SELECT account_id, name, domain, state
		FROM account_sites WHERE owner = $1 AND account_id = $2 ORDER BY domain
	`, owner, accountID)
}

func (r *PostgresSiteRepo) ListAll(ctx context.Context, owner string) ([]models.Site, error) {
	return r.list(ctx, `
		SELECT account_id, name, domain, state
		FROM account_sites WHERE owner = $1 ORDER BY account_id, domain
	`, owner)
}

func (r *PostgresSiteRepo) list(ctx context.Context, query string, args ...any) ([]models.Site, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	sites := make([]models.Site, 0)
	for rows.Next() {
		var s models.Site
		if err := rows.Scan(&s.AccountID, &s.Name, &s.Domain, &s.State); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// ReplaceForAccount swaps the cached sites of the account in one
// transaction. Sites with a repeated name keep the last entry.
func (r *PostgresSiteRepo) ReplaceForAccount(ctx context.Context, owner, accountID string, sites []models.Site) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM account_sites WHERE owner = $1 AND account_id = $2`, owner, accountID); err != nil {
		return fmt.Errorf("failed to clear sites: %w", err)
	}

	if rows := siteRows(owner, accountID, sites); len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"account_sites"}, siteColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to insert sites: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func siteRows(owner, accountID string, sites []models.Site) [][]any {
	index := make(map[string]int, len(sites))
	rows := make([][]any, 0, len(sites))
	for _, s := range sites {
		row := []any{owner, accountID, s.Name, s.Domain, s.State}
		if i, ok := index[s.Name]; ok {
			rows[i] = row
			continue
		}
		index[s.Name] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

var websiteColumns = []string{"owner", "id", "url", "created_at"}

// PostgresWebsiteRepo implements WebsiteRepo using PostgreSQL.
type PostgresWebsiteRepo struct {
	pool PgxPool
}

func NewPostgresWebsiteRepo(pool PgxPool) *PostgresWebsiteRepo {
	return &PostgresWebsiteRepo{pool: pool}
}

func (r *PostgresWebsiteRepo) List(ctx context.Context, owner string) ([]*models.Website, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, url, created_at FROM websites WHERE owner = $1 ORDER BY created_at DESC, url
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	defer rows.Close()

	websites := make([]*models.Website, 0)
	for rows.Next() {
		var w models.Website
		if err := rows.Scan(&w.ID, &w.URL, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan website: %w", err)
		}
		websites = append(websites, &w)
	}
	return websites, rows.Err()
}

func (r *PostgresWebsiteRepo) Add(ctx context.Context, owner, url string) (*models.Website, error) {
	w := &models.Website{ID: uuid.NewString(), URL: strings.TrimSpace(url), CreatedAt: time.Now().UTC()}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO websites (owner, id, url, created_at) VALUES ($1, $2, $3, $4)
	`, owner, w.ID, w.URL, w.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to add website: %w", err)
	}
	return w, nil
}

func (r *PostgresWebsiteRepo) Put(ctx context.Context, owner string, w models.Website) error {
	if w.ID == "" {
		return errors.New("website id is required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO websites (owner, id, url, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, id) DO UPDATE SET url = EXCLUDED.url
	`, owner, w.ID, w.URL, w.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to store website: %w", err)
	}
	return nil
}

// Replace swaps the owner's websites in one transaction. Entries without an
// id or with a URL already seen are skipped.
func (r *PostgresWebsiteRepo) Replace(ctx context.Context, owner string, websites []models.Website) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM websites WHERE owner = $1`, owner); err != nil {
		return fmt.Errorf("failed to clear websites: %w", err)
	}
	if rows := websiteRows(owner, websites, time.Now().UTC()); len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"websites"}, websiteColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to insert websites: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func websiteRows(owner string, websites []models.Website, now time.Time) [][]any {
	seen := make(map[string]struct{}, len(websites))
	rows := make([][]any, 0, len(websites))
	for _, w := range websites {
		url := strings.ToLower(w.URL)
		if _, dup := seen[url]; dup || w.ID == "" {
			continue
		}
		seen[url] = struct{}{}
		created := w.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, []any{owner, w.ID, w.URL, created})
	}
	return rows
}

func (r *PostgresWebsiteRepo) Delete(ctx context.Context, owner, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM websites WHERE owner = $1 AND id = $2`, owner, id)
	if err != nil {
		return fmt.Errorf("failed to delete website: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
