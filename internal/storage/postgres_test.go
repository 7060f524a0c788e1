package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/adreport/internal/models"
)

func newPgxMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sqlPattern(s string) string {
	return regexp.QuoteMeta(s)
}

func TestPostgresAccountRepo_List(t *testing.T) {
	t.Parallel()
	mock := newPgxMock(t)

	updated := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(sqlPattern("FROM accounts WHERE owner = $1 AND provider = $2 ORDER BY id")).
		WithArgs("alice", "adsense").
		WillReturnRows(pgxmock.NewRows([]string{"provider", "id", "display_name", "email", "google_id", "updated_at"}).
			AddRow("adsense", "pub-1", "One", "a@b.c", "g1", updated).
			AddRow("adsense", "pub-2", "", "", "", updated))

	got, err := NewPostgresAccountRepo(mock).List(context.Background(), "alice", models.ProviderAdSense)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, &models.Account{
		Provider:    models.ProviderAdSense,
		ID:          "pub-1",
		DisplayName: "One",
		Email:       "a@b.c",
		GoogleID:    "g1",
		UpdatedAt:   updated,
	}, got[0])
	assert.Equal(t, "pub-2", got[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountRepo_Upsert(t *testing.T) {
	t.Parallel()
	mock := newPgxMock(t)

	updated := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(sqlPattern("ON CONFLICT (owner, provider, id) DO UPDATE SET")).
		WithArgs("alice", "admanager", "999", "Net", "", "g1", updated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	r := NewPostgresAccountRepo(mock)
	require.NoError(t, r.Upsert(context.Background(), "alice", &models.Account{
		Provider:    models.ProviderAdManager,
		ID:          "999",
		DisplayName: "Net",
		GoogleID:    "g1",
		UpdatedAt:   updated,
	}))
	require.Error(t, r.Upsert(context.Background(), "alice", &models.Account{Provider: models.ProviderAdManager}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountRepo_Delete(t *testing.T) {
	t.Parallel()

	const (
		deleteAccount = "DELETE FROM accounts WHERE owner = $1 AND provider = $2 AND id = $3"
		deleteSites   = "DELETE FROM account_sites WHERE owner = $1 AND account_id = $2"
	)

	tt := []struct {
		name     string
		provider models.Provider
		expect   func(mock pgxmock.PgxPoolIface)
		err      error
	}{
		{
			name:     "adsense drops cached sites",
			provider: models.ProviderAdSense,
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(sqlPattern(deleteAccount)).
					WithArgs("alice", "adsense", "pub-1").
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
				mock.ExpectExec(sqlPattern(deleteSites)).
					WithArgs("alice", "pub-1").
					WillReturnResult(pgxmock.NewResult("DELETE", 3))
				mock.ExpectCommit()
			},
		},
		{
			name:     "admanager has no sites",
			provider: models.ProviderAdManager,
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(sqlPattern(deleteAccount)).
					WithArgs("alice", "admanager", "pub-1").
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
				mock.ExpectCommit()
			},
		},
		{
			name:     "missing account rolls back",
			provider: models.ProviderAdSense,
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(sqlPattern(deleteAccount)).
					WithArgs("alice", "adsense", "pub-1").
					WillReturnResult(pgxmock.NewResult("DELETE", 0))
				mock.ExpectRollback()
			},
			err: ErrNotFound,
		},
		{
			name:     "site cleanup failure rolls back",
			provider: models.ProviderAdSense,
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(sqlPattern(deleteAccount)).
					WithArgs("alice", "adsense", "pub-1").
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
				mock.ExpectExec(sqlPattern(deleteSites)).
					WithArgs("alice", "pub-1").
					WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			err: errors.New("failed to delete account sites: disk full"),
		},
	}

	for i := range tt {
		tc := tt[i]
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mock := newPgxMock(t)
			tc.expect(mock)

			err := NewPostgresAccountRepo(mock).Delete(context.Background(), "alice", tc.provider, "pub-1")
			switch {
			case tc.err == nil:
				require.NoError(t, err)
			case errors.Is(tc.err, ErrNotFound):
				require.ErrorIs(t, err, ErrNotFound)
			default:
				require.EqualError(t, err, tc.err.Error())
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresSiteRepo_ReplaceForAccount(t *testing.T) {
	t.Parallel()
	mock := newPgxMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("DELETE FROM account_sites WHERE owner = $1 AND account_id = $2")).
		WithArgs("alice", "pub-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCopyFrom(pgx.Identifier{"account_sites"}, siteColumns).
		WillReturnResult(2)
	mock.ExpectCommit()

	err := NewPostgresSiteRepo(mock).ReplaceForAccount(context.Background(), "alice", "pub-1", []models.Site{
		{Name: "sites/a", Domain: "a.com", State: "READY"},
		{Name: "sites/b", Domain: "b.com"},
		{Name: "sites/a", Domain: "a.com", State: "REQUIRES_REVIEW"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSiteRepo_ReplaceWithNoSitesOnlyClears(t *testing.T) {
	t.Parallel()
	mock := newPgxMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("DELETE FROM account_sites WHERE owner = $1 AND account_id = $2")).
		WithArgs("alice", "pub-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresSiteRepo(mock).ReplaceForAccount(context.Background(), "alice", "pub-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSiteRepo_List(t *testing.T) {
	t.Parallel()
	mock := newPgxMock(t)

	cols := []string{"account_id", "name", "domain", "state"}
	mock.ExpectQuery(sqlPattern("FROM account_sites WHERE owner = $1 AND account_id = $2 ORDER BY domain")).
		WithArgs("alice", "pub-1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("pub-1", "sites/a", "a.com", "READY"))
	mock.ExpectQuery(sqlPattern("FROM account_sites WHERE owner = $1 ORDER BY account_id, domain")).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("pub-1", "sites/a", "a.com", "READY").
			AddRow("pub-2", "sites/b", "b.com", ""))

	r := NewPostgresSiteRepo(mock)
	one, err := r.ListByAccount(context.Background(), "alice", "pub-1")
	require.NoError(t, err)
	assert.Equal(t, []models.Site{{AccountID: "pub-1", Name: "sites/a", Domain: "a.com", State: "READY"}}, one)

	all, err := r.ListAll(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWebsiteRepo_Add(t *testing.T) {
	t.Parallel()

	tt := []struct {
		name string
		err  error
		want error
	}{
		{name: "inserted"},
		{name: "duplicate url", err: &pgconn.PgError{Code: pgUniqueViolation}, want: ErrDuplicate},
	}

	for i := range tt {
		tc := tt[i]
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mock := newPgxMock(t)

			exec := mock.ExpectExec(sqlPattern("INSERT INTO websites (owner, id, url, created_at) VALUES ($1, $2, $3, $4)")).
				WithArgs("alice", pgxmock.AnyArg(), "https://a.com", pgxmock.AnyArg())
			if tc.err != nil {
				exec.WillReturnError(tc.err)
			} else {
				exec.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			w, err := NewPostgresWebsiteRepo(mock).Add(context.Background(), "alice", " https://a.com ")
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "https://a.com", w.URL)
				assert.NotEmpty(t, w.ID)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresWebsiteRepo_PutAndDelete(t *testing.T) {
	t.Parallel()
	mock := newPgxMock(t)

	created := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(sqlPattern("ON CONFLICT (owner, id) DO UPDATE SET url = EXCLUDED.url")).
		WithArgs("alice", "w1", "https://a.com", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(sqlPattern("DELETE FROM websites WHERE owner = $1 AND id = $2")).
		WithArgs("bob", "w1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(sqlPattern("DELETE FROM websites WHERE owner = $1 AND id = $2")).
		WithArgs("alice", "w1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	r := NewPostgresWebsiteRepo(mock)
	require.NoError(t, r.Put(context.Background(), "alice", models.Website{ID: "w1", URL: "https://a.com", CreatedAt: created}))
	require.Error(t, r.Put(context.Background(), "alice", models.Website{URL: "https://a.com"}))
	assert.ErrorIs(t, r.Delete(context.Background(), "bob", "w1"), ErrNotFound)
	require.NoError(t, r.Delete(context.Background(), "alice", "w1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWebsiteRepo_Replace(t *testing.T) {
	t.Parallel()
	mock := newPgxMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("DELETE FROM websites WHERE owner = $1")).
		WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"websites"}, websiteColumns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	err := NewPostgresWebsiteRepo(mock).Replace(context.Background(), "alice", []models.Website{{ID: "w1", URL: "https://a.com"}})
	require.EqualError(t, err, "failed to insert websites: copy failed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebsiteRows(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)
	rows := websiteRows("alice", []models.Website{
		{ID: "w1", URL: "https://a.com", CreatedAt: created},
		{ID: "w2", URL: "HTTPS://A.COM"},
		{URL: "https://noid.com"},
		{ID: "w3", URL: "https://b.com"},
	}, now)

	assert.Equal(t, [][]any{
		{"alice", "w1", "https://a.com", created},
		{"alice", "w3", "https://b.com", now},
	}, rows)
}

func TestSiteRows(t *testing.T) {
	t.Parallel()

	rows := siteRows("alice", "pub-1", []models.Site{
		{Name: "a", Domain: "a.com", State: "READY"},
		{Name: "b", Domain: "b.com"},
		{Name: "a", Domain: "a.com", State: "GETTING_READY"},
	})
	assert.Equal(t, [][]any{
		{"alice", "pub-1", "a", "a.com", "GETTING_READY"},
		{"alice", "pub-1", "b", "b.com", ""},
	}, rows)
}
