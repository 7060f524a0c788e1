package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/adreport/internal/models"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	st := NewMemoryStore(time.Minute)
	st.now = func() time.Time { return now }

	s := &State{ID: "v1", Provider: models.ProviderAdSense}
	s.Filter.Sites = []string{"a.com"}
	require.NoError(t, st.Save(ctx, s))

	got, err := st.Get(ctx, "v1")
	require.NoError(t, err)
	got.Filter.Sites[0] = "mutated"

	again, err := st.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com"}, again.Filter.Sites, "stored state is isolated from callers")

	now = now.Add(time.Minute)
	_, err = st.Get(ctx, "v1")
	assert.ErrorIs(t, err, ErrNotFound, "idle views expire")

	assert.ErrorIs(t, st.Delete(ctx, "v1"), ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	st := NewRedisStore(client, time.Minute)

	_, err := st.Get(ctx, "v1")
	assert.ErrorIs(t, err, ErrNotFound)

	s := &State{ID: "v1", Owner: "alice", Provider: models.ProviderAdManager, AccountID: "999", Page: 2, SeenRows: -1}
	s.Filter.Sites = []string{"a.com"}
	require.NoError(t, st.Save(ctx, s))
	assert.Equal(t, time.Minute, mr.TTL("view:v1"))

	mr.FastForward(40 * time.Second)
	got, err := st.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, -1, got.SeenRows)
	assert.Equal(t, []string{"a.com"}, got.Filter.Sites)
	assert.Equal(t, time.Minute, mr.TTL("view:v1"), "reads slide the expiry")

	mr.FastForward(40 * time.Second)
	_, err = st.Get(ctx, "v1")
	require.NoError(t, err, "still alive thanks to the previous read")

	mr.FastForward(time.Minute)
	_, err = st.Get(ctx, "v1")
	assert.ErrorIs(t, err, ErrNotFound, "idle views expire")

	require.NoError(t, st.Save(ctx, s))
	require.NoError(t, st.Delete(ctx, "v1"))
	assert.ErrorIs(t, st.Delete(ctx, "v1"), ErrNotFound)

	require.NoError(t, mr.Set("view:broken", "{"))
	_, err = st.Get(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStateQuery(t *testing.T) {
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	s := &State{Provider: models.ProviderAdSense, AccountID: "pub-1"}
	s.Filter.DateRange = models.RangeToday
	s.Filter.StartDate = &start

	assert.Nil(t, s.Query().StartDate, "bounds only travel with CUSTOM")
	assert.Nil(t, s.Table())

	s.Filter.DateRange = models.RangeCustom
	assert.Equal(t, &start, s.Query().StartDate)
}
