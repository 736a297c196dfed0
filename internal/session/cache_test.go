package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fleet-console/internal/permission"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeFetcher struct {
	grants []permission.Grant
	err    error
	calls  int
	tokens []string
}

func (f *fakeFetcher) FetchPermissions(_ context.Context, token string) ([]permission.Grant, error) {
	f.calls++
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return f.grants, nil
}

var operator = User{ID: "u-1", Email: "ops@example.com", Name: "Ops", RoleCode: "DISPATCHER"}

func driverGrants() []permission.Grant {
	return []permission.Grant{{ModuleKey: "driver", Actions: []permission.Action{permission.ActionRead, permission.ActionWrite}}}
}

func TestCache_EmptyDeniesEverything(t *testing.T) {
	c := NewCache(nil)
	assert.False(t, c.Fresh())
	assert.False(t, c.CanPerform("driver", permission.ActionRead))
	assert.Nil(t, c.Grants())
	_, ok := c.User()
	assert.False(t, ok)
}

func TestCache_ReplaceAndCanPerform(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnapshotStore()
	c := NewCache(store)

	c.Replace(ctx, operator, "tok", driverGrants())

	assert.True(t, c.CanPerform("driver", permission.ActionWrite))
	assert.False(t, c.CanPerform("driver", permission.ActionDelete))
	assert.False(t, c.CanPerform("vehicle", permission.ActionRead))
	assert.Equal(t, "tok", c.Token())

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, operator, snap.User)
	assert.Equal(t, driverGrants(), snap.Grants)
}

func TestCache_ReplaceIsWholesale(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil)
	c.Replace(ctx, operator, "tok", driverGrants())
	c.Replace(ctx, operator, "tok", []permission.Grant{{ModuleKey: "vehicle", Actions: []permission.Action{permission.ActionRead}}})

	assert.False(t, c.CanPerform("driver", permission.ActionRead))
	assert.True(t, c.CanPerform("vehicle", permission.ActionRead))
}

func TestCache_StaleFailsClosed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	c := NewCache(nil, WithClock(clock.Now), WithMaxAge(time.Minute))
	c.Replace(context.Background(), operator, "tok", driverGrants())
	require.True(t, c.CanPerform("driver", permission.ActionRead))

	clock.Advance(2 * time.Minute)
	assert.False(t, c.Fresh())
	assert.False(t, c.CanPerform("driver", permission.ActionRead))
}

func TestCache_ResetClearsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnapshotStore()
	c := NewCache(store)
	c.Replace(ctx, operator, "tok", driverGrants())

	require.NoError(t, c.Reset(ctx))
	assert.False(t, c.CanPerform("driver", permission.ActionRead))
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCache_RestoreFreshSnapshotSkipsFetch(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	store := NewMemorySnapshotStore()
	require.NoError(t, store.Save(ctx, Snapshot{User: operator, Token: "tok", Grants: driverGrants(), LastUpdated: clock.Now()}))

	fetcher := &fakeFetcher{}
	c := NewCache(store, WithClock(clock.Now))
	require.NoError(t, c.Restore(ctx, fetcher))

	assert.Zero(t, fetcher.calls)
	assert.True(t, c.CanPerform("driver", permission.ActionRead))
	user, ok := c.User()
	require.True(t, ok)
	assert.Equal(t, operator, user)
}

func TestCache_RestoreStaleSnapshotRefetches(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	store := NewMemorySnapshotStore()
	require.NoError(t, store.Save(ctx, Snapshot{User: operator, Token: "tok", Grants: driverGrants(), LastUpdated: clock.Now()}))
	clock.Advance(time.Hour)

	fetcher := &fakeFetcher{grants: []permission.Grant{{ModuleKey: "vehicle", Actions: []permission.Action{permission.ActionRead}}}}
	c := NewCache(store, WithClock(clock.Now))
	require.NoError(t, c.Restore(ctx, fetcher))

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, []string{"tok"}, fetcher.tokens)
	assert.False(t, c.CanPerform("driver", permission.ActionRead))
	assert.True(t, c.CanPerform("vehicle", permission.ActionRead))
	assert.Equal(t, clock.Now(), c.LastUpdated())
}

func TestCache_RestoreRejectedTokenClearsSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnapshotStore()
	require.NoError(t, store.Save(ctx, Snapshot{User: operator, Token: "old", Grants: driverGrants()}))

	c := NewCache(store)
	err := c.Restore(ctx, &fakeFetcher{err: ErrSessionInvalid})
	require.ErrorIs(t, err, ErrSessionInvalid)

	assert.False(t, c.CanPerform("driver", permission.ActionRead))
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCache_RestoreFetchFailureStaysClosed(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnapshotStore()
	require.NoError(t, store.Save(ctx, Snapshot{User: operator, Token: "tok"}))

	c := NewCache(store)
	err := c.Restore(ctx, &fakeFetcher{err: errors.New("connection refused")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionInvalid)
	assert.False(t, c.Fresh())

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestCache_RestoreWithoutSnapshot(t *testing.T) {
	c := NewCache(nil)
	require.ErrorIs(t, c.Restore(context.Background(), &fakeFetcher{}), ErrNoSession)
}

func TestCache_RefreshUsesCurrentToken(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil)
	require.ErrorIs(t, c.Refresh(ctx, &fakeFetcher{}), ErrNoSession)

	c.Replace(ctx, operator, "live", driverGrants())
	fetcher := &fakeFetcher{grants: nil}
	require.NoError(t, c.Refresh(ctx, fetcher))
	assert.Equal(t, []string{"live"}, fetcher.tokens)
	assert.False(t, c.CanPerform("driver", permission.ActionRead))
	assert.True(t, c.Fresh())
}

func TestRedisSnapshotStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	store := NewRedisSnapshotStore(rdb, "", time.Hour)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, Snapshot{User: operator, Token: "tok", Grants: driverGrants(), LastUpdated: at}))
	assert.True(t, mr.Exists(defaultSnapshotKey))
	assert.Equal(t, time.Hour, mr.TTL(defaultSnapshotKey))

	snap, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, operator, snap.User)
	assert.Equal(t, driverGrants(), snap.Grants)
	assert.True(t, at.Equal(snap.LastUpdated))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists(defaultSnapshotKey))
}

func TestRedisSnapshotStore_ExpiredSnapshotIsGone(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	store := NewRedisSnapshotStore(rdb, "console:test", time.Minute)
	require.NoError(t, store.Save(ctx, Snapshot{User: operator, Token: "tok"}))

	mr.FastForward(2 * time.Minute)
	c := NewCache(store)
	require.ErrorIs(t, c.Restore(ctx, &fakeFetcher{}), ErrNoSession)
}

func TestRedisSnapshotStore_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, mr.Set(defaultSnapshotKey, "{not json"))
	_, err := NewRedisSnapshotStore(rdb, "", 0).Load(context.Background())
	require.Error(t, err)
}
