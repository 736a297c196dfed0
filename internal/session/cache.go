// Package session holds the signed-in operator's granted permissions for the
// lifetime of a login. Every check fails closed while the cache is empty or stale.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-fleet-console/internal/permission"
)

var (
	// ErrSessionInvalid is returned by a PermissionFetcher when the token is rejected
	ErrSessionInvalid = errors.New("session token expired or invalid")
	ErrNoSession      = errors.New("no persisted session")
)

// DefaultMaxAge bounds how long fetched grants are trusted before a refetch
const DefaultMaxAge = 30 * time.Minute

// PermissionFetcher is the authorization collaborator's "current permissions" call
type PermissionFetcher interface {
	FetchPermissions(ctx context.Context, token string) ([]permission.Grant, error)
}

type entry struct {
	user        User
	token       string
	grants      []permission.Grant
	set         permission.GrantSet
	lastUpdated time.Time
}

// Cache is the process-wide, login-scoped permission cache
type Cache struct {
	mu     sync.RWMutex
	cur    *entry
	store  SnapshotStore
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Cache)

func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCache(store SnapshotStore, opts ...Option) *Cache {
	if store == nil {
		store = NewMemorySnapshotStore()
	}
	c := &Cache{
		store:  store,
		maxAge: DefaultMaxAge,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Replace swaps the whole entry, as on login or after a permission fetch, and
// persists a snapshot. A failed write is logged; the in-memory entry still applies.
func (c *Cache) Replace(ctx context.Context, user User, token string, grants []permission.Grant) {
	now := c.now()
	grants = permission.CloneGrants(grants)

	c.mu.Lock()
	c.cur = &entry{
		user:        user,
		token:       token,
		grants:      grants,
		set:         permission.NewGrantSet(grants),
		lastUpdated: now,
	}
	c.mu.Unlock()

	snap := Snapshot{User: user, Token: token, Grants: grants, LastUpdated: now}
	if err := c.store.Save(ctx, snap); err != nil {
		c.logger.Warn("persist session snapshot failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// Reset forgets the session in memory and in the snapshot store
func (c *Cache) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.cur = nil
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	return nil
}

// Restore rehydrates from the persisted snapshot when it is still fresh, otherwise
// refetches grants with the persisted token. A rejected token clears everything.
func (c *Cache) Restore(ctx context.Context, fetcher PermissionFetcher) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if snap == nil || snap.Token == "" {
		return ErrNoSession
	}

	if c.now().Sub(snap.LastUpdated) < c.maxAge {
		c.mu.Lock()
		c.cur = &entry{
			user:        snap.User,
			token:       snap.Token,
			grants:      snap.Grants,
			set:         permission.NewGrantSet(snap.Grants),
			lastUpdated: snap.LastUpdated,
		}
		c.mu.Unlock()
		c.logger.Debug("session restored from snapshot", zap.String("user_id", snap.User.ID))
		return nil
	}

	return c.refetch(ctx, fetcher, snap.User, snap.Token)
}

// Refresh refetches grants for the current session
func (c *Cache) Refresh(ctx context.Context, fetcher PermissionFetcher) error {
	c.mu.RLock()
	cur := c.cur
	c.mu.RUnlock()
	if cur == nil {
		return ErrNoSession
	}
	return c.refetch(ctx, fetcher, cur.user, cur.token)
}

func (c *Cache) refetch(ctx context.Context, fetcher PermissionFetcher, user User, token string) error {
	grants, err := fetcher.FetchPermissions(ctx, token)
	if errors.Is(err, ErrSessionInvalid) {
		c.logger.Info("session rejected by authorization service", zap.String("user_id", user.ID))
		if resetErr := c.Reset(ctx); resetErr != nil {
			c.logger.Warn("clear session snapshot failed", zap.Error(resetErr))
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("fetch permissions: %w", err)
	}
	c.Replace(ctx, user, token, grants)
	return nil
}

// CanPerform is false while the cache is empty or stale
func (c *Cache) CanPerform(moduleKey string, action permission.Action) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.freshLocked() {
		return false
	}
	return c.cur.set.CanPerform(moduleKey, action)
}

// Fresh reports whether the cache currently holds usable grants
func (c *Cache) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.freshLocked()
}

func (c *Cache) freshLocked() bool {
	return c.cur != nil && c.now().Sub(c.cur.lastUpdated) < c.maxAge
}

func (c *Cache) Grants() []permission.Grant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil {
		return nil
	}
	return permission.CloneGrants(c.cur.grants)
}

func (c *Cache) User() (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil {
		return User{}, false
	}
	return c.cur.user, true
}

func (c *Cache) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.token
}

func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil {
		return time.Time{}
	}
	return c.cur.lastUpdated
}

var _ permission.Evaluator = (*Cache)(nil)
