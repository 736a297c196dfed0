package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"go-fleet-console/internal/permission"
)

// User identifies the signed-in operator
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleCode string `json:"role_code"`
}

// Snapshot is what survives a console restart: the last fetched grants and the token
// they were fetched with
type Snapshot struct {
	User        User               `json:"user"`
	Token       string             `json:"token"`
	Grants      []permission.Grant `json:"grants"`
	LastUpdated time.Time          `json:"last_updated"`
}

// SnapshotStore persists a single active session. Load returns nil, nil when empty.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

const defaultSnapshotKey = "fleet-console:session"

// RedisSnapshotStore keeps the snapshot as JSON under one key
type RedisSnapshotStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisSnapshotStore stores under key with the given expiry; zero ttl keeps it until cleared
func NewRedisSnapshotStore(rdb *redis.Client, key string, ttl time.Duration) *RedisSnapshotStore {
	if key == "" {
		key = defaultSnapshotKey
	}
	return &RedisSnapshotStore{rdb: rdb, key: key, ttl: ttl}
}

func (s *RedisSnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}

// MemorySnapshotStore is used when no redis is configured and in tests
type MemorySnapshotStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (s *MemorySnapshotStore) Load(_ context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, nil
	}
	cp := *s.snap
	cp.Grants = permission.CloneGrants(s.snap.Grants)
	return &cp, nil
}

func (s *MemorySnapshotStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Grants = permission.CloneGrants(snap.Grants)
	s.snap = &snap
	return nil
}

func (s *MemorySnapshotStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}

var (
	_ SnapshotStore = (*RedisSnapshotStore)(nil)
	_ SnapshotStore = (*MemorySnapshotStore)(nil)
)
