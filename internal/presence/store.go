package presence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LastSeenStore persists last-seen timestamps so they survive restarts.
// Presence itself is derived from the registry and never stored.
type LastSeenStore interface {
	Touch(ctx context.Context, userID int64, at time.Time) error
	Get(ctx context.Context, userID int64) (time.Time, bool, error)
}

// MemoryLastSeenStore is the in-process fallback used when Redis is not
// configured.
type MemoryLastSeenStore struct {
	mu   sync.RWMutex
	seen map[int64]time.Time
}

// NewMemoryLastSeenStore constructs an empty store.
func NewMemoryLastSeenStore() *MemoryLastSeenStore {
	return &MemoryLastSeenStore{seen: make(map[int64]time.Time)}
}

func (s *MemoryLastSeenStore) Touch(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[userID] = at
	return nil
}

func (s *MemoryLastSeenStore) Get(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.seen[userID]
	return at, ok, nil
}

// RedisLastSeenStore keeps last-seen timestamps in Redis with a TTL so idle
// users eventually age out.
type RedisLastSeenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLastSeenStore constructs a store over an existing client.
func NewRedisLastSeenStore(rdb *redis.Client, ttl time.Duration) *RedisLastSeenStore {
	return &RedisLastSeenStore{rdb: rdb, ttl: ttl}
}

func lastSeenKey(userID int64) string {
	return "lastseen:" + strconv.FormatInt(userID, 10)
}

func (s *RedisLastSeenStore) Touch(ctx context.Context, userID int64, at time.Time) error {
	return s.rdb.Set(ctx, lastSeenKey(userID), at.UTC().Format(time.RFC3339Nano), s.ttl).Err()
}

func (s *RedisLastSeenStore) Get(ctx context.Context, userID int64) (time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, lastSeenKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}
