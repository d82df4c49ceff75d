package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: key not found")

// Store is a typed wrapper over a Redis-like key-value store. All per-key
// operations are linearizable; there is no ordering guarantee across keys.
// Every call carries a bounded timeout so an unreachable store fails a single
// operation instead of hanging the request.
type Store struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func NewStore(client redis.UniversalClient, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Store{client: client, timeout: timeout}
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Incr atomically increments the integer value at key and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Incr(ctx, key).Result()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Del(ctx, keys...).Err()
}

// TTL returns the remaining lifetime of key. A missing key returns ErrNotFound;
// a key without expiry returns a negative duration as reported by the store.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// go-redis passes Redis's -2 (missing) and -1 (no expiry) sentinels
	// through unscaled, as raw nanosecond values.
	if d == -2 {
		return 0, ErrNotFound
	}
	return d, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *Store) HSet(ctx context.Context, key string, fields map[string]any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.HSet(ctx, key, fields).Err()
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

// ScanKeys walks the keyspace incrementally and returns every key matching
// pattern. Listing is O(matching keys) and intended for administrative
// tooling, not hot paths.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
