// Package idempotency replays the stored response of a mutating request
// when a terminal retries it with the same Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Response is what gets replayed.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ErrInFlight means another request with the same key has not finished.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

type Store interface {
	// Reserve claims key. It returns the stored response when the key was
	// already completed, ErrInFlight while it is still being processed and
	// (nil, nil) when the caller now owns the key.
	Reserve(ctx context.Context, key string) (*Response, error)
	Complete(ctx context.Context, key string, resp Response) error
	// Release forgets key so the request can be retried.
	Release(ctx context.Context, key string) error
}

const pendingMarker = "pending"

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (*Response, error) {
	ok, err := s.rdb.SetNX(ctx, key, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		return s.Reserve(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if string(data) == pendingMarker {
		return nil, ErrInFlight
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	return &resp, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

type entry struct {
	resp    *Response
	expires time.Time
}

// MemoryStore is the single-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]entry
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{ttl: ttl, keys: map[string]entry{}, now: time.Now}
}

func (s *MemoryStore) Reserve(_ context.Context, key string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.keys[key]
	if ok && now.Before(e.expires) {
		if e.resp == nil {
			return nil, ErrInFlight
		}
		r := *e.resp
		return &r, nil
	}
	s.keys[key] = entry{expires: now.Add(s.ttl)}
	return nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = entry{resp: &resp, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
