// Package flash keeps one-shot messages between a redirect and the page it
// lands on.
package flash

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	CookieName = "checkout_flash"
	DefaultTTL = 5 * time.Minute

	// flash:{id} -> message
	keyFlash = "flash:%s"
)

var ErrNotFound = errors.New("flash message not found")

type Store interface {
	// Put saves msg and returns the id to hand to the browser.
	Put(ctx context.Context, msg string) (string, error)
	// Pop returns the message once and forgets it.
	Pop(ctx context.Context, id string) (string, error)
}

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: DefaultTTL}
}

func (s *RedisStore) Put(ctx context.Context, msg string) (string, error) {
	id := uuid.NewString()
	if err := s.rdb.Set(ctx, fmt.Sprintf(keyFlash, id), msg, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing flash message: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Pop(ctx context.Context, id string) (string, error) {
	msg, err := s.rdb.GetDel(ctx, fmt.Sprintf(keyFlash, id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading flash message: %w", err)
	}
	return msg, nil
}

type entry struct {
	msg     string
	expires time.Time
}

// MemoryStore is a process-local Store for single-instance deployments and
// tests.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]entry
	ttl time.Duration
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:   map[string]entry{},
		ttl: DefaultTTL,
		now: time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, msg string) (string, error) {
	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.m {
		if now.After(e.expires) {
			delete(s.m, k)
		}
	}
	s.m[id] = entry{msg: msg, expires: now.Add(s.ttl)}
	return id, nil
}

func (s *MemoryStore) Pop(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[id]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.m, id)
	if s.now().After(e.expires) {
		return "", ErrNotFound
	}
	return e.msg, nil
}
