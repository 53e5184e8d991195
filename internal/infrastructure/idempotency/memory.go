package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/clock"
)

// MemoryStore is the in-process claim store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  clock.Clock
	claims map[string]time.Time // key -> expiry
}

func NewMemoryStore(c clock.Clock, ttl time.Duration) *MemoryStore {
	if c == nil {
		c = clock.System()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, clock: c, claims: make(map[string]time.Time)}
}

func (s *MemoryStore) Claim(_ context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := redisKey(scope, key)
	now := s.clock.Now()
	if exp, ok := s.claims[k]; ok && now.Before(exp) {
		return false, nil
	}
	s.claims[k] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, redisKey(scope, key))
	return nil
}
