// Package memory implements core.IdempotencyStore in-process, for
// single-instance deployments or tests that don't want a Redis
// dependency. It is bounded by an LRU so a long-running process with no
// Redis doesn't grow its idempotency set without limit.
package memory

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sheetsync/sheetsync/internal/core"
)

type entry struct {
	metadata  map[string]any
	expiresAt time.Time
}

// Store is a size-bounded, TTL-aware in-memory idempotency store.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
}

// New creates a Store holding at most capacity operation ids.
func New(capacity int) (*Store, error) {
	cache, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache}, nil
}

var _ core.IdempotencyStore = (*Store)(nil)

func (s *Store) CheckAndMark(_ context.Context, opID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache.Get(opID); ok && !s.expired(e) {
		return false, nil
	}
	s.cache.Add(opID, entry{expiresAt: time.Now().Add(ttl)})
	return true, nil
}

func (s *Store) IsProcessed(_ context.Context, opID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Get(opID)
	if !ok || s.expired(e) {
		return false, nil
	}
	return true, nil
}

func (s *Store) MarkProcessed(_ context.Context, opID string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ttl := 24 * time.Hour
	if e, ok := s.cache.Get(opID); ok && !s.expired(e) {
		ttl = time.Until(e.expiresAt)
	}
	s.cache.Add(opID, entry{metadata: metadata, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (s *Store) GetMetadata(_ context.Context, opID string) (map[string]any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Get(opID)
	if !ok || s.expired(e) {
		return nil, false, nil
	}
	return e.metadata, true, nil
}

func (s *Store) expired(e entry) bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}
