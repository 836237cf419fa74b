package store

import (
	"context"
	"sync"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
)

// MemoryIdempotencyStore implements IdempotencyStore using an in-memory map.
// Expired entries are dropped lazily and evicted first when the store is full.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	data    map[string]memoryEntry
	maxSize int
	clock   port.Clock
}

type memoryEntry struct {
	resp      model.ForwardResponse
	expiresAt time.Time
}

// NewMemoryIdempotencyStore creates a store holding at most maxSize entries
func NewMemoryIdempotencyStore(maxSize int, clock port.Clock) *MemoryIdempotencyStore {
	if maxSize < 1 {
		maxSize = 1
	}
	return &MemoryIdempotencyStore{
		data:    make(map[string]memoryEntry),
		maxSize: maxSize,
		clock:   clock,
	}
}

// Get returns a copy of the stored response
func (s *MemoryIdempotencyStore) Get(ctx context.Context, key string) (*model.ForwardResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		delete(s.data, key)
		return nil, ErrNotFound
	}
	resp := cloneResponse(entry.resp)
	return &resp, nil
}

// Set stores a copy of resp with TTL
func (s *MemoryIdempotencyStore) Set(ctx context.Context, key string, resp *model.ForwardResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxSize {
		s.evictLocked(now)
	}
	s.data[key] = memoryEntry{
		resp:      cloneResponse(*resp),
		expiresAt: now.Add(ttl),
	}
	return nil
}

// evictLocked drops expired entries, or the entry closest to expiry when
// none have expired.
func (s *MemoryIdempotencyStore) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range s.data {
		if !now.Before(e.expiresAt) {
			delete(s.data, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if len(s.data) >= s.maxSize && oldestKey != "" {
		delete(s.data, oldestKey)
	}
}

// Delete removes an idempotency key
func (s *MemoryIdempotencyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryIdempotencyStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryIdempotencyStore) Close() error { return nil }

// Size returns the number of entries, expired ones included
func (s *MemoryIdempotencyStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func cloneResponse(r model.ForwardResponse) model.ForwardResponse {
	return model.ForwardResponse{
		StatusCode: r.StatusCode,
		Headers:    r.Headers.Clone(),
		Body:       append([]byte(nil), r.Body...),
	}
}
