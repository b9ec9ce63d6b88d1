package store

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	entries map[string]memoryEntry
	mutex   sync.Mutex
	now     func() time.Time
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// NewMemoryStore creates a process-local store with TTL semantics.
//
// Parameters:
//   - now: clock used for expiry; nil means time.Now.
//
// Returns:
//   - *MemoryStore: a pointer to a new, empty store.
//
// State is not shared between processes, so this store only enforces a
// limit for a single instance. It is the default backend in tests.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}

	record := entry.record
	return &record, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, record Record, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries[key] = memoryEntry{record: record, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
