package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryStore is the bounded in-process fallback used when the backing store
// is unreachable at startup. It keeps the same advisory contract as the
// Redis store; eviction is oldest-expiry-first once maxKeys is reached.
type MemoryStore struct {
	mu      sync.Mutex
	rows    map[string]memoryEntry
	maxKeys int
	nowFn   func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryStore(maxKeys int) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryStore{
		rows:    make(map[string]memoryEntry),
		maxKeys: maxKeys,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok {
		return nil, false
	}
	if s.nowFn().After(row.expiresAt) {
		delete(s.rows, key)
		return nil, false
	}
	return append([]byte(nil), row.value...), true
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[key]; !exists && len(s.rows) >= s.maxKeys {
		s.evictOldestLocked()
	}
	s.rows[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: s.nowFn().Add(ttl),
	}
}

func (s *MemoryStore) evictOldestLocked() {
	var victim string
	var oldest time.Time
	for k, row := range s.rows {
		if victim == "" || row.expiresAt.Before(oldest) {
			victim = k
			oldest = row.expiresAt
		}
	}
	if victim != "" {
		delete(s.rows, victim)
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key)
}

func (s *MemoryStore) DeletePattern(_ context.Context, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for k := range s.rows {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.rows, k)
			deleted++
		}
	}
	return deleted
}

func (s *MemoryStore) Clear(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string]memoryEntry)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) MemoryUsedBytes(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for k, row := range s.rows {
		total += int64(len(k) + len(row.value))
	}
	return total, nil
}

func (s *MemoryStore) KeyCount(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *MemoryStore) FailureCount() int64 { return 0 }
