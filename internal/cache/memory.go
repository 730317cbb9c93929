package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// MemoryStore is the default in-process Store. A janitor sweeps expired
// entries so long-lived processes do not accumulate dead keys.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a memory store and starts its janitor.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return Record{}, false, nil
	}
	return entry.record, true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	s.mu.Lock()
	s.entries[key] = memoryEntry{
		record:    Record{Value: buf, CreatedAt: time.Now()},
		expiresAt: time.Now().Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetMany(_ context.Context, keys []string) (map[string]Record, error) {
	now := time.Now()
	out := make(map[string]Record, len(keys))
	s.mu.RLock()
	for _, key := range keys {
		if entry, ok := s.entries[key]; ok && now.Before(entry.expiresAt) {
			out[key] = entry.record
		}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
