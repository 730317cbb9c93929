package cache

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// StatsStore wraps a Store and logs hit/miss counts at a fixed interval so
// cache effectiveness shows up in the logs without a metrics stack.
type StatsStore struct {
	inner  Store
	hits   atomic.Int64
	misses atomic.Int64
	done   chan struct{}
	once   sync.Once
}

// WithStats decorates a store with periodic hit/miss logging.
func WithStats(inner Store, interval time.Duration) *StatsStore {
	s := &StatsStore{inner: inner, done: make(chan struct{})}
	go s.logLoop(interval)
	return s
}

func (s *StatsStore) Get(ctx context.Context, key string) (Record, bool, error) {
	rec, ok, err := s.inner.Get(ctx, key)
	if err == nil {
		if ok {
			s.hits.Add(1)
		} else {
			s.misses.Add(1)
		}
	}
	return rec, ok, err
}

func (s *StatsStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.inner.Put(ctx, key, value, ttl)
}

func (s *StatsStore) GetMany(ctx context.Context, keys []string) (map[string]Record, error) {
	found, err := s.inner.GetMany(ctx, keys)
	if err == nil {
		s.hits.Add(int64(len(found)))
		s.misses.Add(int64(len(keys) - len(found)))
	}
	return found, err
}

func (s *StatsStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.inner.Close()
}

func (s *StatsStore) logLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			hits := s.hits.Swap(0)
			misses := s.misses.Swap(0)
			if hits+misses == 0 {
				continue
			}
			log.Printf("[cache] %d hits, %d misses over the last %s", hits, misses, interval)
		}
	}
}
