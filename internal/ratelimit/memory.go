package ratelimit

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu           sync.Mutex
	entries      map[string]*entry
	lastCleanup  time.Time
	cleanupEvery time.Duration
	clock        func() time.Time
}

type entry struct {
	count int64
	reset time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:      map[string]*entry{},
		lastCleanup:  time.Now(),
		cleanupEvery: time.Minute,
		clock:        time.Now,
	}
}

// NewMemoryStoreWithClock pins time for tests.
func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.clock = clock
	s.lastCleanup = clock()
	return s
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastCleanup) >= s.cleanupEvery {
		for k, v := range s.entries {
			if now.After(v.reset) {
				delete(s.entries, k)
			}
		}
		s.lastCleanup = now
	}

	e, ok := s.entries[key]
	if !ok || now.After(e.reset) {
		e = &entry{count: 0, reset: now.Add(window)}
		s.entries[key] = e
	}

	e.count++
	expiresIn := e.reset.Sub(now)
	if expiresIn < 0 {
		expiresIn = 0
	}
	return e.count, expiresIn, nil
}
