package bruteforce

import (
	"sync"
	"time"
)

// CounterStore tracks gated attempts per network address. Bump increments
// unconditionally, resetting first when the gap since the previous attempt
// exceeds the window. Process-local by design; the interface exists so a
// shared backend can replace the map without touching the guard.
type CounterStore interface {
	Bump(addr string, now time.Time, window time.Duration) (count int)
}

type MemoryStore struct {
	mu           sync.Mutex
	entries      map[string]*attempt
	lastCleanup  time.Time
	cleanupEvery time.Duration
}

type attempt struct {
	count int
	last  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:      map[string]*attempt{},
		lastCleanup:  time.Now(),
		cleanupEvery: time.Minute,
	}
}

func (s *MemoryStore) Bump(addr string, now time.Time, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastCleanup) >= s.cleanupEvery {
		for k, v := range s.entries {
			if now.Sub(v.last) > window {
				delete(s.entries, k)
			}
		}
		s.lastCleanup = now
	}

	a, ok := s.entries[addr]
	if !ok || now.Sub(a.last) > window {
		a = &attempt{}
		s.entries[addr] = a
	}
	a.count++
	a.last = now
	return a.count
}

type Status struct {
	Blocked bool
	// Attempts is the gated attempt count including this one.
	Attempts int
}

// Guard counts attempts through the gate, not authentication failures: it
// runs before the login is tried and has no idea whether it succeeded. Time
// is the only release once the threshold is crossed.
type Guard struct {
	store     CounterStore
	threshold int
	window    time.Duration
	clock     func() time.Time
}

func New(store CounterStore, threshold int, window time.Duration) *Guard {
	return &Guard{
		store:     store,
		threshold: threshold,
		window:    window,
		clock:     time.Now,
	}
}

// NewWithClock pins time for tests.
func NewWithClock(store CounterStore, threshold int, window time.Duration, clock func() time.Time) *Guard {
	g := New(store, threshold, window)
	g.clock = clock
	return g
}

func (g *Guard) Check(addr string) Status {
	count := g.store.Bump(addr, g.clock(), g.window)
	return Status{
		Blocked:  count > g.threshold,
		Attempts: count,
	}
}
