package bruteforce

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestGuardAllowsUpToThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	guard := NewWithClock(NewMemoryStore(), 5, 15*time.Minute, clock.Now)

	for i := 1; i <= 5; i++ {
		status := guard.Check("1.2.3.4")
		if status.Blocked {
			t.Fatalf("attempt %d blocked, want allowed", i)
		}
		if status.Attempts != i {
			t.Fatalf("attempt %d: Attempts = %d, want %d", i, status.Attempts, i)
		}
	}

	if status := guard.Check("1.2.3.4"); !status.Blocked {
		t.Fatal("attempt 6 allowed, want blocked")
	}
}

func TestGuardCountsAttemptsNotFailures(t *testing.T) {
	// The guard has no notion of authentication outcome; every gated attempt
	// counts, including ones that would have succeeded.
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	guard := NewWithClock(NewMemoryStore(), 2, time.Minute, clock.Now)

	guard.Check("addr")
	guard.Check("addr")
	if status := guard.Check("addr"); !status.Blocked {
		t.Fatal("third attempt allowed, want blocked regardless of outcome")
	}
}

func TestGuardResetsAfterQuietGap(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	guard := NewWithClock(NewMemoryStore(), 3, time.Minute, clock.Now)

	guard.Check("addr")
	guard.Check("addr")

	clock.Advance(61 * time.Second)

	status := guard.Check("addr")
	if status.Blocked {
		t.Fatal("attempt after quiet gap blocked, want allowed")
	}
	if status.Attempts != 1 {
		t.Fatalf("Attempts after gap = %d, want 1", status.Attempts)
	}
}

func TestGuardBlockReleasesByTimeOnly(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	guard := NewWithClock(NewMemoryStore(), 1, time.Minute, clock.Now)

	guard.Check("addr")
	if status := guard.Check("addr"); !status.Blocked {
		t.Fatal("second attempt allowed, want blocked")
	}

	// Attempts inside the window keep the block alive; the gap restarts.
	clock.Advance(30 * time.Second)
	if status := guard.Check("addr"); !status.Blocked {
		t.Fatal("attempt inside window allowed, want still blocked")
	}

	clock.Advance(61 * time.Second)
	if status := guard.Check("addr"); status.Blocked {
		t.Fatal("attempt after window elapsed blocked, want released")
	}
}

func TestGuardAddressesIndependent(t *testing.T) {
	guard := New(NewMemoryStore(), 1, time.Minute)

	guard.Check("1.1.1.1")
	if status := guard.Check("1.1.1.1"); !status.Blocked {
		t.Fatal("second attempt from same address allowed, want blocked")
	}
	if status := guard.Check("2.2.2.2"); status.Blocked {
		t.Fatal("first attempt from other address blocked, want allowed")
	}
}

func TestMemoryStoreEvictsStaleEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.lastCleanup = clock.Now()
	window := time.Minute

	store.Bump("1.1.1.1", clock.Now(), window)
	store.Bump("2.2.2.2", clock.Now(), window)

	// Past the window and the sweep interval, stale addresses are dropped on
	// the next bump instead of accumulating forever.
	clock.Advance(2 * time.Minute)
	store.Bump("3.3.3.3", clock.Now(), window)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.entries) != 1 {
		t.Fatalf("entries = %d, want 1 after sweep", len(store.entries))
	}
	if _, ok := store.entries["3.3.3.3"]; !ok {
		t.Fatal("live address swept")
	}
}

func TestMiddlewareBlocksBeforeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	guard := New(NewMemoryStore(), 2, time.Minute)

	handlerCalls := 0
	r := gin.New()
	r.POST("/login", Middleware(guard), func(c *gin.Context) {
		handlerCalls++
		c.Status(http.StatusUnauthorized)
	})

	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		if i < 2 && w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401 from handler", i+1, w.Code)
		}
		if i >= 2 && w.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt %d status = %d, want 429 from guard", i+1, w.Code)
		}
	}

	if handlerCalls != 2 {
		t.Fatalf("handler reached %d times, want 2", handlerCalls)
	}
}
