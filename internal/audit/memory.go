package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. It backs dev/test runs when
// no database is configured, the same way the rate limiter falls back to its
// memory store.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clock: time.Now}
}

// NewMemoryStoreWithClock pins write timestamps for tests.
func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	return &MemoryStore{clock: clock}
}

func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = uuid.New()
	rec.Timestamp = s.clock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, f Filter) ([]Record, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.match(f)
	total := len(matched)

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]Record, end-start)
	copy(out, matched[start:end])
	return out, total, nil
}

func (s *MemoryStore) CountSince(_ context.Context, actions []Action, outcome Outcome, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.match(Filter{Actions: actions, Outcome: outcome, Since: since})
	return len(matched), nil
}

func (s *MemoryStore) SummarizeByAction(_ context.Context, actor uuid.UUID, since time.Time) ([]ActionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAction := map[Action]*ActionSummary{}
	for _, rec := range s.records {
		if rec.Actor == nil || *rec.Actor != actor || rec.Timestamp.Before(since) {
			continue
		}
		sum, ok := byAction[rec.Action]
		if !ok {
			sum = &ActionSummary{Action: rec.Action}
			byAction[rec.Action] = sum
		}
		sum.Count++
		if rec.Timestamp.After(sum.LastSeen) {
			sum.LastSeen = rec.Timestamp
		}
	}

	summaries := make([]ActionSummary, 0, len(byAction))
	for _, sum := range byAction {
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastSeen.After(summaries[j].LastSeen)
	})
	return summaries, nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		n = 10
	}
	matched := s.match(Filter{})
	if n > len(matched) {
		n = len(matched)
	}
	out := make([]Record, n)
	copy(out, matched[:n])
	return out, nil
}

func (s *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []Record
	var removed int64
	for _, rec := range s.records {
		if rec.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

// match returns matching records newest first. Caller holds the lock.
func (s *MemoryStore) match(f Filter) []Record {
	var matched []Record
	for _, rec := range s.records {
		if f.Actor != nil && (rec.Actor == nil || *rec.Actor != *f.Actor) {
			continue
		}
		if len(f.Actions) > 0 && !containsAction(f.Actions, rec.Action) {
			continue
		}
		if f.Outcome != "" && rec.Outcome != f.Outcome {
			continue
		}
		if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !rec.Timestamp.Before(f.Until) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return matched
}

func containsAction(actions []Action, a Action) bool {
	for _, candidate := range actions {
		if candidate == a {
			return true
		}
	}
	return false
}
