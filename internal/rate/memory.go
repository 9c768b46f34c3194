package rate

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a process-local fixed-window counter store. A key's window
// starts at its first hit and ends Window later. Expired entries are evicted by
// Hit at most once per sweep interval, and by Sweep, which RunSweeper drives on
// a ticker so an idle process does not keep dead windows.
type MemoryStore struct {
	now func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
	sweepIvl  time.Duration
}

// NewMemoryStore creates a MemoryStore. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		windows:  make(map[string]*window),
		sweepIvl: time.Minute,
	}
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, ttl time.Duration, limit int) (Verdict, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !now.Before(s.nextSweep) {
		s.sweepLocked(now)
		s.nextSweep = now.Add(s.sweepIvl)
	}

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(ttl)}
		s.windows[key] = w
	}
	w.count++

	v := Verdict{
		Allowed:   w.count <= limit,
		Count:     w.count,
		Limit:     limit,
		Remaining: remaining(limit, w.count),
		ResetAt:   w.resetAt,
	}
	if !v.Allowed {
		v.RetryAfter = w.resetAt.Sub(now)
	}
	return v, nil
}

// Sweep evicts every expired window.
func (s *MemoryStore) Sweep() {
	now := s.now()
	s.mu.Lock()
	s.sweepLocked(now)
	s.mu.Unlock()
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
		}
	}
}
