package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

type bucket struct {
	lim      *xrate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// BucketStore spreads the window's ceiling as a token bucket: limit tokens of
// burst refilled evenly over window. A bucket idle for its own window is full
// again, so the periodic sweep evicts it.
type BucketStore struct {
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
	sweepIvl  time.Duration
}

// NewBucketStore creates a BucketStore. A nil clock uses time.Now.
func NewBucketStore(now func() time.Time) *BucketStore {
	if now == nil {
		now = time.Now
	}
	return &BucketStore{
		now:      now,
		buckets:  make(map[string]*bucket),
		sweepIvl: time.Minute,
	}
}

// Hit implements Store.
func (s *BucketStore) Hit(_ context.Context, key string, window time.Duration, limit int) (Verdict, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !now.Before(s.nextSweep) {
		s.sweepLocked(now)
		s.nextSweep = now.Add(s.sweepIvl)
	}

	b, ok := s.buckets[key]
	if !ok || b.window != window || b.lim.Burst() != limit {
		every := window / time.Duration(limit)
		b = &bucket{lim: xrate.NewLimiter(xrate.Every(every), limit), window: window}
		s.buckets[key] = b
	}
	b.lastSeen = now

	v := Verdict{Limit: limit}
	if b.lim.AllowN(now, 1) {
		v.Allowed = true
		v.Remaining = int(b.lim.TokensAt(now))
		v.Count = limit - v.Remaining
		return v, nil
	}

	r := b.lim.ReserveN(now, 1)
	v.RetryAfter = r.DelayFrom(now)
	r.CancelAt(now)
	v.Count = limit + 1
	v.ResetAt = now.Add(v.RetryAfter)
	return v, nil
}

// Sweep evicts every bucket idle for longer than its own window.
func (s *BucketStore) Sweep() {
	now := s.now()
	s.mu.Lock()
	s.sweepLocked(now)
	s.mu.Unlock()
}

// Len returns the number of tracked buckets.
func (s *BucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *BucketStore) sweepLocked(now time.Time) {
	for k, b := range s.buckets {
		if now.Sub(b.lastSeen) > b.window {
			delete(s.buckets, k)
		}
	}
}
