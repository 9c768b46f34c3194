package revocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps backend failures. Callers treat it as "revoked".
var ErrUnavailable = errors.New("revocation list unavailable")

// RedisList stores revoked token ids as Redis keys with expiry.
type RedisList struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisList creates a list writing keys as prefix:rv:<jti>.
func NewRedisList(client redis.UniversalClient, prefix string) *RedisList {
	if prefix == "" {
		prefix = "pa"
	}
	return &RedisList{redis: client, prefix: prefix}
}

func (l *RedisList) key(jti string) string {
	return l.prefix + ":rv:" + jti
}

// Revoke marks jti revoked for ttl. A non-positive ttl is a no-op because the
// token has already expired.
func (l *RedisList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.redis.Set(ctx, l.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether jti is on the list.
func (l *RedisList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Claim atomically revokes jti and reports whether this call was the first to
// do so. It backs single-use refresh tokens.
func (l *RedisList) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	ok, err := l.redis.SetNX(ctx, l.key(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// MemoryList is an in-process list with the same semantics as RedisList.
type MemoryList struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryList creates a MemoryList. A nil clock uses time.Now.
func NewMemoryList(now func() time.Time) *MemoryList {
	if now == nil {
		now = time.Now
	}
	return &MemoryList{now: now, entries: make(map[string]time.Time)}
}

func (l *MemoryList) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	l.mu.Lock()
	l.entries[jti] = l.now().Add(ttl)
	l.mu.Unlock()
	return nil
}

func (l *MemoryList) IsRevoked(_ context.Context, jti string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liveLocked(jti, now), nil
}

func (l *MemoryList) Claim(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.liveLocked(jti, now) {
		return false, nil
	}
	l.entries[jti] = now.Add(ttl)
	return true, nil
}

// Len returns the number of unexpired entries.
func (l *MemoryList) Len() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for jti := range l.entries {
		if l.liveLocked(jti, now) {
			n++
		}
	}
	return n
}

func (l *MemoryList) liveLocked(jti string, now time.Time) bool {
	exp, ok := l.entries[jti]
	if !ok {
		return false
	}
	if !now.Before(exp) {
		delete(l.entries, jti)
		return false
	}
	return true
}
