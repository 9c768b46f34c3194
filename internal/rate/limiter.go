package rate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Class separates general traffic from authentication-sensitive routes. Each
// class has an independent counter and ceiling.
type Class string

const (
	ClassGeneral Class = "general"
	ClassAuth    Class = "auth"
)

// Verdict is the result of one counted request.
type Verdict struct {
	Allowed    bool
	Count      int
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Store counts hits for key inside window and decides against limit in a
// single atomic step.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, limit int) (Verdict, error)
}

// Config holds rate limiter tuning parameters.
type Config struct {
	Window          time.Duration
	MaxRequests     int
	AuthWindow      time.Duration
	AuthMaxRequests int
}

// Validate checks that both classes have a positive window and ceiling.
func (c Config) Validate() error {
	if c.Window <= 0 || c.MaxRequests <= 0 {
		return errors.New("general rate limit window and ceiling must be > 0")
	}
	if c.AuthWindow <= 0 || c.AuthMaxRequests <= 0 {
		return errors.New("auth rate limit window and ceiling must be > 0")
	}
	return nil
}

// Limiter enforces per-client ceilings for each route class.
type Limiter struct {
	store  Store
	config Config
}

// New creates a Limiter over store.
func New(store Store, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{store: store, config: cfg}, nil
}

// Check counts one request from client in class. It returns ErrRateLimited
// together with the verdict once the ceiling is exceeded. Store failures are
// wrapped in ErrBackendUnavailable.
func (l *Limiter) Check(ctx context.Context, class Class, client string) (Verdict, error) {
	if client == "" {
		client = "unknown"
	}

	window, limit := l.config.Window, l.config.MaxRequests
	if class == ClassAuth {
		window, limit = l.config.AuthWindow, l.config.AuthMaxRequests
	}

	v, err := l.store.Hit(ctx, key(class, client), window, limit)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return Verdict{}, err
		}
		return Verdict{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !v.Allowed {
		return v, ErrRateLimited
	}
	return v, nil
}

// Config returns the limiter settings.
func (l *Limiter) Config() Config {
	return l.config
}

func key(class Class, client string) string {
	return string(class) + ":" + client
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
