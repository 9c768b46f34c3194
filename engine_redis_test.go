package portalauth

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dave593/portalauth/security"
)

func withRedis(t *testing.T) (engineOption, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return func(b *Builder, cfg *Config) {
		b.WithRedis(client)
		cfg.Revocation.Enabled = true
	}, mr
}

func TestRedisBackedEngine(t *testing.T) {
	opt, mr := withRedis(t)
	e := newTestEngine(t, newMockUserStore(), newTestClock(), opt)
	ctx := context.Background()

	if r := e.SecurityReport(); r.RateLimitStore != "redis" || !r.RevocationAttached {
		t.Fatalf("unexpected report %+v", r)
	}

	s := register(t, e, "redis@example.com", "acme")

	pair, err := e.Refresh(ctx, s.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := e.Refresh(ctx, s.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected reuse to fail with ErrInvalidToken, got %v", err)
	}

	if err := e.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := e.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked access token, got %v", err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatalf("expected revocation keys in redis")
	}
}

func TestRedisRateLimitSharedAcrossEngines(t *testing.T) {
	opt, _ := withRedis(t)
	a := newTestEngine(t, newMockUserStore(), newTestClock(), opt)
	b := newTestEngine(t, newMockUserStore(), newTestClock(), opt)
	ctx := context.Background()

	req := func() *security.Request {
		return &security.Request{ClientAddr: "192.0.2.10", Class: security.RouteAuth}
	}
	for i := 0; i < 5; i++ {
		e := a
		if i%2 == 1 {
			e = b
		}
		if err := e.Screen(ctx, req()); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	r := Failure(b.Screen(ctx, req()))
	if r.Code != CodeRateLimited || r.RetryAfter <= 0 {
		t.Fatalf("expected shared limit to trip, got %+v", r)
	}
}

func TestRedisOutageFailsClosed(t *testing.T) {
	opt, mr := withRedis(t)
	e := newTestEngine(t, newMockUserStore(), newTestClock(), opt)
	ctx := context.Background()

	s := register(t, e, "outage@example.com", "acme")
	mr.Close()

	if _, err := e.Verify(ctx, s.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken while revocation list is down, got %v", err)
	}
	if _, err := e.Refresh(ctx, s.Tokens.RefreshToken); err == nil {
		t.Fatalf("expected refresh to fail while revocation list is down")
	}
	r := Failure(e.Screen(ctx, &security.Request{ClientAddr: "192.0.2.11"}))
	if r.Code != CodeInternalError {
		t.Fatalf("expected INTERNAL_ERROR while limiter is down, got %+v", r)
	}
}
