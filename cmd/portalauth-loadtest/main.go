// Command portalauth-loadtest measures Verify and Refresh throughput against
// a Redis-backed revocation list.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/password"
)

type principalState struct {
	access  string
	refresh string
	mu      sync.Mutex
}

// seedUsers is a read-only in-memory provider; the load test only logs in.
type seedUsers struct {
	byEmail map[string]portalauth.UserRecord
}

func (s *seedUsers) FindByEmail(_ context.Context, email string) (portalauth.UserRecord, bool, error) {
	rec, ok := s.byEmail[email]
	return rec, ok, nil
}

func (s *seedUsers) FindByID(_ context.Context, id string) (portalauth.UserRecord, bool, error) {
	for _, rec := range s.byEmail {
		if rec.ID == id {
			return rec, true, nil
		}
	}
	return portalauth.UserRecord{}, false, nil
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of principals to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (verify + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "plt", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := portalauth.DefaultConfig()
	cfg.JWT.AccessSecret = "loadtest-access-secret-0123456789abcdef"
	cfg.JWT.RefreshSecret = "loadtest-refresh-secret-0123456789abcdef"
	cfg.Password.BcryptCost = 4
	cfg.Revocation.Enabled = true
	cfg.Revocation.RedisPrefix = *prefix

	provider := &seedUsers{byEmail: make(map[string]portalauth.UserRecord, *users)}
	engine, err := portalauth.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithRedis(client).
		WithUserProvider(provider).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine init failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	const secret = "Loadtest1Secret"
	hasher, err := password.NewBcrypt(cfg.Password.BcryptCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hasher init failed: %v\n", err)
		os.Exit(1)
	}
	digest, err := hasher.Hash(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
		os.Exit(1)
	}

	states := make([]principalState, *users)
	fmt.Printf("seeding %d principals...\n", *users)
	startSeed := time.Now()
	for i := 0; i < *users; i++ {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		provider.byEmail[email] = portalauth.UserRecord{
			ID:           fmt.Sprintf("u-%d", i),
			Email:        email,
			PasswordHash: digest,
			Role:         "user",
			Company:      fmt.Sprintf("company-%d", i%10),
		}
		s, err := engine.Login(ctx, email, secret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i].access = s.Tokens.AccessToken
		states[i].refresh = s.Tokens.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runVerifyPhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
}

func runVerifyPhase(ctx context.Context, engine *portalauth.Engine, states []principalState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				state.mu.Lock()
				token := state.access
				state.mu.Unlock()

				t0 := time.Now()
				_, err := engine.Verify(ctx, token)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *portalauth.Engine, states []principalState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = pair.AccessToken
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
