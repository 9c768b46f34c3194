// Command portalauth serves the authentication API over HTTP with gin.
//
// Configuration comes from an optional TOML file (-config) overlaid with
// PORTALAUTH_* environment variables. PORTALAUTH_DATABASE_URL selects the
// Postgres user store; PORTALAUTH_REDIS_ADDR moves rate limiting and token
// revocation into Redis.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/metrics"
	"github.com/dave593/portalauth/userstore"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		addr       = flag.String("addr", ":8080", "listen address")
		migrate    = flag.Bool("migrate", true, "apply the user schema on start")
	)
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	cfg := portalauth.DefaultConfig()
	if *configPath != "" {
		loaded, err := portalauth.LoadConfigFile(*configPath)
		if err != nil {
			log.Error("config load failed", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := portalauth.ApplyEnv(&cfg); err != nil {
		log.Error("config env overlay failed", "err", err)
		os.Exit(1)
	}
	for _, w := range cfg.Lint() {
		log.Warn("config warning", "code", w.Code, "message", w.Message)
	}

	dsn := os.Getenv("PORTALAUTH_DATABASE_URL")
	if dsn == "" {
		log.Error("PORTALAUTH_DATABASE_URL is required")
		os.Exit(1)
	}
	users, err := userstore.Open(dsn)
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer users.Close()

	pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
	err = users.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Error("postgres ping failed", "err", err)
		os.Exit(1)
	}
	if *migrate {
		if err := users.Migrate(rootCtx); err != nil {
			log.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(reg)
	if err != nil {
		log.Error("metrics init failed", "err", err)
		os.Exit(1)
	}

	builder := portalauth.New().
		WithConfig(cfg).
		WithLogger(log).
		WithUserProvider(users).
		WithMetrics(collector)

	if redisAddr := os.Getenv("PORTALAUTH_REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Error("redis ping failed", "err", err)
			os.Exit(1)
		}
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		log.Error("engine init failed", "err", err)
		os.Exit(1)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	log.Info("engine ready",
		"alg", report.SigningAlgorithm,
		"access_ttl", report.AccessTTL,
		"refresh_ttl", report.RefreshTTL,
		"rate_store", report.RateLimitStore,
		"password_scheme", report.PasswordScheme,
		"revocation", report.RevocationAttached,
	)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newRouter(engine, reg, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
