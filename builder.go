package portalauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dave593/portalauth/internal/audit"
	"github.com/dave593/portalauth/internal/rate"
	"github.com/dave593/portalauth/jwt"
	"github.com/dave593/portalauth/metrics"
	"github.com/dave593/portalauth/password"
	"github.com/dave593/portalauth/permission"
	"github.com/dave593/portalauth/policy"
	"github.com/dave593/portalauth/revocation"
	"github.com/dave593/portalauth/security"
)

// dummySecret is hashed once at Build. Logins for unknown emails compare
// against its digest so both paths cost one verifier comparison.
const dummySecret = "portalauth-timing-equaliser"

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	logger *slog.Logger
	now    func() time.Time
	roles  *permission.RoleTable
	redis  redis.UniversalClient

	users      UserProvider
	creator    UserCreator
	updater    PasswordUpdater
	verifier   CredentialVerifier
	revocation RevocationList
	auditSink  AuditSink
	metrics    *metrics.Collector

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock injects the time source used for token issuance, rate limiting
// and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRoleTable replaces the stock role table.
func (b *Builder) WithRoleTable(t *permission.RoleTable) *Builder {
	b.roles = t
	return b
}

// WithRedis backs rate limiting and the revocation list with Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the required user lookup. If up also implements
// [UserCreator] or [PasswordUpdater] it is used for those too, unless they
// were set explicitly.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	if c, ok := up.(UserCreator); ok && b.creator == nil {
		b.creator = c
	}
	if u, ok := up.(PasswordUpdater); ok && b.updater == nil {
		b.updater = u
	}
	return b
}

// WithUserCreator enables Register.
func (b *Builder) WithUserCreator(c UserCreator) *Builder {
	b.creator = c
	return b
}

// WithPasswordUpdater enables ChangePassword and hash upgrades on login.
func (b *Builder) WithPasswordUpdater(u PasswordUpdater) *Builder {
	b.updater = u
	return b
}

// WithVerifier replaces the configured credential verifier.
func (b *Builder) WithVerifier(v CredentialVerifier) *Builder {
	b.verifier = v
	return b
}

// WithRevocationList attaches a revocation list regardless of
// Config.Revocation.Enabled.
func (b *Builder) WithRevocationList(l RevocationList) *Builder {
	b.revocation = l
	return b
}

// WithAuditSink sets where audit events go. Only used when Config.Audit is
// enabled; defaults to a slog sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetrics attaches Prometheus collectors.
func (b *Builder) WithMetrics(c *metrics.Collector) *Builder {
	b.metrics = c
	return b
}

// Build validates the configuration and wires every component. Key or
// hasher misconfiguration fails with ErrVerifierUnavailable.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- ROLES --------
	roles := b.roles
	if roles == nil {
		roles = permission.DefaultRoleTable()
	}
	for _, r := range cfg.Roles.AllowedRoles {
		if _, err := roles.Parse(r); err != nil {
			return nil, fmt.Errorf("Roles AllowedRoles: %w", err)
		}
	}
	if _, err := roles.Parse(cfg.Roles.RegistrationRole); err != nil {
		return nil, fmt.Errorf("Roles RegistrationRole: %w", err)
	}
	roles.Freeze()

	// -------- CREDENTIAL VERIFIER --------
	verifier := b.verifier
	if verifier == nil {
		v, err := password.New(cfg.passwordConfig())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
		}
		verifier = v
	}
	dummy, err := verifier.Hash(dummySecret)
	if err != nil {
		return nil, fmt.Errorf("%w: hasher self-check: %v", ErrVerifierUnavailable, err)
	}
	if ok, err := verifier.Compare(dummySecret, dummy); err != nil || !ok {
		return nil, fmt.Errorf("%w: hasher self-check did not round-trip", ErrVerifierUnavailable)
	}

	// -------- TOKENS --------
	jc := cfg.jwtConfig()
	jc.Now = now
	tokens, err := jwt.NewManager(jc, roles)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	// -------- RATE LIMIT --------
	var (
		store     rate.Store
		storeName string
	)
	switch {
	case b.redis != nil && cfg.RateLimit.Algorithm != RateLimitBucket:
		store, storeName = rate.NewRedisStore(b.redis, cfg.RateLimit.RedisPrefix, now), "redis"
	case cfg.RateLimit.Algorithm == RateLimitBucket:
		store, storeName = rate.NewBucketStore(now), "bucket"
	default:
		store, storeName = rate.NewMemoryStore(now), "memory"
	}
	limiter, err := rate.New(store, rate.Config{
		Window:          cfg.RateLimit.Window,
		MaxRequests:     cfg.RateLimit.MaxRequests,
		AuthWindow:      cfg.RateLimit.AuthWindow,
		AuthMaxRequests: cfg.RateLimit.AuthMaxRequests,
	})
	if err != nil {
		return nil, err
	}

	// -------- REVOCATION --------
	revoked := b.revocation
	if revoked == nil && cfg.Revocation.Enabled {
		if b.redis != nil {
			revoked = revocation.NewRedisList(b.redis, cfg.Revocation.RedisPrefix)
		} else {
			revoked = revocation.NewMemoryList(now)
		}
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		logger:      logger,
		now:         now,
		roles:       roles,
		tokens:      tokens,
		limiter:     limiter,
		rateStore:   storeName,
		verifier:    verifier,
		dummyDigest: dummy,
		users:       b.users,
		creator:     b.creator,
		updater:     b.updater,
		revocation:  revoked,
		metrics:     b.metrics,
	}

	// -------- PIPELINE --------
	engine.validator = security.NewValidator(cfg.Roles.AllowedRoles)
	var guard security.Gate
	if cfg.Sanitizer.RejectInjection {
		guard = security.InjectionGuard{}
	}
	engine.pipeline = security.NewPipeline(
		security.NewRateLimitGate(limiter, logger, func(c security.RouteClass) {
			engine.metrics.RateLimited(string(c))
		}),
		security.NewSanitizer(cfg.Sanitizer.MaxFieldLength),
		guard,
		engine.validator,
	)

	// -------- AUDIT / POLICY --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink, audit.WithClock(now), audit.WithDropHook(engine.metrics.AuditDropped))
	engine.enforcer = policy.NewEnforcer(logger, engine, now)

	if sw, ok := store.(rate.Sweeper); ok {
		ctx, cancel := context.WithCancel(context.Background())
		engine.stopSweep = cancel
		go rate.RunSweeper(ctx, sw, rateSweepInterval)
	}

	b.built = true

	return engine, nil
}
