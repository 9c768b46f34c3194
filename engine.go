package portalauth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/internal/audit"
	"github.com/dave593/portalauth/internal/rate"
	"github.com/dave593/portalauth/jwt"
	"github.com/dave593/portalauth/metrics"
	"github.com/dave593/portalauth/permission"
	"github.com/dave593/portalauth/policy"
	"github.com/dave593/portalauth/security"
)

// Engine is the session façade. It is safe for concurrent use once returned
// by [Builder.Build].
type Engine struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	roles     *permission.RoleTable
	tokens    *jwt.Manager
	limiter   *rate.Limiter
	rateStore string
	pipeline  *security.Pipeline
	validator *security.Validator
	enforcer  *policy.Enforcer

	verifier    CredentialVerifier
	dummyDigest string

	users      UserProvider
	creator    UserCreator
	updater    PasswordUpdater
	revocation RevocationList

	audit   *audit.Dispatcher
	metrics *metrics.Collector

	stopSweep func()
}

// rateSweepInterval paces eviction of idle in-process rate-limit entries.
const rateSweepInterval = time.Minute

// Close stops background sweeping and flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.stopSweep != nil {
		e.stopSweep()
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Roles returns the frozen role table.
func (e *Engine) Roles() *permission.RoleTable {
	return e.roles
}

// TenantField returns the body field that carries a requested company.
func (e *Engine) TenantField() string {
	return e.config.Tenant.Field
}

// Screen runs req through the security pipeline: rate limit, sanitize,
// injection guard and validation, stopping at the first failure. Body, Query
// and Params are rewritten in place with their sanitized values. The returned
// error is a *security.Failure.
func (e *Engine) Screen(ctx context.Context, req *security.Request) error {
	f := e.pipeline.Run(ctx, req)
	if f == nil {
		return nil
	}

	event := audit.EventRequestRejected
	if f.Code == security.CodeRateLimited {
		event = audit.EventRateLimited
	}
	e.emit(ctx, audit.Event{
		EventType: event,
		Resource:  req.Endpoint,
		IP:        req.ClientAddr,
		Code:      string(f.Code),
	})
	return f
}

// Verify checks an access token and returns its Principal. An empty token is
// ErrAuthRequired; every other failure, including a revoked token or an
// unreachable revocation list, is ErrInvalidToken.
func (e *Engine) Verify(ctx context.Context, token string) (identity.Principal, error) {
	defer e.metrics.Observe("verify", time.Now())

	token = strings.TrimSpace(token)
	if token == "" {
		e.metrics.Verify("missing")
		return identity.Principal{}, ErrAuthRequired
	}

	v, err := e.tokens.VerifyAccess(token)
	if err != nil {
		outcome := jwt.Classify(err)
		e.logVerifyFailure(ctx, outcome)
		e.metrics.Verify(outcome)
		return identity.Principal{}, ErrInvalidToken
	}

	if e.revocation != nil {
		revoked, err := e.revocation.IsRevoked(ctx, v.TokenID)
		if err != nil {
			e.logger.ErrorContext(ctx, "revocation check failed",
				slog.String("error", err.Error()),
				slog.String("request_id", requestIDFromContext(ctx)),
			)
			e.metrics.Verify("unavailable")
			return identity.Principal{}, fmt.Errorf("%w: revocation check failed", ErrInvalidToken)
		}
		if revoked {
			e.logVerifyFailure(ctx, "revoked")
			e.metrics.Verify("revoked")
			return identity.Principal{}, ErrInvalidToken
		}
	}

	e.metrics.Verify("ok")
	return v.Principal, nil
}

// Authenticate is optional authentication: it returns the Principal when token
// verifies and false otherwise, never an error.
func (e *Engine) Authenticate(ctx context.Context, token string) (identity.Principal, bool) {
	if strings.TrimSpace(token) == "" {
		return identity.Principal{}, false
	}
	p, err := e.Verify(ctx, token)
	if err != nil {
		return identity.Principal{}, false
	}
	return p, true
}

// Authorize evaluates req for p: role, then permissions, then tenant scope.
// Every deny is logged at warn with actor, resource, code and time.
func (e *Engine) Authorize(ctx context.Context, p *identity.Principal, req policy.Requirement) error {
	d := e.enforcer.Authorize(ctx, p, req)
	if d.Allowed {
		return nil
	}
	return errorForDecision(d)
}

// WhoAmI verifies token and re-reads the account so the profile reflects the
// current store. A user that no longer exists invalidates the token.
func (e *Engine) WhoAmI(ctx context.Context, token string) (UserProfile, error) {
	p, err := e.Verify(ctx, token)
	if err != nil {
		return UserProfile{}, err
	}

	rec, found, err := e.users.FindByID(ctx, p.ID)
	if err != nil {
		return UserProfile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !found {
		return UserProfile{}, ErrInvalidToken
	}
	return profileFromRecord(rec, p), nil
}

func errorForDecision(d policy.Decision) error {
	switch {
	case d.Reason == policy.CodeAuthRequired:
		return ErrAuthRequired
	case d.Reason == policy.CodeCompanyAccessDenied:
		return ErrCompanyAccessDenied
	case d.Check == policy.CheckRole:
		return ErrInsufficientRole
	default:
		return ErrInsufficientPermissions
	}
}

func (e *Engine) logVerifyFailure(ctx context.Context, outcome string) {
	e.logger.LogAttrs(ctx, slog.LevelWarn, "token verification failed",
		slog.String("outcome", outcome),
		slog.String("client", ClientIPFromContext(ctx)),
		slog.String("request_id", requestIDFromContext(ctx)),
	)
}

// principalFromRecord converts a stored account into the Principal minted
// into tokens. Unknown roles or permission names fail.
func (e *Engine) principalFromRecord(rec UserRecord) (identity.Principal, error) {
	role, err := e.roles.Parse(rec.Role)
	if err != nil {
		return identity.Principal{}, err
	}
	requested, err := e.roles.ParsePermissions(rec.Permissions)
	if err != nil {
		return identity.Principal{}, err
	}
	return identity.Principal{
		ID:          rec.ID,
		Email:       identity.NormalizeEmail(rec.Email),
		Role:        role,
		Company:     rec.Company,
		Permissions: e.roles.Clamp(role, requested),
	}, nil
}
