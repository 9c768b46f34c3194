package portalauth

import (
	"time"

	"github.com/dave593/portalauth/password"
)

// SecurityReport is a secret-free snapshot of the engine's effective
// security configuration. Lint lists weak settings worth reviewing.
type SecurityReport struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Issuer                string
	Audience              string
	RateLimitStore        string
	RateLimit             RateLimitReport
	PasswordScheme        string
	RevocationAttached    bool
	RefreshReuseDetection bool
	InjectionGuard        bool
	AuditEnabled          bool
	AllowedRoles          []string
	Lint                  []string
}

// RateLimitReport holds the ceilings for the general and auth route classes.
type RateLimitReport struct {
	Window          time.Duration
	MaxRequests     int
	AuthWindow      time.Duration
	AuthMaxRequests int
}

type schemer interface {
	Scheme() password.Scheme
}

// SecurityReport describes the running configuration. It never includes
// key material or password digests. A nil Engine yields the zero report.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	scheme := "custom"
	if s, ok := e.verifier.(schemer); ok {
		scheme = string(s.Scheme())
	}
	limits := e.limiter.Config()

	return SecurityReport{
		SigningAlgorithm: e.tokens.Algorithm(),
		AccessTTL:        e.tokens.AccessTTL(),
		RefreshTTL:       e.tokens.RefreshTTL(),
		Issuer:           e.config.JWT.Issuer,
		Audience:         e.config.JWT.Audience,
		RateLimitStore:   e.rateStore,
		RateLimit: RateLimitReport{
			Window:          limits.Window,
			MaxRequests:     limits.MaxRequests,
			AuthWindow:      limits.AuthWindow,
			AuthMaxRequests: limits.AuthMaxRequests,
		},
		PasswordScheme:        scheme,
		RevocationAttached:    e.revocation != nil,
		RefreshReuseDetection: e.revocation != nil,
		InjectionGuard:        e.config.Sanitizer.RejectInjection,
		AuditEnabled:          e.config.Audit.Enabled,
		AllowedRoles:          append([]string(nil), e.config.Roles.AllowedRoles...),
		Lint:                  e.config.Lint().Codes(),
	}
}
