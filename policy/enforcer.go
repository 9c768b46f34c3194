package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/dave593/portalauth/identity"
)

// Denial describes one refused access for logging and auditing.
type Denial struct {
	Actor    string
	UserID   string
	Company  string
	Resource string
	Code     Code
	At       time.Time
}

// DenyObserver is notified of every deny, e.g. to emit audit events or metrics.
type DenyObserver interface {
	ObserveDeny(ctx context.Context, d Denial)
}

// Enforcer evaluates requirements and records denials.
type Enforcer struct {
	logger   *slog.Logger
	observer DenyObserver
	now      func() time.Time
}

// NewEnforcer builds an Enforcer. Nil logger and clock fall back to
// slog.Default and time.Now; observer may be nil.
func NewEnforcer(logger *slog.Logger, observer DenyObserver, now func() time.Time) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Enforcer{logger: logger, observer: observer, now: now}
}

// Authorize evaluates req against p and records the outcome when denied.
func (e *Enforcer) Authorize(ctx context.Context, p *identity.Principal, req Requirement) Decision {
	d := Evaluate(p, req)
	if !d.Allowed {
		e.record(ctx, p, req.Resource, d.Reason)
	}
	return d
}

// Record logs a deny produced outside Authorize.
func (e *Enforcer) Record(ctx context.Context, p *identity.Principal, resource string, code Code) {
	e.record(ctx, p, resource, code)
}

func (e *Enforcer) record(ctx context.Context, p *identity.Principal, resource string, code Code) {
	den := Denial{Resource: resource, Code: code, At: e.now().UTC()}
	if p != nil {
		den.Actor = p.Email
		den.UserID = p.ID
		den.Company = p.Company
	}

	e.logger.LogAttrs(ctx, slog.LevelWarn, "access denied",
		slog.String("actor", den.Actor),
		slog.String("resource", den.Resource),
		slog.String("code", string(den.Code)),
		slog.Time("at", den.At),
	)
	if e.observer != nil {
		e.observer.ObserveDeny(ctx, den)
	}
}
