package portalauth

import (
	"context"

	"github.com/dave593/portalauth/internal/audit"
	"github.com/dave593/portalauth/policy"
)

// ObserveDeny receives every policy deny from the enforcer.
func (e *Engine) ObserveDeny(ctx context.Context, d policy.Denial) {
	e.metrics.Denied(string(d.Code))
	e.emit(ctx, audit.Event{
		Timestamp: d.At,
		EventType: audit.EventAccessDenied,
		Actor:     d.Actor,
		UserID:    d.UserID,
		Company:   d.Company,
		Resource:  d.Resource,
		Code:      string(d.Code),
	})
}

// RecordDenial logs and audits a deny decided outside Authorize, such as a
// guard that found no credential.
func (e *Engine) RecordDenial(ctx context.Context, resource string, err error) {
	e.enforcer.Record(ctx, nil, resource, policy.Code(CodeOf(err)))
}

func (e *Engine) emit(ctx context.Context, event audit.Event) {
	if e.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP = ClientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}
