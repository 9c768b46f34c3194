package portalauth

import (
	"io"
	"log/slog"

	"github.com/dave593/portalauth/internal/audit"
)

// AuditEvent is one audit record emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine. Emit must not
// block for long; a slow sink fills the buffer and events are dropped when
// AuditConfig.DropIfFull is set.
type AuditSink = audit.Sink

// Audit event types.
const (
	AuditAccessDenied    = audit.EventAccessDenied
	AuditLoginSuccess    = audit.EventLoginSuccess
	AuditLoginFailure    = audit.EventLoginFailure
	AuditRegister        = audit.EventRegister
	AuditRefresh         = audit.EventRefresh
	AuditRefreshReuse    = audit.EventRefreshReuse
	AuditLogout          = audit.EventLogout
	AuditPasswordChanged = audit.EventPasswordChanged
	AuditRateLimited     = audit.EventRateLimited
	AuditRequestRejected = audit.EventRequestRejected
)

// NoOpAuditSink discards events.
type NoOpAuditSink = audit.NoOpSink

// ChannelAuditSink forwards events to a buffered channel.
type ChannelAuditSink = audit.ChannelSink

// JSONWriterAuditSink writes one JSON object per line.
type JSONWriterAuditSink = audit.JSONWriterSink

// NewChannelAuditSink returns a sink whose Events channel holds buffer events.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterAuditSink returns a sink writing JSON lines to w.
func NewJSONWriterAuditSink(w io.Writer) *JSONWriterAuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogAuditSink returns a sink that logs events through logger.
func NewSlogAuditSink(logger *slog.Logger) AuditSink {
	return audit.NewSlogSink(logger)
}
