// Package audit emits structured security audit events. Events go to the
// application logger today; the Sink interface keeps the door open for a DB
// or SIEM backend without touching call sites.
package audit

import (
	"context"
	"time"

	"github.com/edustack/campusid/internal/observability/logger"
)

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink interface {
	// LogAuditEvent records a normal lifecycle event (login, link, refresh...).
	LogAuditEvent(ctx context.Context, event string, fields map[string]any)

	// LogSecurityViolation records an event on the suspicious-activity channel
	// (CSRF/state mismatches, invalid_client, invalid_grant).
	LogSecurityViolation(ctx context.Context, event string, fields map[string]any)

	// LogFailedOperation records an operation that failed for non-security
	// reasons (provider outage, refresh failure during a sweep).
	LogFailedOperation(ctx context.Context, op string, err error, fields map[string]any)
}

// LogSink writes audit events through the zap singleton.
type LogSink struct{}

// NewLogSink returns the default logger-backed sink.
func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) LogAuditEvent(ctx context.Context, event string, fields map[string]any) {
	log := logger.From(ctx).With(logger.Component("audit"))
	log.Info("audit_event", expand(event, "audit", fields)...)
}

func (s *LogSink) LogSecurityViolation(ctx context.Context, event string, fields map[string]any) {
	log := logger.From(ctx).With(logger.Component("audit"))
	log.Warn("security_violation", expand(event, "security", fields)...)
}

func (s *LogSink) LogFailedOperation(ctx context.Context, op string, err error, fields map[string]any) {
	log := logger.From(ctx).With(logger.Component("audit"))
	zfields := expand(op, "failure", fields)
	zfields = append(zfields, logger.Err(err))
	log.Warn("failed_operation", zfields...)
}

func expand(event, channel string, fields map[string]any) []logger.Field {
	out := make([]logger.Field, 0, len(fields)+3)
	out = append(out,
		logger.String("event", event),
		logger.String("channel", channel),
		logger.String("ts", time.Now().UTC().Format(time.RFC3339Nano)),
	)
	for k, v := range fields {
		out = append(out, logger.Any(k, v))
	}
	return out
}
