// Package audit records security-relevant authentication events. Events are
// published to a broker for offline review; recording never fails the
// request that triggered it.
package audit

import (
	"context"
	"time"

	"tidepool-web/internal/observability"
)

// Event names recorded by the auth flows.
const (
	EventUserRegistered = "user.registered"
	EventRegisterFailed = "user.register_failed"
	EventLoginSucceeded = "user.login"
	EventLoginFailed    = "user.login_failed"
	EventUserLoggedOut  = "user.logout"
	EventRateLimited    = "auth.rate_limited"
	EventCSRFRejected   = "auth.csrf_rejected"
)

// Event is a single audit record. Session tokens and passwords are never
// carried in events.
type Event struct {
	Name       string            `json:"name"`
	UserID     string            `json:"user_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	RemoteIP   string            `json:"remote_ip,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Recorder sinks audit events. Implementations log and count failures
// instead of returning them.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// LogRecorder writes events to the structured log. Used in development and
// as the fallback when no broker is configured.
type LogRecorder struct{}

func NewLogRecorder() *LogRecorder {
	return &LogRecorder{}
}

// Record logs the event. Email addresses stay out of the log line; the
// full record only travels over the broker.
func (*LogRecorder) Record(_ context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	observability.Security(event.Name,
		"user_id", event.UserID,
		"remote_ip", event.RemoteIP,
	)
	observability.AuditEventsPublished.WithLabelValues(event.Name, "ok").Inc()
}
