// Package audit emits structured security events to an external sink.
// Reporting is fire-and-forget: a slow or broken sink never blocks or fails
// the caller.
package audit

import (
	"context"
	"maps"
	"time"
)

// Event names emitted by the guard.
const (
	EventLoginSuccess         = "login_success"
	EventLoginFailure         = "login_failure"
	EventLoginRateLimited     = "login_rate_limited"
	EventRegister             = "register"
	EventRegisterFailure      = "register_failure"
	EventRegisterRateLimited  = "register_rate_limited"
	EventLogout               = "logout"
	EventValidationFailure    = "validation_failure"
	EventRateLimitExceeded    = "rate_limit_exceeded"
	EventSessionStatusChanged = "session_status_changed"
	EventAnomalyDetected      = "anomaly_detected"
)

var reserved = map[string]bool{
	EventLoginSuccess:         true,
	EventLoginFailure:         true,
	EventLoginRateLimited:     true,
	EventRegister:             true,
	EventRegisterFailure:      true,
	EventRegisterRateLimited:  true,
	EventLogout:               true,
	EventValidationFailure:    true,
	EventRateLimitExceeded:    true,
	EventSessionStatusChanged: true,
	EventAnomalyDetected:      true,
}

// IsReserved reports whether name is emitted by the guard itself. Events
// relayed on behalf of clients must not use these names.
func IsReserved(name string) bool {
	return reserved[name]
}

// Record is a single security event as handed to a Sink.
type Record struct {
	ID          string         `json:"id"`
	Event       string         `json:"event"`
	Details     map[string]any `json:"details,omitempty"`
	IdentityID  string         `json:"identity_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	ClientAgent string         `json:"client_agent"`
}

// Sink persists records. Implementations may fail independently of the
// reporter's callers.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Write(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

type clientAgentKey struct{}

// WithClientAgent attaches the calling client's agent string (for example
// an HTTP User-Agent) to ctx. Reports made with ctx carry it instead of the
// reporter's default.
func WithClientAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, clientAgentKey{}, agent)
}

// ClientAgentFrom returns the agent stored by WithClientAgent.
func ClientAgentFrom(ctx context.Context) (string, bool) {
	agent, ok := ctx.Value(clientAgentKey{}).(string)
	return agent, ok && agent != ""
}

func cloneDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}
	return maps.Clone(details)
}
