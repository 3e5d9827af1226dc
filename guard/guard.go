// Package guard wires the rate limiters, the session monitor and the
// security event reporter into one explicitly constructed service.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jmcleod/fleetguard/audit"
	"github.com/jmcleod/fleetguard/credential"
	"github.com/jmcleod/fleetguard/ratelimit"
	"github.com/jmcleod/fleetguard/session"
)

// Guard is the process-wide security context. Construct one with New, call
// Start, and Close it on shutdown.
type Guard struct {
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	api      *ratelimit.Limiter
	auth     *ratelimit.Limiter
	monitor  *session.Monitor
	reporter *audit.Reporter

	store        session.ActivityStore
	clientAgent  string
	alertFn      audit.AlertFunc
	writeTimeout time.Duration

	runMu     sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the time source shared by every component.
func WithClock(c clock.Clock) Option {
	return func(g *Guard) {
		g.clock = c
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithActivityStore persists the last-activity instant.
func WithActivityStore(store session.ActivityStore) Option {
	return func(g *Guard) {
		g.store = store
	}
}

// WithClientAgent sets the agent string recorded on events whose context
// carries none.
func WithClientAgent(agent string) Option {
	return func(g *Guard) {
		g.clientAgent = agent
	}
}

// WithSinkTimeout bounds each delivery to the audit sink.
func WithSinkTimeout(d time.Duration) Option {
	return func(g *Guard) {
		g.writeTimeout = d
	}
}

// WithAlertFunc is called for every anomaly in addition to the
// anomaly_detected event the guard reports itself.
func WithAlertFunc(fn audit.AlertFunc) Option {
	return func(g *Guard) {
		g.alertFn = fn
	}
}

// New builds the limiters, the monitor and the reporter. identity supplies
// the current principal to the monitor and to event records. Nothing runs
// in the background until Start.
func New(cfg Config, identity session.IdentitySource, sink audit.Sink, opts ...Option) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("guard config: %w", err)
	}
	g := &Guard{
		cfg:         cfg,
		clock:       clock.New(),
		logger:      slog.Default(),
		store:       &session.MemoryStore{},
		clientAgent: audit.DefaultClientAgent("dev"),
	}
	for _, opt := range opts {
		opt(g)
	}

	var err error
	if g.api, err = ratelimit.New(cfg.APILimit, ratelimit.WithClock(g.clock)); err != nil {
		return nil, fmt.Errorf("api limiter: %w", err)
	}
	if g.auth, err = ratelimit.New(cfg.AuthLimit, ratelimit.WithClock(g.clock)); err != nil {
		return nil, fmt.Errorf("auth limiter: %w", err)
	}
	g.monitor, err = session.NewMonitor(cfg.Session, identity,
		session.WithClock(g.clock),
		session.WithLogger(g.logger),
		session.WithStore(g.store),
	)
	if err != nil {
		return nil, fmt.Errorf("session monitor: %w", err)
	}

	alerts := audit.NewAlerts(cfg.Alerts, g.onAlert, g.clock)
	g.reporter = audit.NewReporter(sink, identity,
		audit.WithClock(g.clock),
		audit.WithLogger(g.logger),
		audit.WithDefaultClientAgent(g.clientAgent),
		audit.WithQueueSize(cfg.QueueSize),
		audit.WithAlerts(alerts),
		audit.WithWriteTimeout(g.writeTimeout),
	)
	g.monitor.OnStatusChange(func(from, to session.Status) {
		g.reporter.Report(context.Background(), audit.EventSessionStatusChanged, map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	})
	g.logger = g.logger.With("component", "guard")
	return g, nil
}

func (g *Guard) onAlert(alert audit.AlertEvent) {
	g.logger.Warn("security anomaly detected",
		"event", alert.Event,
		"message", alert.Message,
		"count", alert.Count,
		"window", alert.Window.String(),
	)
	g.reporter.Report(context.Background(), audit.EventAnomalyDetected, map[string]any{
		"event":     alert.Event,
		"message":   alert.Message,
		"count":     alert.Count,
		"threshold": alert.Threshold,
	})
	if g.alertFn != nil {
		g.alertFn(alert)
	}
}

// Start launches the session monitor and the limiter sweeps. Calling it
// again while running is a no-op.
func (g *Guard) Start(ctx context.Context) {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	if g.cancel != nil {
		return
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.monitor.Start(ctx)
	for _, l := range []*ratelimit.Limiter{g.api, g.auth} {
		g.wg.Add(1)
		go func(l *ratelimit.Limiter) {
			defer g.wg.Done()
			l.Run(ctx, g.cfg.SweepInterval)
		}(l)
	}
}

// Close stops background work and flushes pending events. It is safe to
// call more than once.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		g.runMu.Lock()
		if g.cancel != nil {
			g.cancel()
		}
		g.runMu.Unlock()
		g.wg.Wait()
		g.monitor.Stop()
		g.reporter.Close()
	})
}

// IsRateLimited consumes one API attempt for key and reports whether it
// was rejected. Rejections are reported as rate_limit_exceeded.
func (g *Guard) IsRateLimited(ctx context.Context, key string) bool {
	if g.api.IsAllowed(key) {
		return false
	}
	retry := g.api.RetryAfter(key)
	g.reporter.Report(ctx, audit.EventRateLimitExceeded, map[string]any{
		"key":                 key,
		"retry_after_seconds": ratelimit.CeilSeconds(retry),
	})
	return true
}

// RetryAfter returns how long key must wait before the API limiter admits
// it again.
func (g *Guard) RetryAfter(key string) time.Duration {
	return g.api.RetryAfter(key)
}

// ReportSecurityEvent forwards an application-level event to the audit
// sink. It never blocks on or fails because of the sink.
func (g *Guard) ReportSecurityEvent(ctx context.Context, event string, details map[string]any) {
	g.reporter.Report(ctx, event, details)
}

// SecurityStatus returns the session monitor's current status.
func (g *Guard) SecurityStatus() session.Status {
	return g.monitor.Status()
}

// LastActivity returns the last recorded interaction instant.
func (g *Guard) LastActivity() (time.Time, bool) {
	return g.monitor.LastActivity()
}

// RecordActivity feeds a user interaction to the session monitor. Unknown
// kinds are ignored and reported as false.
func (g *Guard) RecordActivity(kind session.Interaction) bool {
	return g.monitor.RecordActivity(kind)
}

// IdentityChanged re-evaluates the session status immediately.
func (g *Guard) IdentityChanged() {
	g.monitor.IdentityChanged()
}

// PasswordPolicy returns the configured password rules.
func (g *Guard) PasswordPolicy() credential.Policy {
	return g.cfg.Password
}
