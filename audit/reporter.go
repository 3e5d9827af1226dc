package audit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/jmcleod/fleetguard/session"
)

const (
	// DefaultQueueSize is the bounded capacity of the outbound queue.
	DefaultQueueSize = 1024
	// DefaultWriteTimeout bounds a single sink write.
	DefaultWriteTimeout = 10 * time.Second
)

// DefaultClientAgent identifies this process when the caller supplies no
// agent of its own.
func DefaultClientAgent(version string) string {
	return fmt.Sprintf("fleetguard/%s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

// Reporter builds records and hands them to a Sink from a background
// goroutine. Events are enqueued without blocking; when the queue is full
// they are dropped with a warning.
type Reporter struct {
	sink         Sink
	identity     session.IdentitySource
	clock        clock.Clock
	logger       *slog.Logger
	clientAgent  string
	writeTimeout time.Duration
	alerts       *Alerts

	mu     sync.RWMutex
	closed bool
	events chan Record
	wg     sync.WaitGroup
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithClock sets the time source for record timestamps.
func WithClock(c clock.Clock) ReporterOption {
	return func(r *Reporter) {
		r.clock = c
	}
}

// WithLogger sets the logger used for dropped events and sink failures.
func WithLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// WithDefaultClientAgent sets the agent used when the context has none.
func WithDefaultClientAgent(agent string) ReporterOption {
	return func(r *Reporter) {
		r.clientAgent = agent
	}
}

// WithQueueSize sets the outbound queue capacity.
func WithQueueSize(n int) ReporterOption {
	return func(r *Reporter) {
		if n > 0 {
			r.events = make(chan Record, n)
		}
	}
}

// WithWriteTimeout bounds each sink write. Non-positive values keep the
// default.
func WithWriteTimeout(d time.Duration) ReporterOption {
	return func(r *Reporter) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithAlerts feeds every reported event through the anomaly detector.
func WithAlerts(a *Alerts) ReporterOption {
	return func(r *Reporter) {
		r.alerts = a
	}
}

// NewReporter creates a reporter and starts its dispatch loop. identity may
// be nil, in which case records carry no identity.
func NewReporter(sink Sink, identity session.IdentitySource, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		sink:         sink,
		identity:     identity,
		clock:        clock.New(),
		logger:       slog.Default(),
		clientAgent:  DefaultClientAgent("dev"),
		writeTimeout: DefaultWriteTimeout,
		events:       make(chan Record, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "audit")
	r.wg.Add(1)
	go r.loop()
	return r
}

// Report records event with optional details. It never blocks on the sink
// and never fails; problems are logged locally.
func (r *Reporter) Report(ctx context.Context, event string, details map[string]any) {
	rec := Record{
		ID:          uuid.NewString(),
		Event:       event,
		Details:     cloneDetails(details),
		Timestamp:   r.clock.Now().UTC(),
		ClientAgent: r.clientAgent,
	}
	if agent, ok := ClientAgentFrom(ctx); ok {
		rec.ClientAgent = agent
	}
	if r.identity != nil {
		if id, ok := r.identity.CurrentIdentity(); ok {
			rec.IdentityID = id
		}
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.logger.Warn("reporter closed, dropping event", "event", event)
		return
	}
	select {
	case r.events <- rec:
	default:
		r.logger.Warn("queue full, dropping event", "event", event)
	}
	r.mu.RUnlock()

	if r.alerts != nil {
		r.alerts.Observe(event)
	}
}

// Close stops accepting events and waits until queued ones are written.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reporter) loop() {
	defer r.wg.Done()
	for rec := range r.events {
		r.write(rec)
	}
}

func (r *Reporter) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("sink panicked", "event", rec.Event, "id", rec.ID, "panic", p)
		}
	}()
	if err := r.sink.Write(ctx, rec); err != nil {
		r.logger.Warn("sink write failed", "event", rec.Event, "id", rec.ID, "error", err)
	}
}
