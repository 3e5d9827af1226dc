package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultCheckInterval is how often the monitor re-evaluates status.
	DefaultCheckInterval = 60 * time.Second
	// DefaultStaleAfter is the staleness threshold: a session whose last
	// activity is older than this is no longer considered fresh.
	DefaultStaleAfter = 24 * time.Hour
)

// Config holds the monitor's timing parameters.
type Config struct {
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{CheckInterval: DefaultCheckInterval, StaleAfter: DefaultStaleAfter}
}

// Validate rejects non-positive durations.
func (c Config) Validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("session check interval must be positive, got %s", c.CheckInterval)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("session stale-after must be positive, got %s", c.StaleAfter)
	}
	return nil
}

// IdentitySource reports the currently authenticated identity, if any.
type IdentitySource interface {
	CurrentIdentity() (id string, ok bool)
}

// StatusFunc is invoked after the status changes.
type StatusFunc func(from, to Status)

// Monitor derives the session's security status from identity presence and
// the age of the last recorded interaction. Status is written only by
// Evaluate; readers always see a fully computed value.
type Monitor struct {
	cfg      Config
	identity IdentitySource
	store    ActivityStore
	clock    clock.Clock
	logger   *slog.Logger

	mu            sync.Mutex
	lastActivity  time.Time
	activityKnown bool
	listeners     []StatusFunc

	// evalMu serializes evaluations so listeners observe transitions in order.
	evalMu sync.Mutex
	status atomic.Value // Status

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithStore sets the activity store. Defaults to a MemoryStore.
func WithStore(store ActivityStore) Option {
	return func(m *Monitor) {
		m.store = store
	}
}

// NewMonitor creates a monitor in the secure state. It does not tick until
// Start is called.
func NewMonitor(cfg Config, identity IdentitySource, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		cfg:      cfg,
		identity: identity,
		store:    &MemoryStore{},
		clock:    clock.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session_monitor")
	m.status.Store(StatusSecure)
	return m, nil
}

// Status returns the most recently evaluated status.
func (m *Monitor) Status() Status {
	return m.status.Load().(Status)
}

// LastActivity returns the last recorded interaction instant, or ok=false
// when it is unknown.
func (m *Monitor) LastActivity() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity, m.activityKnown
}

// OnStatusChange registers fn to run after every status transition.
func (m *Monitor) OnStatusChange(fn StatusFunc) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Start loads the persisted activity instant, evaluates once, and begins
// re-evaluating every CheckInterval until Stop is called or ctx is
// cancelled. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	m.loadActivity()
	m.Evaluate()

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	ticker := m.clock.Ticker(m.cfg.CheckInterval)
	go m.loop(ctx, ticker, m.done)
}

// Stop cancels the periodic evaluation and waits for it to exit. It is
// safe to call more than once.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

func (m *Monitor) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

// loadActivity seeds the activity instant from the store. A session with
// nothing stored starts fresh; a failed read leaves the instant unknown,
// which evaluates as stale.
func (m *Monitor) loadActivity() {
	at, ok, err := m.store.LoadLastActivity()
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case err != nil:
		m.logger.Warn("failed to load last activity; treating session as stale", "error", err)
		m.activityKnown = false
	case !ok:
		m.lastActivity = now
		m.activityKnown = true
		if err := m.store.SaveLastActivity(now); err != nil {
			m.logger.Warn("failed to persist last activity", "error", err)
		}
	default:
		m.lastActivity = at
		m.activityKnown = true
	}
}

// RecordActivity marks "now" as the last interaction if kind is a
// recognized interaction. It reports whether the signal was accepted.
func (m *Monitor) RecordActivity(kind Interaction) bool {
	if !kind.Valid() {
		return false
	}
	now := m.clock.Now()
	m.mu.Lock()
	m.lastActivity = now
	m.activityKnown = true
	m.mu.Unlock()

	if err := m.store.SaveLastActivity(now); err != nil {
		m.logger.Warn("failed to persist last activity", "error", err, "interaction", string(kind))
	}
	return true
}

// IdentityChanged re-evaluates immediately. The identity provider calls it
// on login and logout.
func (m *Monitor) IdentityChanged() {
	m.Evaluate()
}

// Evaluate applies the transition rules and returns the new status:
// no identity or stale activity gives warning, anything else secure.
func (m *Monitor) Evaluate() Status {
	m.evalMu.Lock()
	defer m.evalMu.Unlock()

	next := m.compute()
	prev := m.status.Swap(next).(Status)
	if prev != next {
		m.logger.Info("session status changed", "from", string(prev), "to", string(next))
		m.mu.Lock()
		listeners := append([]StatusFunc(nil), m.listeners...)
		m.mu.Unlock()
		for _, fn := range listeners {
			fn(prev, next)
		}
	}
	return next
}

func (m *Monitor) compute() Status {
	if m.identity == nil {
		return StatusWarning
	}
	if _, ok := m.identity.CurrentIdentity(); !ok {
		return StatusWarning
	}
	m.mu.Lock()
	last, known := m.lastActivity, m.activityKnown
	m.mu.Unlock()
	if !known || m.clock.Now().Sub(last) > m.cfg.StaleAfter {
		return StatusWarning
	}
	return StatusSecure
}
