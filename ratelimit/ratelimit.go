// Package ratelimit implements a sliding-window attempt limiter keyed by
// arbitrary strings (a normalized email, a client IP, a resource name).
//
// Only attempts inside the trailing window count toward the budget; older
// attempts expire continuously rather than at fixed boundaries. Rejected
// attempts are not recorded, so hammering a blocked key does not extend
// its lockout.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultAPIWindow and DefaultAPIMaxAttempts bound generic API calls:
	// a larger budget with a shorter memory.
	DefaultAPIWindow      = 1 * time.Minute
	DefaultAPIMaxAttempts = 100

	// DefaultAuthWindow and DefaultAuthMaxAttempts bound login and
	// registration attempts: a small budget with a longer memory.
	DefaultAuthWindow      = 15 * time.Minute
	DefaultAuthMaxAttempts = 5

	// DefaultSweepInterval is how often Run discards idle keys.
	DefaultSweepInterval = 5 * time.Minute
)

// Config holds the window size and attempt budget of a Limiter.
type Config struct {
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// APIConfig returns the default configuration for generic API calls.
func APIConfig() Config {
	return Config{Window: DefaultAPIWindow, MaxAttempts: DefaultAPIMaxAttempts}
}

// AuthConfig returns the default configuration for authentication attempts.
func AuthConfig() Config {
	return Config{Window: DefaultAuthWindow, MaxAttempts: DefaultAuthMaxAttempts}
}

// Validate reports whether both the window and the budget are positive.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("rate limit max attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}

// Limiter is a sliding-window rate limiter. Each key owns its own lock so
// callers using different keys never wait on each other beyond the brief
// map lookup.
type Limiter struct {
	cfg   Config
	clock clock.Clock

	mu   sync.Mutex
	keys map[string]*keyState
}

// keyState holds the chronological attempt timestamps for one key.
// removed is set when the state has been dropped from the map; a caller
// that raced with the removal must look the key up again.
type keyState struct {
	mu       sync.Mutex
	attempts []time.Time
	removed  bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source. Tests pass a *clock.Mock.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// New creates a Limiter with its own, unshared key storage.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		cfg:   cfg,
		clock: clock.New(),
		keys:  make(map[string]*keyState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// IsAllowed prunes expired attempts for key, then records a new attempt and
// returns true if the key is under its budget. When the budget is exhausted
// it returns false and records nothing.
func (l *Limiter) IsAllowed(key string) bool {
	for {
		st := l.loadOrCreate(key)
		st.mu.Lock()
		if st.removed {
			st.mu.Unlock()
			continue
		}
		now := l.clock.Now()
		st.prune(now, l.cfg.Window)
		if len(st.attempts) >= l.cfg.MaxAttempts {
			st.mu.Unlock()
			return false
		}
		st.attempts = append(st.attempts, now)
		st.mu.Unlock()
		return true
	}
}

// Reset forgets every attempt recorded for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.keys[key]
	if !ok {
		return
	}
	delete(l.keys, key)
	st.mu.Lock()
	st.removed = true
	st.attempts = nil
	st.mu.Unlock()
}

// Remaining returns how many attempts key may still make in the current
// window.
func (l *Limiter) Remaining(key string) int {
	st := l.load(key)
	if st == nil {
		return l.cfg.MaxAttempts
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.prune(l.clock.Now(), l.cfg.Window)
	return max(l.cfg.MaxAttempts-len(st.attempts), 0)
}

// RetryAfter returns how long until key regains one attempt. It is zero
// while the key is under its budget.
func (l *Limiter) RetryAfter(key string) time.Duration {
	st := l.load(key)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := l.clock.Now()
	st.prune(now, l.cfg.Window)
	if len(st.attempts) < l.cfg.MaxAttempts {
		return 0
	}
	// The attempt that has to expire before a slot frees up.
	oldest := st.attempts[len(st.attempts)-l.cfg.MaxAttempts]
	return oldest.Add(l.cfg.Window).Sub(now)
}

// CeilSeconds rounds d up to whole seconds. Non-positive durations are 0.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// Len returns the number of keys currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Sweep drops keys whose attempts have all left the window and returns how
// many were dropped.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	dropped := 0
	for key, st := range l.keys {
		st.mu.Lock()
		st.prune(now, l.cfg.Window)
		if len(st.attempts) == 0 {
			st.removed = true
			delete(l.keys, key)
			dropped++
		}
		st.mu.Unlock()
	}
	return dropped
}

// Run sweeps idle keys every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := l.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Limiter) load(key string) *keyState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys[key]
}

func (l *Limiter) loadOrCreate(key string) *keyState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.keys[key]
	if !ok {
		st = &keyState{}
		l.keys[key] = st
	}
	return st
}

// prune discards attempts at or before now-window. An attempt made exactly
// one window ago no longer counts.
func (s *keyState) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	start := 0
	for start < len(s.attempts) && !s.attempts[start].After(cutoff) {
		start++
	}
	if start > 0 {
		s.attempts = append(s.attempts[:0], s.attempts[start:]...)
	}
}
