package audit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Event     string        `json:"event"`
	Message   string        `json:"message"`
	Count     int           `json:"count"`
	Threshold int           `json:"threshold"`
	Window    time.Duration `json:"window"`
	Timestamp time.Time     `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// AlertRule raises an alert when Threshold events named Event arrive
// within Window.
type AlertRule struct {
	Event     string        `mapstructure:"event" yaml:"event"`
	Window    time.Duration `mapstructure:"window" yaml:"window"`
	Threshold int           `mapstructure:"threshold" yaml:"threshold"`
	Message   string        `mapstructure:"message" yaml:"message"`
}

// DefaultAlertRules flags bursts of rate-limit rejections and failed logins.
func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{
			Event:     EventRateLimitExceeded,
			Window:    1 * time.Minute,
			Threshold: 20,
			Message:   "rate limit rejections exceed threshold",
		},
		{
			Event:     EventLoginFailure,
			Window:    1 * time.Minute,
			Threshold: 50,
			Message:   "login failure rate exceeds threshold",
		},
	}
}

// Alerts tracks sliding-window counters per rule.
type Alerts struct {
	mu      sync.Mutex
	clock   clock.Clock
	rules   map[string]AlertRule
	seen    map[string][]time.Time
	alertFn AlertFunc
}

// NewAlerts creates a detector for rules. A nil clock uses the wall clock.
func NewAlerts(rules []AlertRule, alertFn AlertFunc, clk clock.Clock) *Alerts {
	if clk == nil {
		clk = clock.New()
	}
	a := &Alerts{
		clock:   clk,
		rules:   make(map[string]AlertRule, len(rules)),
		seen:    make(map[string][]time.Time),
		alertFn: alertFn,
	}
	for _, rule := range rules {
		if rule.Threshold > 0 && rule.Window > 0 {
			a.rules[rule.Event] = rule
		}
	}
	return a
}

// Observe counts one occurrence of event. The alert callback runs outside
// the lock so it may report further events.
func (a *Alerts) Observe(event string) {
	if a == nil || a.alertFn == nil {
		return
	}
	alert, fire := a.observe(event)
	if fire {
		a.alertFn(alert)
	}
}

func (a *Alerts) observe(event string) (AlertEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rule, ok := a.rules[event]
	if !ok {
		return AlertEvent{}, false
	}
	now := a.clock.Now()
	times := trimWindow(append(a.seen[event], now), now, rule.Window)
	if len(times) < rule.Threshold {
		a.seen[event] = times
		return AlertEvent{}, false
	}
	// Reset to avoid repeated alerts within the same spike.
	a.seen[event] = times[:0]
	return AlertEvent{
		Event:     event,
		Message:   rule.Message,
		Count:     len(times),
		Threshold: rule.Threshold,
		Window:    rule.Window,
		Timestamp: now,
	}, true
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
