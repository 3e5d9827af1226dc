package audit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlerts_FiresAtThreshold(t *testing.T) {
	var fired []AlertEvent
	mock := clock.NewMock()
	a := NewAlerts(DefaultAlertRules(), func(e AlertEvent) { fired = append(fired, e) }, mock)

	for i := 0; i < 19; i++ {
		a.Observe(EventRateLimitExceeded)
	}
	assert.Empty(t, fired)

	a.Observe(EventRateLimitExceeded)
	require.Len(t, fired, 1)
	assert.Equal(t, EventRateLimitExceeded, fired[0].Event)
	assert.Equal(t, 20, fired[0].Count)
	assert.Equal(t, 20, fired[0].Threshold)

	// Counter resets after an alert.
	a.Observe(EventRateLimitExceeded)
	assert.Len(t, fired, 1)
}

func TestAlerts_WindowExpires(t *testing.T) {
	var fired int
	mock := clock.NewMock()
	a := NewAlerts([]AlertRule{{Event: "x", Window: time.Minute, Threshold: 3}},
		func(AlertEvent) { fired++ }, mock)

	a.Observe("x")
	a.Observe("x")
	mock.Add(2 * time.Minute)
	a.Observe("x")
	assert.Equal(t, 0, fired, "old events should have left the window")
}

func TestAlerts_IgnoresUnknownEventsAndBadRules(t *testing.T) {
	var fired int
	a := NewAlerts([]AlertRule{{Event: "bad", Window: 0, Threshold: 1}},
		func(AlertEvent) { fired++ }, nil)
	a.Observe("bad")
	a.Observe("other")
	assert.Equal(t, 0, fired)

	var nilAlerts *Alerts
	assert.NotPanics(t, func() { nilAlerts.Observe("x") })
}

func TestAlerts_CallbackMayReenter(t *testing.T) {
	var a *Alerts
	var reentered bool
	a = NewAlerts([]AlertRule{{Event: "x", Window: time.Minute, Threshold: 1}}, func(AlertEvent) {
		a.Observe(EventAnomalyDetected)
		reentered = true
	}, clock.NewMock())

	done := make(chan struct{})
	go func() {
		a.Observe("x")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("alert callback deadlocked")
	}
	assert.True(t, reentered)
}
