package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, max int, window time.Duration) (*Limiter, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	l, err := New(Config{Window: window, MaxAttempts: max}, WithClock(mock))
	require.NoError(t, err)
	return l, mock
}

func TestLimiter_FiveThenBlocked(t *testing.T) {
	l, _ := newTestLimiter(t, 5, 300000*time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, l.IsAllowed("k"), "attempt %d should be allowed", i+1)
	}
	assert.False(t, l.IsAllowed("k"), "sixth attempt within the window should be rejected")
}

func TestLimiter_WindowExpiry(t *testing.T) {
	l, mock := newTestLimiter(t, 5, 300000*time.Millisecond)

	for i := 0; i < 5; i++ {
		l.IsAllowed("k")
	}
	require.False(t, l.IsAllowed("k"))

	mock.Add(299999 * time.Millisecond)
	assert.False(t, l.IsAllowed("k"), "attempts are still inside the window")

	mock.Add(time.Millisecond)
	assert.True(t, l.IsAllowed("k"), "budget should return once the window has fully elapsed")
}

func TestLimiter_SlidingNotFixed(t *testing.T) {
	l, mock := newTestLimiter(t, 2, time.Minute)

	require.True(t, l.IsAllowed("k"))
	mock.Add(40 * time.Second)
	require.True(t, l.IsAllowed("k"))
	require.False(t, l.IsAllowed("k"))

	// The first attempt expires at t=60s; the second one still counts.
	mock.Add(20 * time.Second)
	assert.True(t, l.IsAllowed("k"))
	assert.False(t, l.IsAllowed("k"))
}

func TestLimiter_RejectedAttemptsNotRecorded(t *testing.T) {
	l, mock := newTestLimiter(t, 1, time.Minute)

	require.True(t, l.IsAllowed("k"))
	for i := 0; i < 10; i++ {
		mock.Add(5 * time.Second)
		require.False(t, l.IsAllowed("k"))
	}
	// 50s elapsed; only the original attempt counts.
	mock.Add(10 * time.Second)
	assert.True(t, l.IsAllowed("k"))
}

func TestLimiter_ResetRestoresBudget(t *testing.T) {
	l, _ := newTestLimiter(t, 5, 5*time.Minute)

	for i := 0; i < 5; i++ {
		l.IsAllowed("k")
	}
	require.False(t, l.IsAllowed("k"))

	l.Reset("k")
	assert.True(t, l.IsAllowed("k"))
	assert.Equal(t, 4, l.Remaining("k"))

	// Resetting an unknown key is a no-op.
	l.Reset("never-seen")
}

func TestLimiter_IsolatesKeys(t *testing.T) {
	l, _ := newTestLimiter(t, 5, 5*time.Minute)

	for i := 0; i < 5; i++ {
		l.IsAllowed("a")
	}
	require.False(t, l.IsAllowed("a"))
	assert.True(t, l.IsAllowed("b"), "exhausting one key must not affect another")
}

func TestLimiter_InstancesDoNotShareState(t *testing.T) {
	mock := clock.NewMock()
	api, err := New(APIConfig(), WithClock(mock))
	require.NoError(t, err)
	auth, err := New(AuthConfig(), WithClock(mock))
	require.NoError(t, err)

	for i := 0; i < DefaultAuthMaxAttempts; i++ {
		auth.IsAllowed("user@example.com")
	}
	require.False(t, auth.IsAllowed("user@example.com"))
	assert.True(t, api.IsAllowed("user@example.com"))
}

func TestLimiter_UnseenKey(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)

	assert.Equal(t, 1, l.Remaining("new"))
	assert.Equal(t, time.Duration(0), l.RetryAfter("new"))
	assert.Equal(t, 0, l.Len(), "read-only queries must not create state")
	assert.True(t, l.IsAllowed("new"))
}

func TestLimiter_RetryAfter(t *testing.T) {
	l, mock := newTestLimiter(t, 3, 10*time.Minute)

	l.IsAllowed("k")
	mock.Add(2 * time.Minute)
	l.IsAllowed("k")
	l.IsAllowed("k")
	require.False(t, l.IsAllowed("k"))

	assert.Equal(t, 8*time.Minute, l.RetryAfter("k"))
	assert.Equal(t, 0, l.Remaining("k"))

	mock.Add(8 * time.Minute)
	assert.Equal(t, time.Duration(0), l.RetryAfter("k"))
	assert.Equal(t, 1, l.Remaining("k"))
}

func TestLimiter_ConcurrentSameKey(t *testing.T) {
	l, err := New(Config{Window: time.Hour, MaxAttempts: 5})
	require.NoError(t, err)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.IsAllowed("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load(), "exactly MaxAttempts callers may pass")
}

func TestLimiter_ConcurrentManyKeysWithSweep(t *testing.T) {
	l, err := New(Config{Window: time.Hour, MaxAttempts: 3})
	require.NoError(t, err)

	var wg sync.WaitGroup
	counts := make([]atomic.Int32, 10)
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if l.IsAllowed(fmt.Sprintf("key-%d", i)) {
					counts[i].Add(1)
				}
				l.Sweep()
			}(i)
		}
	}
	wg.Wait()
	for i := range counts {
		assert.Equal(t, int32(3), counts[i].Load(), "key-%d", i)
	}
}

func TestLimiter_SweepDropsIdleKeys(t *testing.T) {
	l, mock := newTestLimiter(t, 5, time.Minute)

	l.IsAllowed("old")
	mock.Add(30 * time.Second)
	l.IsAllowed("fresh")
	mock.Add(31 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 4, l.Remaining("fresh"))
}

func TestLimiter_RunStopsOnCancel(t *testing.T) {
	l, mock := newTestLimiter(t, 5, time.Minute)
	l.IsAllowed("k")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Minute)
		close(done)
	}()

	// Give Run a chance to register its ticker before advancing.
	assert.Eventually(t, func() bool {
		mock.Add(time.Minute)
		return l.Len() == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, APIConfig().Validate())
	assert.NoError(t, AuthConfig().Validate())

	_, err := New(Config{Window: 0, MaxAttempts: 1})
	assert.ErrorContains(t, err, "window must be positive")

	_, err = New(Config{Window: time.Second, MaxAttempts: 0})
	assert.ErrorContains(t, err, "max attempts must be positive")
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, 0, CeilSeconds(0))
	assert.Equal(t, 0, CeilSeconds(-time.Second))
	assert.Equal(t, 1, CeilSeconds(time.Nanosecond))
	assert.Equal(t, 60, CeilSeconds(time.Minute))
	assert.Equal(t, 60, CeilSeconds(59*time.Second+200*time.Millisecond))
	assert.Equal(t, 900, CeilSeconds(15*time.Minute-500*time.Millisecond))
}
