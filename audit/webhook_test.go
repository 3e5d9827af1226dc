package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_SuccessfulDelivery(t *testing.T) {
	var received atomic.Int32
	var got Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, webhookUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "Authorization: Bearer secret-token")
	err := sink.Write(context.Background(), Record{
		ID:        "evt-1",
		Event:     EventLoginSuccess,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, EventLoginSuccess, got.Event)
}

func TestWebhook_RetryOn500(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "", WithRetryDelay(time.Millisecond))
	require.NoError(t, sink.Write(context.Background(), Record{ID: "evt-2", Event: EventLogout}))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestWebhook_GivesUpAfterSecond500(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "", WithRetryDelay(time.Millisecond))
	err := sink.Write(context.Background(), Record{ID: "evt-3", Event: EventLogout})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(2), attempts.Load())
}

func TestWebhook_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "", WithRetryDelay(time.Millisecond))
	err := sink.Write(context.Background(), Record{ID: "evt-4", Event: EventLogout})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestWebhook_ThroughReporter(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := NewReporter(NewWebhookSink(srv.URL, ""), nil)
	for i := 0; i < 3; i++ {
		r.Report(context.Background(), EventLoginFailure, map[string]any{"attempt": i})
	}
	r.Close()
	assert.Equal(t, int32(3), received.Load())
}
