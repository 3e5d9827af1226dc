package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fleetguard/storage"
	"github.com/jmcleod/fleetguard/storage/memory"
)

func TestRepositorySink_ListNewestFirst(t *testing.T) {
	sink := NewRepositorySink(memory.NewRepository())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []string{EventLoginFailure, EventLoginSuccess, EventLoginFailure}
	for i, ev := range events {
		require.NoError(t, sink.Write(context.Background(), Record{
			ID:        ev + string(rune('a'+i)),
			Event:     ev,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := sink.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.After(all[1].Timestamp))
	assert.True(t, all[1].Timestamp.After(all[2].Timestamp))

	failures, err := sink.List(EventLoginFailure, 0)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	for _, rec := range failures {
		assert.Equal(t, EventLoginFailure, rec.Event)
	}

	limited, err := sink.List("", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, base.Add(2*time.Minute), limited[0].Timestamp)
}

func TestRepositorySink_AppendOnly(t *testing.T) {
	sink := NewRepositorySink(memory.NewRepository())
	rec := Record{ID: "fixed", Event: EventLogout, Timestamp: time.Now().UTC()}
	require.NoError(t, sink.Write(context.Background(), rec))
	assert.Error(t, sink.Write(context.Background(), rec))
	assert.Error(t, sink.Write(context.Background(), Record{Event: EventLogout}))
}

func TestRepositorySink_EmptyList(t *testing.T) {
	sink := NewRepositorySink(memory.NewRepository())
	recs, err := sink.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type brokenGetRepo struct {
	*memory.Repository
}

func (brokenGetRepo) Get(namespace, recordType, recordID string) (*storage.Record, error) {
	return nil, errors.New("disk read failed")
}

func TestRepositorySink_ListReturnsStorageErrors(t *testing.T) {
	repo := brokenGetRepo{memory.NewRepository()}
	sink := NewRepositorySink(repo)
	require.NoError(t, sink.Write(context.Background(), Record{ID: "r1", Event: EventLogout, Timestamp: time.Now()}))

	_, err := sink.List("", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk read failed")
}

func TestRepositorySink_ListLogsUnreadableRecords(t *testing.T) {
	repo := memory.NewRepository()
	var logs bytes.Buffer
	sink := NewRepositorySink(repo, WithRecordLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	require.NoError(t, sink.Write(context.Background(), Record{ID: "good", Event: EventLogout, Timestamp: time.Now()}))

	bad, err := storage.EncodeJSON(Record{ID: "bad"}, 0)
	require.NoError(t, err)
	bad.Data = []byte("{not json")
	require.NoError(t, repo.Put(auditNamespace, auditRecordType, "bad", bad))

	recs, err := sink.List("", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "good", recs[0].ID)
	assert.Contains(t, logs.String(), "skipping unreadable audit record")
	assert.Contains(t, logs.String(), `"id":"bad"`)
}

func TestIsReserved(t *testing.T) {
	for _, name := range []string{EventLoginSuccess, EventRateLimitExceeded, EventAnomalyDetected, EventSessionStatusChanged} {
		assert.True(t, IsReserved(name), name)
	}
	assert.False(t, IsReserved("trip_export"))
	assert.False(t, IsReserved(""))
}

func TestLogSink_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	err := sink.Write(context.Background(), Record{
		ID:         "rec-1",
		Event:      EventRateLimitExceeded,
		IdentityID: "user-1",
		Details:    map[string]any{"key": "10.0.0.1"},
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `"msg":"security_event"`)
	assert.Contains(t, out, `"event":"rate_limit_exceeded"`)
	assert.Contains(t, out, `"identity_id":"user-1"`)
	assert.Contains(t, out, `"component":"audit"`)
}

func TestMultiSink_FansOutAndJoinsErrors(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	boom := errors.New("boom")
	m := MultiSink{first, SinkFunc(func(context.Context, Record) error { return boom }), second}

	err := m.Write(context.Background(), Record{ID: "x", Event: EventLogout})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.all(), 1)
	assert.Len(t, second.all(), 1)

	assert.NoError(t, MultiSink{first}.Write(context.Background(), Record{ID: "y"}))
}
