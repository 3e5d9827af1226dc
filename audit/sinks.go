package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmcleod/fleetguard/storage"
)

const (
	auditNamespace  = "__audit"
	auditRecordType = "EVENT"
)

// RepositorySink stores records as JSON in a storage.Repository.
type RepositorySink struct {
	repo   storage.Repository
	logger *slog.Logger
}

var _ Sink = (*RepositorySink)(nil)

// RepositorySinkOption configures a RepositorySink.
type RepositorySinkOption func(*RepositorySink)

// WithRecordLogger sets the logger that reports unreadable records found
// while listing.
func WithRecordLogger(logger *slog.Logger) RepositorySinkOption {
	return func(s *RepositorySink) {
		s.logger = logger
	}
}

// NewRepositorySink creates a sink that appends to repo.
func NewRepositorySink(repo storage.Repository, opts ...RepositorySinkOption) *RepositorySink {
	s := &RepositorySink{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "audit_store")
	return s
}

func (s *RepositorySink) Write(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("audit record has no id")
	}
	env, err := storage.EncodeJSON(rec, 0)
	if err != nil {
		return err
	}
	// Create-only: audit records are append-only.
	if err := s.repo.PutCAS(auditNamespace, auditRecordType, rec.ID, 0, env); err != nil {
		return fmt.Errorf("appending audit record %s: %w", rec.ID, err)
	}
	return nil
}

// List returns stored records newest first. A limit of 0 returns all of
// them. When event is non-empty only records with that event name are
// returned. Storage errors abort the listing; records that no longer
// decode are logged and left out.
func (s *RepositorySink) List(event string, limit int) ([]Record, error) {
	ids, err := s.repo.List(auditNamespace, auditRecordType)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		env, err := s.repo.Get(auditNamespace, auditRecordType, id)
		if err != nil {
			return nil, fmt.Errorf("reading audit record %s: %w", id, err)
		}
		var rec Record
		if err := storage.DecodeJSON(env, &rec); err != nil {
			s.logger.Warn("skipping unreadable audit record", "id", id, "error", err)
			continue
		}
		if event != "" && rec.Event != event {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// LogSink writes each record as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a sink that logs to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "audit")}
}

func (s *LogSink) Write(ctx context.Context, rec Record) error {
	attrs := []slog.Attr{
		slog.String("id", rec.ID),
		slog.String("event", rec.Event),
		slog.String("timestamp", rec.Timestamp.Format(time.RFC3339)),
		slog.String("client_agent", rec.ClientAgent),
	}
	if rec.IdentityID != "" {
		attrs = append(attrs, slog.String("identity_id", rec.IdentityID))
	}
	if len(rec.Details) > 0 {
		attrs = append(attrs, slog.Any("details", rec.Details))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "security_event", attrs...)
	return nil
}

// MultiSink writes every record to each of its sinks and joins their
// errors. One failing sink does not stop the others.
type MultiSink []Sink

var _ Sink = MultiSink(nil)

func (m MultiSink) Write(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
