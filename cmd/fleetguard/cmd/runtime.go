package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmcleod/fleetguard/audit"
	"github.com/jmcleod/fleetguard/internal/config"
	"github.com/jmcleod/fleetguard/storage"
	bboltstorage "github.com/jmcleod/fleetguard/storage/bbolt"
	"github.com/jmcleod/fleetguard/storage/memory"
	pgstorage "github.com/jmcleod/fleetguard/storage/postgres"
)

// openRepository opens the configured storage backend. The returned
// function releases it.
func openRepository(ctx context.Context, sc config.StorageConfig) (storage.Repository, func(), error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.NewRepository(), func() {}, nil
	case config.DriverBolt:
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(sc.Path, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	case config.DriverPostgres:
		repo, err := pgstorage.NewRepositoryFromDSN(ctx, sc.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

// buildSink assembles the audit sinks enabled in ac. The repository sink
// is returned separately so the API can read the trail back; it is nil
// when audit storage is disabled.
func buildSink(ac config.AuditConfig, repo storage.Repository, log *slog.Logger) (audit.Sink, *audit.RepositorySink) {
	var sinks audit.MultiSink
	var stored *audit.RepositorySink
	if ac.Store {
		stored = audit.NewRepositorySink(repo, audit.WithRecordLogger(log))
		sinks = append(sinks, stored)
	}
	if ac.Log {
		sinks = append(sinks, audit.NewLogSink(log))
	}
	if ac.WebhookURL != "" {
		sinks = append(sinks, audit.NewWebhookSink(ac.WebhookURL, ac.WebhookAuthHeader))
	}
	return sinks, stored
}
