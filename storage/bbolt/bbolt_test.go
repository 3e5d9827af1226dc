package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/fleetguard/storage"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "guard-test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func record(data string, version uint64) *storage.Record {
	return &storage.Record{Ver: 1, Scheme: storage.SchemeJSON, Data: []byte(data), Version: version}
}

func TestBBoltStorage(t *testing.T) {
	s := NewRepository(newTestDB(t))
	ns := "__session"
	recordType := "ACTIVITY"

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put(ns, recordType, "last", record(`{"at":"x"}`, 0)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(ns, recordType, "last")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Data) != `{"at":"x"}` {
			t.Errorf("unexpected data %q", got.Data)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Put(ns, recordType, "b", record(`{}`, 0))
		s.Put(ns, "OTHER", "c", record(`{}`, 0))
		ids, err := s.List(ns, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "b" || ids[1] != "last" {
			t.Errorf("unexpected ids %v", ids)
		}
		ids, err = s.List("missing", recordType)
		if err != nil || len(ids) != 0 {
			t.Errorf("expected empty list for missing namespace, got %v, %v", ids, err)
		}
	})

	t.Run("PutCAS create-only", func(t *testing.T) {
		if err := s.PutCAS(ns, "ACCOUNT", "a", 0, record(`{}`, 1)); err != nil {
			t.Fatalf("PutCAS (new) failed: %v", err)
		}
		if err := s.PutCAS(ns, "ACCOUNT", "a", 0, record(`{}`, 1)); err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS version match and mismatch", func(t *testing.T) {
		if err := s.PutCAS(ns, "ACCOUNT", "a", 1, record(`{}`, 2)); err != nil {
			t.Fatalf("PutCAS (version match) failed: %v", err)
		}
		if err := s.PutCAS(ns, "ACCOUNT", "a", 1, record(`{}`, 3)); err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
		if err := s.PutCAS(ns, "ACCOUNT", "missing", 1, record(`{}`, 2)); err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed for missing record, got %v", err)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		if _, err := s.Get("nonexistent", recordType, "last"); !errors.Is(err, storage.ErrNamespaceNotFound) {
			t.Errorf("expected ErrNamespaceNotFound, got %v", err)
		}
		if _, err := s.Get(ns, recordType, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(ns, recordType, "b"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ns, recordType, "b"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestBBoltStorage_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Put("__session", "ACTIVITY", "last", record(`{"n":1}`, 0)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.Close()

	s2, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get("__session", "ACTIVITY", "last")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got.Data) != `{"n":1}` {
		t.Errorf("unexpected data after reopen: %q", got.Data)
	}
}
