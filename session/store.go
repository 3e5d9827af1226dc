package session

import (
	"errors"
	"sync"
	"time"

	"github.com/jmcleod/fleetguard/storage"
)

const (
	activityNamespace  = "__session"
	activityRecordType = "ACTIVITY"
	activityRecordID   = "last"
)

// ActivityStore persists the last-activity instant so it survives a
// restart within the same session. Writes are last-write-wins.
type ActivityStore interface {
	// LoadLastActivity returns the stored instant, or ok=false if none
	// has been stored yet.
	LoadLastActivity() (at time.Time, ok bool, err error)
	SaveLastActivity(at time.Time) error
}

type activityRecord struct {
	At time.Time `json:"at"`
}

// RepositoryStore is an ActivityStore backed by a storage.Repository.
type RepositoryStore struct {
	repo storage.Repository
}

var _ ActivityStore = (*RepositoryStore)(nil)

// NewRepositoryStore creates an ActivityStore over repo.
func NewRepositoryStore(repo storage.Repository) *RepositoryStore {
	return &RepositoryStore{repo: repo}
}

func (s *RepositoryStore) LoadLastActivity() (time.Time, bool, error) {
	rec, err := s.repo.Get(activityNamespace, activityRecordType, activityRecordID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNamespaceNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var ar activityRecord
	if err := storage.DecodeJSON(rec, &ar); err != nil {
		return time.Time{}, false, err
	}
	return ar.At, true, nil
}

func (s *RepositoryStore) SaveLastActivity(at time.Time) error {
	rec, err := storage.EncodeJSON(activityRecord{At: at.UTC()}, 0)
	if err != nil {
		return err
	}
	return s.repo.Put(activityNamespace, activityRecordType, activityRecordID, rec)
}

// MemoryStore is a process-local ActivityStore.
type MemoryStore struct {
	mu  sync.Mutex
	at  time.Time
	set bool
}

var _ ActivityStore = (*MemoryStore)(nil)

func (s *MemoryStore) LoadLastActivity() (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at, s.set, nil
}

func (s *MemoryStore) SaveLastActivity(at time.Time) error {
	s.mu.Lock()
	s.at = at
	s.set = true
	s.mu.Unlock()
	return nil
}
