// Package storage provides the namespaced record store shared by the audit
// sink, the activity store and the local identity provider.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when no record has ever been written
	// to the requested namespace.
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// Repository defines the interface for record storage. Records are
// addressed by (namespace, recordType, recordID).
type Repository interface {
	Put(namespace string, recordType string, recordID string, record *Record) error
	Get(namespace string, recordType string, recordID string) (*Record, error)
	List(namespace string, recordType string) ([]string, error)
	Delete(namespace string, recordType string, recordID string) error
	// PutCAS writes the record only if the stored version equals
	// expectedVersion. An expectedVersion of 0 means "create only".
	PutCAS(namespace string, recordType string, recordID string, expectedVersion uint64, record *Record) error
}
