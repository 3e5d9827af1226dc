package storage

import (
	"encoding/json"
	"fmt"
)

const (
	recordVer = 1
	// SchemeJSON marks records whose Data is a JSON document.
	SchemeJSON = "plain-json"
)

// Record is a stored blob plus the metadata needed for optimistic
// concurrency.
type Record struct {
	Ver     int    `json:"ver"`
	Scheme  string `json:"scheme"`
	Data    []byte `json:"data"`
	Version uint64 `json:"version,omitempty"`
}

// EncodeJSON marshals v into a JSON record carrying the given version.
func EncodeJSON(v any, version uint64) (*Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return &Record{
		Ver:     recordVer,
		Scheme:  SchemeJSON,
		Data:    data,
		Version: version,
	}, nil
}

// DecodeJSON unmarshals a JSON record into v.
func DecodeJSON(rec *Record, v any) error {
	if rec == nil {
		return fmt.Errorf("decoding record: %w", ErrNotFound)
	}
	if rec.Ver != recordVer {
		return fmt.Errorf("unsupported record version: %d", rec.Ver)
	}
	if rec.Scheme != SchemeJSON {
		return fmt.Errorf("unsupported record scheme: %s", rec.Scheme)
	}
	return json.Unmarshal(rec.Data, v)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Ver:     r.Ver,
		Scheme:  r.Scheme,
		Data:    append([]byte(nil), r.Data...),
		Version: r.Version,
	}
}
