// Package store persists committed component state so a restarted server can
// restore what its components held.
//
// A Store only ever sees committed snapshots: state is saved after a
// successful action and its render, never mid-action.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("store: closed")

// Store is a snapshot persistence backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a record, overwriting any previous record with its ID.
	Save(ctx context.Context, rec Record) error

	// Load returns the record for id.
	// Returns (nil, nil) if no record exists.
	Load(ctx context.Context, id string) (*Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}

// Record is one persisted component snapshot.
type Record struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	State     map[string]any `json:"state"`
	Version   uint64         `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Marshal encodes the record for backends that store opaque bytes.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalRecord decodes bytes produced by Record.Marshal.
func UnmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.State == nil {
		r.State = map[string]any{}
	}
	return &r, nil
}
