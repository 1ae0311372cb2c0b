// Package store defines the durable home of the session record: a flat
// string-keyed store holding exactly four keys. Drivers (sqlite, redis)
// implement it; the session manager is the only writer.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports that no complete session record exists. A
	// record missing any of its four keys counts as not found: partial
	// state is never restored.
	ErrNotFound = errors.New("store: session record not found")
)

// Durable store keys. Listed here so drivers agree on the wire names and so
// tests can assert "all four written together, all four deleted together".
const (
	KeyCredential    = "credential"
	KeyIdentity      = "identity"
	KeyExpiresAt     = "expires_at"
	KeyPermissionSet = "permission_set"
)

// Record is the persisted session, one string value per durable key. All
// values are stored as strings because the underlying store is a flat
// string-keyed one; the session manager owns (de)serialisation.
type Record struct {
	Credential    string // opaque signed credential
	Identity      string // JSON-encoded domain.Identity
	ExpiresAt     string // Unix seconds, decimal
	PermissionSet string // JSON-encoded list of permission tokens
}

// Store persists the session record. Implementations must make Save and
// Clear atomic over the whole record: a reader can observe the old record or
// the new one, never a mix. Clear is idempotent.
type Store interface {
	// Save writes all four keys together, replacing any prior record.
	Save(ctx context.Context, rec Record) error

	// Load returns the current record, or ErrNotFound when any key is
	// absent. Load never deletes anything, even when what it finds is
	// incomplete; only Clear deletes.
	Load(ctx context.Context) (Record, error)

	// Clear deletes all four keys together. Clearing an already-empty
	// store is a no-op, not an error.
	Clear(ctx context.Context) error

	// ApplyMigrations brings the driver's schema up to date. Drivers
	// without a schema return nil.
	ApplyMigrations() error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
