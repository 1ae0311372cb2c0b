package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/opsdesk/internal/console/store"

	_ "modernc.org/sqlite"
)

// Store persists the session record in a local SQLite file, one row per
// durable key. Save and Clear run inside a transaction so the record is
// replaced or removed wholesale; a partial write is not observable.
type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single local file has a single writer; more connections just
	// invite SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save replaces the whole record in one transaction.
func (s *Store) Save(ctx context.Context, rec store.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_record;`); err != nil {
			return err
		}
		for key, value := range recordKeys(rec) {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO session_record (key, value) VALUES (?, ?);`,
				key, value,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads every stored key and insists on a complete record.
func (s *Store) Load(ctx context.Context) (store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session_record;`)
	if err != nil {
		return store.Record{}, err
	}
	defer rows.Close()

	found := make(map[string]string, 4)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return store.Record{}, err
		}
		found[key] = value
	}
	if err := rows.Err(); err != nil {
		return store.Record{}, err
	}

	return assembleRecord(found)
}

// Clear deletes the whole record. Idempotent: clearing nothing is fine.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_record;`)
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Rollback after commit is a no-op, so this is safe on every path.
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func recordKeys(rec store.Record) map[string]string {
	return map[string]string{
		store.KeyCredential:    rec.Credential,
		store.KeyIdentity:      rec.Identity,
		store.KeyExpiresAt:     rec.ExpiresAt,
		store.KeyPermissionSet: rec.PermissionSet,
	}
}

func assembleRecord(found map[string]string) (store.Record, error) {
	for _, key := range []string{
		store.KeyCredential,
		store.KeyIdentity,
		store.KeyExpiresAt,
		store.KeyPermissionSet,
	} {
		if _, ok := found[key]; !ok {
			return store.Record{}, store.ErrNotFound
		}
	}

	return store.Record{
		Credential:    found[store.KeyCredential],
		Identity:      found[store.KeyIdentity],
		ExpiresAt:     found[store.KeyExpiresAt],
		PermissionSet: found[store.KeyPermissionSet],
	}, nil
}
