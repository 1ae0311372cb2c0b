// Package redis persists the session record in a Redis hash. Useful when
// the console runs on shared infrastructure where a local file is the wrong
// place for a credential.
package redis

import (
	"context"

	"github.com/aussiebroadwan/opsdesk/internal/console/store"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the hash under which the record lives. Configurable so two
// console instances on one Redis don't trample each other.
const DefaultKey = "opsdesk:session"

type Store struct {
	client *redis.Client
	key    string
}

func NewStore(addr, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

// NewStoreWithClient wraps an existing client. Tests use this with miniredis.
func NewStoreWithClient(client *redis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ApplyMigrations is a no-op: a hash has no schema.
func (s *Store) ApplyMigrations() error { return nil }

// Save replaces the whole record. DEL+HSET run in one MULTI/EXEC so readers
// see the old record or the new one, never a blend.
func (s *Store) Save(ctx context.Context, rec store.Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key,
			store.KeyCredential, rec.Credential,
			store.KeyIdentity, rec.Identity,
			store.KeyExpiresAt, rec.ExpiresAt,
			store.KeyPermissionSet, rec.PermissionSet,
		)
		return nil
	})
	return err
}

// Load reads the hash and insists on all four fields being present.
func (s *Store) Load(ctx context.Context) (store.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return store.Record{}, err
	}

	for _, key := range []string{
		store.KeyCredential,
		store.KeyIdentity,
		store.KeyExpiresAt,
		store.KeyPermissionSet,
	} {
		if _, ok := fields[key]; !ok {
			return store.Record{}, store.ErrNotFound
		}
	}

	return store.Record{
		Credential:    fields[store.KeyCredential],
		Identity:      fields[store.KeyIdentity],
		ExpiresAt:     fields[store.KeyExpiresAt],
		PermissionSet: fields[store.KeyPermissionSet],
	}, nil
}

// Clear deletes the record. DEL on a missing key is already a no-op, which
// gives us idempotence for free.
func (s *Store) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
