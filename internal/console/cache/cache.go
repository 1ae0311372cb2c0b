package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/aussiebroadwan/opsdesk/pkg/idx"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrStaleEpoch reports a fetch that resolved after the identity
	// changed. The result was discarded, not cached; the caller should
	// re-issue under the new identity if it still wants the data.
	ErrStaleEpoch = errors.New("cache: identity changed during fetch")
)

// Cache is an epoch-guarded read-through cache for one resource family. It
// dedups concurrent fetches for the same key and refuses to store any result
// fetched under a previous identity: a write is valid only if the session
// epoch at write time matches the epoch when the fetch started.
type Cache[V any] struct {
	name  string
	epoch func() idx.ID

	mu      sync.Mutex
	entries map[string]entry[V]
	group   *singleflight.Group
}

type entry[V any] struct {
	value V
	epoch idx.ID
}

// New builds a cache named for its resource family. epoch must report the
// session's current identity epoch.
func New[V any](name string, epoch func() idx.ID) *Cache[V] {
	return &Cache[V]{
		name:    name,
		epoch:   epoch,
		entries: make(map[string]entry[V]),
		group:   &singleflight.Group{},
	}
}

func (c *Cache[V]) Name() string { return c.name }

// Purge drops every cached value and replaces the singleflight group, which
// resets its in-flight bookkeeping wholesale. Fetches already in flight
// complete against the old group and write nowhere: their epoch no longer
// matches.
func (c *Cache[V]) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry[V])
	c.group = &singleflight.Group{}
	return nil
}

// Get returns the cached value for key, if one was stored under the current
// epoch.
func (c *Cache[V]) Get(key string) (V, bool) {
	now := c.epoch()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.epoch != now {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Len returns the number of cached entries. Purged means zero.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrFetch returns the cached value for key or fetches it, deduping
// concurrent fetches of the same key. If the identity epoch changes while
// the fetch is in flight, the result is discarded and ErrStaleEpoch is
// returned: data fetched as one identity never reaches a session belonging
// to another.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	start := c.epoch()

	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	group := c.group
	c.mu.Unlock()

	res, err, _ := group.Do(key, func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero V
		return zero, err
	}

	value := res.(V)

	if !c.put(key, value, start) {
		var zero V
		return zero, ErrStaleEpoch
	}
	return value, nil
}

// put stores value only when the epoch observed at fetch start is still the
// current one and the cache hasn't been purged since.
func (c *Cache[V]) put(key string, value V, start idx.ID) bool {
	if c.epoch() != start {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, epoch: start}
	return true
}
