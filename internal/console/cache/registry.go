// Package cache holds the console's per-resource data caches and the purge
// controller that empties every one of them when the identity changes. One
// cache domain per resource family; a domain that dodged registration would
// leak one identity's data into the next session, so the app registers them
// all in one place and the registry purges the complete set, always.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
)

// Domain is an independently purgeable store of previously fetched remote
// data for one resource family.
type Domain interface {
	Name() string

	// Purge discards all cached results, drops in-flight dedup
	// bookkeeping, and forgets any identity-epoch state.
	Purge() error
}

// Registry runs the purge step on identity change. It has no state of its
// own beyond the list of registered domains.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	domains []Domain
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a domain to the purge set. Wire every domain during
// assembly; there is no unregister.
func (r *Registry) Register(d Domain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains = append(r.domains, d)
}

// DomainNames returns the names of every registered domain, in registration
// order.
func (r *Registry) DomainNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.domains))
	for _, d := range r.domains {
		names = append(names, d.Name())
	}
	return names
}

// PurgeAll purges every registered domain synchronously. One domain failing
// (error or panic) is logged and skipped; it never shields its siblings from
// being purged, and it never fails the identity transition that triggered
// us. Returns the number of domains that failed.
func (r *Registry) PurgeAll(reason string) int {
	r.mu.Lock()
	domains := make([]Domain, len(r.domains))
	copy(domains, r.domains)
	r.mu.Unlock()

	failed := 0
	for _, d := range domains {
		if err := purgeOne(d); err != nil {
			failed++
			r.logger.Error("cache purge failed",
				"domain", d.Name(),
				"reason", reason,
				"error", err,
			)
			continue
		}
		r.logger.Debug("cache purged", "domain", d.Name(), "reason", reason)
	}
	return failed
}

func purgeOne(d Domain) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return d.Purge()
}
