// Package app assembles the console's session core: durable store, session
// manager, cache registry, route guard, and the desk API client, wired
// together with explicit dependencies rather than ambient globals.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/opsdesk/internal/console/api"
	"github.com/aussiebroadwan/opsdesk/internal/console/cache"
	"github.com/aussiebroadwan/opsdesk/internal/console/domain"
	"github.com/aussiebroadwan/opsdesk/internal/console/guard"
	"github.com/aussiebroadwan/opsdesk/internal/console/session"
	"github.com/aussiebroadwan/opsdesk/internal/console/store"
	redisdriver "github.com/aussiebroadwan/opsdesk/internal/console/store/drivers/redis"
	"github.com/aussiebroadwan/opsdesk/internal/console/store/drivers/sqlite"
	"github.com/aussiebroadwan/opsdesk/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// CacheDomains is the complete set of resource families the console caches.
// Every one of them is registered for purge at startup; leaving one out
// would let a previous identity's data survive a login.
var CacheDomains = []string{
	"tickets",
	"invoices",
	"articles",
	"reports",
	"recordings",
	"logs",
	"auth",
}

// Console is the assembled session core.
type Console struct {
	cfg    Config
	logger *slog.Logger

	store    store.Store
	sessions *session.Manager
	caches   *cache.Registry
	api      *api.Client

	domains map[string]*cache.Cache[json.RawMessage]

	mu        sync.Mutex
	csrfToken string
}

// New builds a Console from config: opens the durable store, restores
// nothing yet (call Bootstrap), and registers every cache domain with the
// purge controller.
func New(cfg Config) (*Console, error) {
	c := &Console{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Component: "opsdesk",
			Version:   BuildVersion,
			Level:     cfg.LogLevel,
			Format:    cfg.LogFormat,
		}),
		domains: make(map[string]*cache.Cache[json.RawMessage]),
	}

	if err := c.initStore(); err != nil {
		return nil, err
	}

	c.sessions = session.NewManager(c.store, c.logger)
	c.api = api.NewClient(cfg.APIBaseURL, c.logger)
	c.api.HTTPClient.Timeout = cfg.HTTPTimeout

	c.initCaches()

	return c, nil
}

func (c *Console) initStore() error {
	switch c.cfg.StorageDriver {
	case "", "sqlite":
		st, err := sqlite.NewStore(c.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		c.store = st
	case "redis":
		c.store = redisdriver.NewStore(c.cfg.RedisAddr, c.cfg.RedisKey)
	default:
		return fmt.Errorf("unknown storage driver %q", c.cfg.StorageDriver)
	}

	if err := c.store.ApplyMigrations(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (c *Console) initCaches() {
	c.caches = cache.NewRegistry(c.logger)
	for _, name := range CacheDomains {
		dom := cache.New[json.RawMessage](name, c.sessions.Epoch)
		c.domains[name] = dom
		c.caches.Register(dom)
	}

	// Purge every domain on every identity change, synchronously, before
	// any consumer can issue a request as the new identity.
	c.sessions.Subscribe(func(ev session.Event) {
		c.caches.PurgeAll(string(ev.Reason))
	})
}

// Bootstrap restores any persisted session. Call once at startup.
func (c *Console) Bootstrap(ctx context.Context) error {
	return c.sessions.Bootstrap(ctx)
}

// Login authenticates against the desk service and installs the resulting
// identity. The CSRF token fetch afterwards is best effort: its failure is
// logged and the completed login stands.
func (c *Console) Login(ctx context.Context, identifier, secret string) error {
	result, err := c.api.Login(ctx, identifier, secret)
	if err != nil {
		return err
	}

	if err := c.sessions.Login(ctx, result.Credential, result.Identity); err != nil {
		return err
	}

	token, err := c.api.FetchCSRFToken(ctx, result.Credential)
	if err != nil {
		c.logger.Warn("csrf token fetch failed, continuing without one", "error", err)
	} else {
		c.mu.Lock()
		c.csrfToken = token
		c.mu.Unlock()
	}

	return nil
}

// Logout tears the session down. Idempotent.
func (c *Console) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.csrfToken = ""
	c.mu.Unlock()

	return c.sessions.Logout(ctx)
}

// Session returns the current session with authenticated-ness freshly
// recomputed.
func (c *Console) Session() domain.Session {
	return c.sessions.Current()
}

// CSRFToken returns the anti-forgery token, if the post-login fetch got one.
func (c *Console) CSRFToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrfToken
}

// DecideRoute runs the route guard for a declared route name.
func (c *Console) DecideRoute(name string) (guard.Decision, error) {
	route, ok := guard.Lookup(name)
	if !ok {
		return guard.DenyUnauthorized, fmt.Errorf("unknown route %q", name)
	}
	return guard.Decide(route.Requirement, c.sessions.Current(), time.Now()), nil
}

// Fetch reads a resource through its cache domain. Results are cached per
// path until the identity changes; concurrent fetches of the same path are
// deduplicated.
func (c *Console) Fetch(ctx context.Context, domainName, path string) (json.RawMessage, error) {
	dom, ok := c.domains[domainName]
	if !ok {
		return nil, fmt.Errorf("unknown cache domain %q", domainName)
	}

	credential := c.sessions.Current().Credential

	return dom.GetOrFetch(ctx, path, func(ctx context.Context) (json.RawMessage, error) {
		var payload json.RawMessage
		if err := c.api.GetJSON(ctx, credential, path, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	})
}

// Routes exposes the console's declared navigation targets.
func (c *Console) Routes() []guard.Route {
	return guard.Routes()
}

// Close releases the durable store.
func (c *Console) Close() error {
	return c.store.Close()
}
