// Package session owns the console's identity state: who is logged in, what
// they may do, and when that stops being true. The Manager is the single
// writer; everything else reads copies.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aussiebroadwan/opsdesk/internal/console/domain"
	"github.com/aussiebroadwan/opsdesk/internal/console/store"
	"github.com/aussiebroadwan/opsdesk/pkg/credx"
	"github.com/aussiebroadwan/opsdesk/pkg/idx"
	"github.com/aussiebroadwan/opsdesk/pkg/permset"
)

var (
	// ErrCredentialUnreadable reports a login whose credential could not
	// be decoded. The upstream call "succeeded" but the session is
	// Unauthenticated all the same; callers must not treat the login as
	// complete.
	ErrCredentialUnreadable = errors.New("session: credential unreadable")
)

// Reason says why an identity change happened.
type Reason string

const (
	ReasonLogin              Reason = "login"
	ReasonLogout             Reason = "logout"
	ReasonCredentialRejected Reason = "credential_rejected"
)

// Event is emitted after every identity-changing transition. By the time a
// subscriber sees it, the durable store already reflects the new state.
type Event struct {
	Epoch         idx.ID
	Authenticated bool
	Reason        Reason
}

// Subscriber receives identity-change events synchronously, in registration
// order. A panicking subscriber is isolated and logged; it never blocks the
// transition or its siblings.
type Subscriber func(Event)

// Manager is the session state machine: Unauthenticated or Authenticated,
// with Bootstrap/Login/Logout as the only transitions. All mutation happens
// under one mutex, so a half-applied login or logout is never observable.
type Manager struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current domain.Session
	subs    []Subscriber
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the wall clock. Tests use this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(st store.Store, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		logger: logger,
		now:    time.Now,
		current: domain.Session{
			Epoch:       idx.New(),
			Permissions: permset.New(),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for identity-change events. Not safe to call once
// transitions are flowing; wire subscribers during assembly.
func (m *Manager) Subscribe(fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Current returns a copy of the session with Authenticated recomputed
// against the wall clock. The flag is a snapshot as of this call; access
// decisions should always go through Current rather than a stored copy.
func (m *Manager) Current() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.current
	s.Authenticated = s.Valid(m.now())
	return s
}

// Epoch returns the current identity epoch.
func (m *Manager) Epoch() idx.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Epoch
}

// Bootstrap restores a persisted session at process start. It is strictly
// read-only: an absent, incomplete, expired, or undecodable record leaves
// the store untouched and the session Unauthenticated. Only Logout (or a
// rejected login) deletes. Bootstrap emits no event; nothing has been
// cached yet.
func (m *Manager) Bootstrap(ctx context.Context) error {
	rec, err := m.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Debug("bootstrap: no persisted session")
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: bootstrap load: %w", err)
	}

	// 1. The persisted expiry must still be in the future.
	if credx.ExpiredString(rec.ExpiresAt, m.now()) {
		m.logger.Info("bootstrap: persisted session expired, starting unauthenticated")
		return nil
	}

	// 2. The credential itself must still decode. We trust its exp claim
	// over the persisted copy; they were written together but the
	// credential is the source of truth.
	claims, err := credx.Decode(rec.Credential)
	if err != nil {
		m.logger.Warn("bootstrap: persisted credential undecodable, starting unauthenticated")
		return nil
	}
	if credx.Expired(&claims.ExpiresAt, m.now()) {
		m.logger.Info("bootstrap: credential expired, starting unauthenticated")
		return nil
	}

	identity, err := domain.DecodeIdentity(rec.Identity)
	if err != nil {
		m.logger.Warn("bootstrap: persisted identity unreadable, starting unauthenticated")
		return nil
	}

	perms, err := decodePermissions(rec.PermissionSet)
	if err != nil {
		m.logger.Warn("bootstrap: persisted permission set unreadable, starting unauthenticated")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exp := claims.ExpiresAt
	m.current = domain.Session{
		Identity:      identity,
		Credential:    rec.Credential,
		ExpiresAt:     &exp,
		Permissions:   permset.New(perms...),
		Epoch:         m.current.Epoch,
		Authenticated: true,
	}

	m.logger.Info("session restored",
		"user", identity.ID,
		"role", identity.RoleName,
		"expires_at", exp,
	)
	return nil
}

// Login replaces the session wholesale with a fresh credential and identity.
// The expiry always comes from decoding the credential, never from the
// caller. The durable write completes before the transition is observable:
// subscribers reacting to the event can never read a half-updated store.
func (m *Manager) Login(ctx context.Context, credential string, identity domain.Identity) error {
	claims, err := credx.Decode(credential)
	if err != nil {
		// Upstream said yes but handed us a credential we can't read.
		// Fail closed: this is an identity-changing rejection, not a
		// state to limp along in.
		if rerr := m.reject(ctx); rerr != nil {
			m.logger.Error("failed to clear session after credential rejection", "error", rerr)
		}
		return fmt.Errorf("%w: %v", ErrCredentialUnreadable, err)
	}

	perms := identity.Permissions
	if perms == nil {
		perms = []string{}
	}

	encodedIdentity, err := domain.EncodeIdentity(identity)
	if err != nil {
		return fmt.Errorf("session: encode identity: %w", err)
	}

	encodedPerms, err := encodePermissions(perms)
	if err != nil {
		return fmt.Errorf("session: encode permission set: %w", err)
	}

	rec := store.Record{
		Credential:    credential,
		Identity:      encodedIdentity,
		ExpiresAt:     strconv.FormatInt(claims.ExpiresAt, 10),
		PermissionSet: encodedPerms,
	}

	m.mu.Lock()

	// Persist first. If this fails the session is unchanged and nobody
	// was notified of anything.
	if err := m.store.Save(ctx, rec); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: persist login: %w", err)
	}

	exp := claims.ExpiresAt
	m.current = domain.Session{
		Identity:      identity,
		Credential:    credential,
		ExpiresAt:     &exp,
		Permissions:   permset.New(perms...),
		Epoch:         idx.New(),
		Authenticated: true,
	}
	ev := Event{Epoch: m.current.Epoch, Authenticated: true, Reason: ReasonLogin}
	subs := m.subs
	m.mu.Unlock()

	m.logger.Info("logged in", "user", identity.ID, "role", identity.RoleName)
	m.notify(subs, ev)
	return nil
}

// Logout clears every in-memory field and deletes every persisted field.
// Idempotent: logging out while already Unauthenticated changes nothing and
// emits nothing.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()

	wasAuthenticated := m.current.Credential != ""

	// Clear storage even when we think we're logged out already; a
	// failed bootstrap can leave stale persisted fields behind.
	if err := m.store.Clear(ctx); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: clear persisted session: %w", err)
	}

	if !wasAuthenticated {
		m.mu.Unlock()
		return nil
	}

	m.current = domain.Session{
		Epoch:       idx.New(),
		Permissions: permset.New(),
	}
	ev := Event{Epoch: m.current.Epoch, Authenticated: false, Reason: ReasonLogout}
	subs := m.subs
	m.mu.Unlock()

	m.logger.Info("logged out")
	m.notify(subs, ev)
	return nil
}

// reject is the logout-shaped transition taken when a login handed us an
// unreadable credential: storage cleared, epoch bumped, caches told.
func (m *Manager) reject(ctx context.Context) error {
	m.mu.Lock()

	if err := m.store.Clear(ctx); err != nil {
		m.mu.Unlock()
		return err
	}

	m.current = domain.Session{
		Epoch:       idx.New(),
		Permissions: permset.New(),
	}
	ev := Event{Epoch: m.current.Epoch, Authenticated: false, Reason: ReasonCredentialRejected}
	subs := m.subs
	m.mu.Unlock()

	m.notify(subs, ev)
	return nil
}

// Permission tokens are opaque and may contain any character, so records
// carry them as a JSON array rather than a delimited string.
func encodePermissions(perms []string) (string, error) {
	b, err := json.Marshal(perms)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodePermissions(s string) ([]string, error) {
	var perms []string
	if err := json.Unmarshal([]byte(s), &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// notify delivers an event to every subscriber, isolating panics so one bad
// subscriber can't starve the rest. Runs outside the state mutex: the store
// and in-memory state are already settled by the time anyone is told.
func (m *Manager) notify(subs []Subscriber, ev Event) {
	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("session subscriber panicked", "reason", ev.Reason, "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}
