package session_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/opsdesk/internal/console/domain"
	"github.com/aussiebroadwan/opsdesk/internal/console/session"
	"github.com/aussiebroadwan/opsdesk/internal/console/store"
	"github.com/aussiebroadwan/opsdesk/internal/console/store/drivers/sqlite"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// mintCredential builds a structurally valid credential expiring at exp. The
// signature is junk; the session layer never verifies it.
func mintCredential(t *testing.T, exp time.Time) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
		"sub": "usr_1",
	})
	signed, err := tok.SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return signed
}

func agentIdentity() domain.Identity {
	org := "org_1"
	return domain.Identity{
		ID:             "usr_1",
		DisplayName:    "Robin Agent",
		Email:          "robin@example.com",
		RoleName:       "Agent",
		OrganisationID: &org,
		Permissions:    []string{"view_tickets", "view_invoices"},
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := newTestStore(t)
	mgr := session.NewManager(st, discardLogger())

	cred := mintCredential(t, now.Add(time.Hour))
	require.NoError(t, mgr.Login(context.Background(), cred, agentIdentity()))

	t.Run("session is authenticated", func(t *testing.T) {
		s := mgr.Current()
		require.True(t, s.Authenticated)
		require.Equal(t, "usr_1", s.Identity.ID)
		require.True(t, s.Permissions.Has("view_tickets"))
		require.NotNil(t, s.ExpiresAt)
		require.Equal(t, now.Add(time.Hour).Unix(), *s.ExpiresAt)
	})

	t.Run("expiry comes from the credential", func(t *testing.T) {
		// Whatever the caller believed about expiry is irrelevant;
		// the decoded exp claim is the only source.
		s := mgr.Current()
		require.Equal(t, now.Add(time.Hour).Unix(), *s.ExpiresAt)
	})

	t.Run("all four fields persisted together", func(t *testing.T) {
		rec, err := st.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, cred, rec.Credential)
		require.NotEmpty(t, rec.Identity)
		require.NotEmpty(t, rec.ExpiresAt)
		require.Equal(t, `["view_tickets","view_invoices"]`, rec.PermissionSet)
	})
}

func TestLoginWithNilPermissions(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	mgr := session.NewManager(st, discardLogger())

	id := agentIdentity()
	id.Permissions = nil
	cred := mintCredential(t, time.Now().Add(time.Hour))
	require.NoError(t, mgr.Login(context.Background(), cred, id))

	s := mgr.Current()
	require.True(t, s.Authenticated)
	require.Equal(t, 0, s.Permissions.Len())
	require.False(t, s.Permissions.HasAny())
	require.True(t, s.Permissions.HasAll())
}

func TestLoginWithUnreadableCredential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)
	mgr := session.NewManager(st, discardLogger())

	// Establish a prior identity so we can watch it get torn down.
	require.NoError(t, mgr.Login(ctx, mintCredential(t, time.Now().Add(time.Hour)), agentIdentity()))
	var events []session.Event
	mgr.Subscribe(func(ev session.Event) { events = append(events, ev) })

	err := mgr.Login(ctx, "not-a-credential", agentIdentity())
	require.ErrorIs(t, err, session.ErrCredentialUnreadable)

	t.Run("session is unauthenticated despite upstream success", func(t *testing.T) {
		require.False(t, mgr.Current().Authenticated)
	})

	t.Run("storage is cleared", func(t *testing.T) {
		_, err := st.Load(ctx)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("rejection is an identity-changing event", func(t *testing.T) {
		require.Len(t, events, 1)
		require.Equal(t, session.ReasonCredentialRejected, events[0].Reason)
		require.False(t, events[0].Authenticated)
	})
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)
	mgr := session.NewManager(st, discardLogger())

	require.NoError(t, mgr.Login(ctx, mintCredential(t, time.Now().Add(time.Hour)), agentIdentity()))

	var events []session.Event
	mgr.Subscribe(func(ev session.Event) { events = append(events, ev) })

	require.NoError(t, mgr.Logout(ctx))
	require.False(t, mgr.Current().Authenticated)
	_, err := st.Load(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Second logout: same observable state, no second event.
	require.NoError(t, mgr.Logout(ctx))
	require.False(t, mgr.Current().Authenticated)
	_, err = st.Load(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Len(t, events, 1)
	require.Equal(t, session.ReasonLogout, events[0].Reason)
}

func TestLoginThenLogoutLeavesNoDurableState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)
	mgr := session.NewManager(st, discardLogger())

	require.NoError(t, mgr.Login(ctx, mintCredential(t, time.Now().Add(time.Hour)), agentIdentity()))
	require.NoError(t, mgr.Logout(ctx))

	_, err := st.Load(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	t.Run("restores a valid persisted session", func(t *testing.T) {
		ctx := context.Background()
		st := newTestStore(t)

		// Persist via one manager, restore via a fresh one, as a
		// process restart would.
		first := session.NewManager(st, discardLogger())
		cred := mintCredential(t, time.Now().Add(time.Hour))
		require.NoError(t, first.Login(ctx, cred, agentIdentity()))

		second := session.NewManager(st, discardLogger())
		require.NoError(t, second.Bootstrap(ctx))

		s := second.Current()
		require.True(t, s.Authenticated)
		require.Equal(t, "usr_1", s.Identity.ID)
		require.Equal(t, "Agent", s.Identity.RoleName)
		require.True(t, s.Permissions.HasAll("view_tickets", "view_invoices"))
	})

	t.Run("empty store starts unauthenticated", func(t *testing.T) {
		mgr := session.NewManager(newTestStore(t), discardLogger())
		require.NoError(t, mgr.Bootstrap(context.Background()))
		require.False(t, mgr.Current().Authenticated)
	})

	t.Run("expired record starts unauthenticated and is not deleted", func(t *testing.T) {
		ctx := context.Background()
		st := newTestStore(t)

		first := session.NewManager(st, discardLogger())
		cred := mintCredential(t, time.Now().Add(time.Hour))
		require.NoError(t, first.Login(ctx, cred, agentIdentity()))

		// Bootstrap one second past expiry.
		later := func() time.Time { return time.Now().Add(time.Hour + time.Second) }
		second := session.NewManager(st, discardLogger(), session.WithClock(later))
		require.NoError(t, second.Bootstrap(ctx))
		require.False(t, second.Current().Authenticated)

		// Read-only failure: the record is still there. Only logout
		// deletes.
		_, err := st.Load(ctx)
		require.NoError(t, err)
	})

	t.Run("undecodable persisted credential starts unauthenticated", func(t *testing.T) {
		ctx := context.Background()
		st := newTestStore(t)
		require.NoError(t, st.Save(ctx, store.Record{
			Credential:    "scrambled",
			Identity:      `{"id":"usr_1"}`,
			ExpiresAt:     "9999999999",
			PermissionSet: `["view_tickets"]`,
		}))

		mgr := session.NewManager(st, discardLogger())
		require.NoError(t, mgr.Bootstrap(ctx))
		require.False(t, mgr.Current().Authenticated)

		// Still read-only.
		_, err := st.Load(ctx)
		require.NoError(t, err)
	})
}

func TestPermissionTokensRoundTripVerbatim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)

	// Tokens are opaque: the backend is free to mint ones with spaces in
	// them. Persistence must hand back exactly what was granted, never
	// fragments of it.
	id := agentIdentity()
	id.Permissions = []string{"view tickets admin_users", "view_invoices"}

	first := session.NewManager(st, discardLogger())
	cred := mintCredential(t, time.Now().Add(time.Hour))
	require.NoError(t, first.Login(ctx, cred, id))

	second := session.NewManager(st, discardLogger())
	require.NoError(t, second.Bootstrap(ctx))

	s := second.Current()
	require.True(t, s.Authenticated)
	require.Equal(t, 2, s.Permissions.Len())
	require.True(t, s.Permissions.Has("view tickets admin_users"))
	require.True(t, s.Permissions.Has("view_invoices"))
	require.False(t, s.Permissions.Has("admin_users"))
	require.False(t, s.Permissions.Has("view"))
}

func TestCurrentRecomputesAuthenticated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)

	clock := time.Now()
	mgr := session.NewManager(st, discardLogger(), session.WithClock(func() time.Time { return clock }))

	require.NoError(t, mgr.Login(ctx, mintCredential(t, clock.Add(time.Minute)), agentIdentity()))
	require.True(t, mgr.Current().Authenticated)

	// The credential expires under our feet; no transition ran, but the
	// recomputed flag must notice. Equality counts as expired.
	clock = clock.Add(time.Minute)
	require.False(t, mgr.Current().Authenticated)
}

func TestEpochChangesOnEveryTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := session.NewManager(newTestStore(t), discardLogger())

	e0 := mgr.Epoch()
	require.NoError(t, mgr.Login(ctx, mintCredential(t, time.Now().Add(time.Hour)), agentIdentity()))
	e1 := mgr.Epoch()
	require.NotEqual(t, e0, e1)

	require.NoError(t, mgr.Logout(ctx))
	e2 := mgr.Epoch()
	require.NotEqual(t, e1, e2)

	// ULIDs sort in mint order, so later epochs compare greater.
	require.Less(t, e0.String(), e1.String())
	require.Less(t, e1.String(), e2.String())
}

func TestPersistCompletesBeforeSubscribersRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)
	mgr := session.NewManager(st, discardLogger())

	cred := mintCredential(t, time.Now().Add(time.Hour))

	var observed store.Record
	var observedErr error
	mgr.Subscribe(func(ev session.Event) {
		// A subscriber reacting to the transition must already see
		// the fully written record, never a half-updated store.
		observed, observedErr = st.Load(ctx)
	})

	require.NoError(t, mgr.Login(ctx, cred, agentIdentity()))
	require.NoError(t, observedErr)
	require.Equal(t, cred, observed.Credential)
	require.NotEmpty(t, observed.Identity)
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := session.NewManager(newTestStore(t), discardLogger())

	var secondRan bool
	mgr.Subscribe(func(session.Event) { panic("bad subscriber") })
	mgr.Subscribe(func(session.Event) { secondRan = true })

	require.NoError(t, mgr.Login(ctx, mintCredential(t, time.Now().Add(time.Hour)), agentIdentity()))
	require.True(t, secondRan)
}
