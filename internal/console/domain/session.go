package domain

import (
	"time"

	"github.com/aussiebroadwan/opsdesk/pkg/credx"
	"github.com/aussiebroadwan/opsdesk/pkg/idx"
	"github.com/aussiebroadwan/opsdesk/pkg/permset"
)

// Session is the aggregate the rest of the console reads: who the current
// identity is and what it can do. Copies are handed out by value so callers
// can't mutate the manager's state behind its back.
type Session struct {
	Identity    Identity
	Credential  string
	ExpiresAt   *int64 // Unix seconds; nil when unauthenticated
	Permissions permset.Set

	// Epoch identifies the identity generation this session belongs to.
	// It changes on every login and logout.
	Epoch idx.ID

	// Authenticated is only trustworthy as of the instant it was computed.
	// Anything that gates access should call Valid with a fresh clock
	// reading instead of trusting this flag across time.
	Authenticated bool
}

// Valid recomputes authenticated-ness from first principles: a credential is
// present and its expiry is strictly in the future at now. This is the one
// definition of "logged in"; the Authenticated flag is a snapshot of it.
func (s Session) Valid(now time.Time) bool {
	if s.Credential == "" {
		return false
	}
	return !credx.Expired(s.ExpiresAt, now)
}
