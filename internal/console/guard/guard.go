// Package guard decides whether the current session may enter a navigation
// target. Pure and synchronous: a navigation decision is a function of
// already-resident state, never a network round-trip. Everything here is UX
// gating; the resource server is the enforcement boundary.
package guard

import (
	"time"

	"github.com/aussiebroadwan/opsdesk/internal/console/domain"
)

// Decision is the guard's answer for one navigation attempt.
type Decision int

const (
	// RedirectLogin sends the user to the login screen. Used whenever
	// the session is not authenticated, regardless of the requirement.
	RedirectLogin Decision = iota

	// DenyUnauthorized renders an in-place access-denied affordance.
	// Not a redirect: the user keeps their location.
	DenyUnauthorized

	// Allow lets the navigation proceed.
	Allow
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthorized:
		return "deny_unauthorized"
	default:
		return "redirect_login"
	}
}

// kind enumerates the requirement shapes a route may declare. Exactly one
// per route.
type kind int

const (
	kindNone kind = iota
	kindPermission
	kindAllOf
	kindAnyOf
	kindElevatedAdmin
)

// Requirement is a route's declared permission requirement. Build one with
// the constructors below; the zero value requires nothing.
type Requirement struct {
	kind  kind
	perms []string
}

// None requires only an authenticated session.
func None() Requirement { return Requirement{kind: kindNone} }

// Permission requires a single permission token.
func Permission(perm string) Requirement {
	return Requirement{kind: kindPermission, perms: []string{perm}}
}

// AllOf requires every listed permission. An empty list gates nothing.
func AllOf(perms ...string) Requirement {
	return Requirement{kind: kindAllOf, perms: perms}
}

// AnyOf requires at least one listed permission. An empty list can never be
// satisfied.
func AnyOf(perms ...string) Requirement {
	return Requirement{kind: kindAnyOf, perms: perms}
}

// ElevatedAdmin requires the cross-organisation admin permission pair.
func ElevatedAdmin() Requirement { return Requirement{kind: kindElevatedAdmin} }

// Decide yields the decision for one navigation target. Authentication is
// recomputed against now rather than read from a stored flag, so a session
// that expired since its last transition redirects instead of leaking
// through on stale state.
func Decide(req Requirement, s domain.Session, now time.Time) Decision {
	if !s.Valid(now) {
		return RedirectLogin
	}

	switch req.kind {
	case kindNone:
		return Allow
	case kindPermission:
		if s.Permissions.Has(req.perms[0]) {
			return Allow
		}
	case kindAllOf:
		if s.Permissions.HasAll(req.perms...) {
			return Allow
		}
	case kindAnyOf:
		if s.Permissions.HasAny(req.perms...) {
			return Allow
		}
	case kindElevatedAdmin:
		if s.Permissions.ElevatedAdmin() {
			return Allow
		}
	}

	return DenyUnauthorized
}
