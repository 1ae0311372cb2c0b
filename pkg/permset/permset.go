// Package permset holds the permission tokens granted to an identity and
// answers the membership questions the console's gating layer asks.
//
// Everything here is advisory: the permission set is client-visible state
// used to decide what UI to show. The resource server re-checks every
// request, so a lie here buys nothing except a nicer error page.
package permset

// Well-known permission tokens used by the derived admin predicate.
const (
	PermAdminClients = "admin_clients"
	PermAdminUsers   = "admin_users"
)

// Set is a set of opaque permission tokens. Membership is exact-string,
// case-sensitive, no wildcard semantics. The zero value is an empty set.
type Set struct {
	tokens map[string]struct{}
}

// New builds a Set from a list of tokens. Duplicates collapse, order is
// irrelevant, empty strings are kept as-is (they're just tokens nobody
// should ever require).
func New(tokens ...string) Set {
	s := Set{tokens: make(map[string]struct{}, len(tokens))}
	for _, tok := range tokens {
		s.tokens[tok] = struct{}{}
	}
	return s
}

// Has reports exact membership of a single token.
func (s Set) Has(token string) bool {
	_, ok := s.tokens[token]
	return ok
}

// HasAll reports whether every listed token is present. An empty list is
// vacuously true.
func (s Set) HasAll(tokens ...string) bool {
	for _, tok := range tokens {
		if !s.Has(tok) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one listed token is present. An empty
// list is false, not true: an "any of these" requirement with nothing in it
// must never be satisfiable by default. Deliberately asymmetric with HasAll.
func (s Set) HasAny(tokens ...string) bool {
	for _, tok := range tokens {
		if s.Has(tok) {
			return true
		}
	}
	return false
}

// ElevatedAdmin reports whether the set grants the cross-organisation admin
// pair: both client administration and user administration. AND, not OR.
func (s Set) ElevatedAdmin() bool {
	return s.HasAll(PermAdminClients, PermAdminUsers)
}

// Tokens returns the members as a fresh slice, in no particular order.
func (s Set) Tokens() []string {
	out := make([]string, 0, len(s.tokens))
	for tok := range s.tokens {
		out = append(out, tok)
	}
	return out
}

// Len returns the number of distinct tokens in the set.
func (s Set) Len() int { return len(s.tokens) }
