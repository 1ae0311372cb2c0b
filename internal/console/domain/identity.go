package domain

import "encoding/json"

// RoleClientAdmin is the role name the identity service assigns to
// organisation-local administrators. A name check, not a permission check;
// the two are deliberately not reconciled.
const RoleClientAdmin = "Client Admin"

// Identity is the authenticated user's profile as returned by the desk API.
// It is owned by the session manager and replaced wholesale on every login,
// never patched field by field.
type Identity struct {
	ID             string   `json:"id"`
	DisplayName    string   `json:"display_name"`
	Email          string   `json:"email"`
	RoleName       string   `json:"role_name"`
	OrganisationID *string  `json:"organisation_id"` // nil means cross-organisation
	Permissions    []string `json:"permissions"`
}

// ScopedAdmin reports whether the identity's role name marks it as an
// organisation-local administrator. Independent of the permission set, so
// holding admin permission tokens does not make this true (and vice versa).
func (i Identity) ScopedAdmin() bool {
	return i.RoleName == RoleClientAdmin
}

// Unscoped reports whether the identity operates across organisations.
func (i Identity) Unscoped() bool {
	return i.OrganisationID == nil
}

// EncodeIdentity serialises an identity for the flat durable store.
func EncodeIdentity(i Identity) (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeIdentity parses an identity previously written by EncodeIdentity.
func DecodeIdentity(s string) (Identity, error) {
	var i Identity
	if err := json.Unmarshal([]byte(s), &i); err != nil {
		return Identity{}, err
	}
	return i, nil
}
