// Package credx reads the expiry claim out of an opaque session credential.
//
// The console never verifies the credential's signature. It can't: the
// signing keys live with the identity service, and the resource server is
// the real enforcement point anyway. All we need client-side is the "exp"
// claim so we can tell whether a stored session is worth restoring, and a
// fail-closed answer when the credential is garbage.
package credx

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrDecode reports a credential whose payload could not be read
	// (wrong segment count, bad encoding, unparseable claims, or a
	// missing exp claim). Callers must treat this exactly like an
	// expired credential.
	ErrDecode = errors.New("credx: undecodable credential")
)

// Claims is the subset of the credential payload the console cares about.
type Claims struct {
	// ExpiresAt is the "exp" claim as a Unix timestamp in whole seconds.
	ExpiresAt int64
}

// Decode extracts the expiry claim from a credential without verifying its
// signature. Any malformed input returns ErrDecode; Decode never panics.
func Decode(token string) (Claims, error) {
	// ParseUnverified still insists on the three-segment structure and a
	// JSON payload, which is the shape check we want.
	if strings.Count(token, ".") != 2 {
		return Claims{}, ErrDecode
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, ErrDecode
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrDecode
	}

	return Claims{ExpiresAt: exp.Unix()}, nil
}

// Expired reports whether a Unix-seconds expiry is in the past relative to
// now. A nil expiry is expired (fail closed) and equality counts as expired:
// there is no grace window at this layer.
func Expired(expiresAt *int64, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return now.Unix() >= *expiresAt
}

// ExpiredString is Expired for a stringly-typed expiry, as read back from
// the flat durable store. Anything that doesn't coerce to an integer is
// expired.
func ExpiredString(expiresAt string, now time.Time) bool {
	n, err := strconv.ParseInt(strings.TrimSpace(expiresAt), 10, 64)
	if err != nil {
		return true
	}
	return Expired(&n, now)
}
