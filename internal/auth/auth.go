// Package auth defines the authenticator capability that both proxy
// protocols consume and the concrete backends it can be built from.  A
// backend loads or connects to its store once at construction, so that
// verification never touches the filesystem on the connection path.
package auth

import (
	"context"
	"crypto/subtle"
)

// Authenticator verifies client credentials.  Implementations must be safe
// for concurrent use: every connection handler may call Verify at the same
// time.
type Authenticator interface {
	// Required reports whether clients must authenticate.
	Required() (ok bool)

	// Verify returns true only when username exists and password validates.
	// Any backend error counts as a failed verification.
	Verify(ctx context.Context, username, password string) (ok bool)
}

// Anonymous is the authenticator used when authentication is disabled.  It
// accepts everything.
type Anonymous struct{}

// type check
var _ Authenticator = Anonymous{}

// Required implements the [Authenticator] interface for Anonymous.
func (Anonymous) Required() (ok bool) { return false }

// Verify implements the [Authenticator] interface for Anonymous.
func (Anonymous) Verify(_ context.Context, _, _ string) (ok bool) { return true }

// Static is an authenticator backed by an in-memory plaintext credential
// map, built from the inline users of the configuration file.
type Static struct {
	users map[string]string
}

// type check
var _ Authenticator = (*Static)(nil)

// NewStatic creates a *Static from a username to password map.
func NewStatic(users map[string]string) (a *Static) {
	copied := make(map[string]string, len(users))
	for u, p := range users {
		copied[u] = p
	}

	return &Static{users: copied}
}

// Required implements the [Authenticator] interface for *Static.
func (a *Static) Required() (ok bool) { return true }

// Verify implements the [Authenticator] interface for *Static.
func (a *Static) Verify(_ context.Context, username, password string) (ok bool) {
	want, found := a.users[username]
	if !found {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}
