package auth

import (
	"context"
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/log"
	"gopkg.in/yaml.v3"
)

// userEntry is a single account record of the users file.
type userEntry struct {
	// PasswordHash is the PHC-style credential hash, see [VerifyHash].
	PasswordHash string `yaml:"password_hash"`

	// Enabled disables the account without removing it when set to false.
	Enabled bool `yaml:"enabled"`
}

// usersFile is the on-disk schema of the users file.
type usersFile struct {
	// HashType names the scheme new accounts are hashed with.  Stored
	// hashes are self-describing, so it is not consulted on verification.
	HashType string `yaml:"hash_type"`

	// Users maps usernames to their account records.
	Users map[string]userEntry `yaml:"users"`
}

// File is an authenticator backed by a YAML users file with hashed
// credentials.  The file is read once at construction and kept in memory,
// so Verify never performs file I/O.
type File struct {
	users map[string]userEntry
}

// type check
var _ Authenticator = (*File)(nil)

// NewFile loads the users file at path and creates a *File.
func NewFile(path string) (a *File, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: reading users file: %w", err)
	}

	uf := &usersFile{}
	if err = yaml.Unmarshal(data, uf); err != nil {
		return nil, fmt.Errorf("auth: parsing users file %s: %w", path, err)
	}

	for name, u := range uf.Users {
		if name == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("auth: users file %s: empty username or hash", path)
		}
	}

	return &File{users: uf.Users}, nil
}

// Required implements the [Authenticator] interface for *File.
func (a *File) Required() (ok bool) { return true }

// Verify implements the [Authenticator] interface for *File.
func (a *File) Verify(_ context.Context, username, password string) (ok bool) {
	u, found := a.users[username]
	if !found || !u.Enabled {
		return false
	}

	ok, err := VerifyHash(password, u.PasswordHash)
	if err != nil {
		log.Error("auth: verifying %q: %v", username, err)

		return false
	}

	return ok
}
