package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

// ErrBadHash is returned when a stored credential hash cannot be parsed.
const ErrBadHash errors.Error = "malformed password hash"

// VerifyHash checks password against a stored PHC-style hash string.  The
// supported schemes are bcrypt ("$2a$", "$2b$", "$2y$"), argon2id
// ("$argon2id$v=19$m=…,t=…,p=…$salt$hash"), and scrypt
// ("$scrypt$ln=…,r=…,p=…$salt$hash") with unpadded standard base64.
func VerifyHash(password, hash string) (ok bool, err error) {
	switch {
	case strings.HasPrefix(hash, "$2a$"),
		strings.HasPrefix(hash, "$2b$"),
		strings.HasPrefix(hash, "$2y$"):
		err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return false, nil
			}

			return false, fmt.Errorf("auth: bcrypt: %w", err)
		}

		return true, nil
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(password, hash)
	case strings.HasPrefix(hash, "$scrypt$"):
		return verifyScrypt(password, hash)
	default:
		return false, fmt.Errorf("auth: unknown scheme: %w", ErrBadHash)
	}
}

// verifyArgon2id checks password against an argon2id PHC string.
func verifyArgon2id(password, hash string) (ok bool, err error) {
	// $argon2id$v=19$m=…,t=…,p=…$salt$hash
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("auth: argon2id fields: %w", ErrBadHash)
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("auth: argon2id version: %w", ErrBadHash)
	}

	var mem, iter uint32
	var par uint8
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return false, fmt.Errorf("auth: argon2id params: %w", ErrBadHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("auth: argon2id salt: %w", ErrBadHash)
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("auth: argon2id hash: %w", ErrBadHash)
	}

	got := argon2.IDKey([]byte(password), salt, iter, mem, par, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// verifyScrypt checks password against an scrypt PHC string.
func verifyScrypt(password, hash string) (ok bool, err error) {
	// $scrypt$ln=…,r=…,p=…$salt$hash
	parts := strings.Split(hash, "$")
	if len(parts) != 5 {
		return false, fmt.Errorf("auth: scrypt fields: %w", ErrBadHash)
	}

	var ln, r, par int
	if _, err = fmt.Sscanf(parts[2], "ln=%d,r=%d,p=%d", &ln, &r, &par); err != nil {
		return false, fmt.Errorf("auth: scrypt params: %w", ErrBadHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("auth: scrypt salt: %w", ErrBadHash)
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("auth: scrypt hash: %w", ErrBadHash)
	}

	got, err := scrypt.Key([]byte(password), salt, 1<<ln, r, par, len(want))
	if err != nil {
		return false, fmt.Errorf("auth: scrypt: %w", err)
	}

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
