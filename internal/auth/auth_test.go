package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

func TestStatic(t *testing.T) {
	a := NewStatic(map[string]string{"alice": "s3cret"})

	if !a.Required() {
		t.Fatal("static authenticator must require auth")
	}

	ctx := context.Background()

	if !a.Verify(ctx, "alice", "s3cret") {
		t.Fatal("valid credentials rejected")
	}

	if a.Verify(ctx, "alice", "nope") || a.Verify(ctx, "bob", "s3cret") {
		t.Fatal("invalid credentials accepted")
	}
}

func TestAnonymous(t *testing.T) {
	a := Anonymous{}

	if a.Required() {
		t.Fatal("anonymous authenticator must not require auth")
	}

	if !a.Verify(context.Background(), "", "") {
		t.Fatal("anonymous authenticator must accept everything")
	}
}

func TestVerifyHash_bcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := VerifyHash("s3cret", string(hash))
	if err != nil || !ok {
		t.Fatalf("valid password rejected: ok=%v err=%v", ok, err)
	}

	ok, err = VerifyHash("nope", string(hash))
	if err != nil || ok {
		t.Fatalf("invalid password accepted: ok=%v err=%v", ok, err)
	}
}

func TestVerifyHash_argon2id(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("s3cret"), salt, 1, 64, 1, 32)

	hash := fmt.Sprintf(
		"$argon2id$v=19$m=64,t=1,p=1$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	ok, err := VerifyHash("s3cret", hash)
	if err != nil || !ok {
		t.Fatalf("valid password rejected: ok=%v err=%v", ok, err)
	}

	ok, err = VerifyHash("nope", hash)
	if err != nil || ok {
		t.Fatalf("invalid password accepted: ok=%v err=%v", ok, err)
	}
}

func TestVerifyHash_scrypt(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key, err := scrypt.Key([]byte("s3cret"), salt, 1<<10, 8, 1, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hash := fmt.Sprintf(
		"$scrypt$ln=10,r=8,p=1$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	ok, err := VerifyHash("s3cret", hash)
	if err != nil || !ok {
		t.Fatalf("valid password rejected: ok=%v err=%v", ok, err)
	}
}

func TestVerifyHash_unknownScheme(t *testing.T) {
	if _, err := VerifyHash("x", "$md5$whatever"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestFile(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "users.yaml")
	contents := fmt.Sprintf(
		"hash_type: bcrypt\nusers:\n"+
			"  alice:\n    password_hash: %q\n    enabled: true\n"+
			"  mallory:\n    password_hash: %q\n    enabled: false\n",
		hash,
		hash,
	)

	if err = os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := NewFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()

	if !a.Verify(ctx, "alice", "s3cret") {
		t.Fatal("valid credentials rejected")
	}

	if a.Verify(ctx, "alice", "nope") {
		t.Fatal("invalid password accepted")
	}

	if a.Verify(ctx, "mallory", "s3cret") {
		t.Fatal("disabled account accepted")
	}

	if a.Verify(ctx, "bob", "s3cret") {
		t.Fatal("unknown account accepted")
	}
}

func TestFile_missing(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error")
	}
}
