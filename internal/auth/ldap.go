package auth

import (
	"context"
	"fmt"

	"github.com/AdguardTeam/golibs/log"
	"github.com/go-ldap/ldap/v3"
)

// LDAPConfig configures the LDAP authenticator backend.
type LDAPConfig struct {
	// URL is the server URL, e.g. "ldaps://directory.example.org".
	URL string `yaml:"url"`

	// BaseDN is the subtree the user search starts from.
	BaseDN string `yaml:"base_dn"`

	// BindDN is the optional service account used for the user search.  An
	// empty value means an anonymous search bind.
	BindDN string `yaml:"bind_dn"`

	// BindPassword is the service account password.
	BindPassword string `yaml:"bind_password"`

	// UserFilter is the search filter with "%s" standing in for the escaped
	// username, e.g. "(uid=%s)".
	UserFilter string `yaml:"user_filter"`
}

// LDAP is an authenticator that verifies credentials with a search-then-bind
// against a directory server.  Every verification uses its own connection,
// which keeps the backend trivially safe for concurrent use.
type LDAP struct {
	cfg *LDAPConfig
}

// type check
var _ Authenticator = (*LDAP)(nil)

// NewLDAP creates an *LDAP and checks that the server is reachable.
func NewLDAP(cfg *LDAPConfig) (a *LDAP, err error) {
	conn, err := ldap.DialURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("auth: connecting to ldap %s: %w", cfg.URL, err)
	}
	defer func() { _ = conn.Close() }()

	return &LDAP{cfg: cfg}, nil
}

// Required implements the [Authenticator] interface for *LDAP.
func (a *LDAP) Required() (ok bool) { return true }

// Verify implements the [Authenticator] interface for *LDAP.
func (a *LDAP) Verify(_ context.Context, username, password string) (ok bool) {
	// A bind with an empty password is an anonymous bind and would always
	// succeed.
	if password == "" {
		return false
	}

	conn, err := ldap.DialURL(a.cfg.URL)
	if err != nil {
		log.Error("auth: ldap dial: %v", err)

		return false
	}
	defer func() { _ = conn.Close() }()

	if a.cfg.BindDN != "" {
		err = conn.Bind(a.cfg.BindDN, a.cfg.BindPassword)
	} else {
		err = conn.UnauthenticatedBind("")
	}
	if err != nil {
		log.Error("auth: ldap search bind: %v", err)

		return false
	}

	filter := fmt.Sprintf(a.cfg.UserFilter, ldap.EscapeFilter(username))
	req := ldap.NewSearchRequest(
		a.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1,
		0,
		false,
		filter,
		[]string{"dn"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		log.Error("auth: ldap search %q: %v", filter, err)

		return false
	}

	if len(res.Entries) != 1 {
		log.Debug("auth: ldap search %q matched %d entries", filter, len(res.Entries))

		return false
	}

	return conn.Bind(res.Entries[0].DN, password) == nil
}
