package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReadConfig_missingUsesDefaults(t *testing.T) {
	fc, err := readConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fc.Server.SOCKS5Port != 1080 || fc.Server.HTTPPort != 8080 {
		t.Fatalf("defaults not applied: %+v", fc.Server)
	}
}

func TestReadConfig(t *testing.T) {
	contents := `
server:
  bind_address: "0.0.0.0"
  socks5_port: 1085
  http_port: 8085
  max_connections: 50
  connection_timeout: 30
  buffer_size: 8192
auth:
  enabled: true
  method: static
  users:
    - username: alice
      password: s3cret
security:
  allowed_networks:
    - "10.0.0.0/8"
  blocked_domains:
    - "evil.test"
  max_request_size: 4096
  rate_limit:
    requests_per_minute: 60
    burst_size: 10
`

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fc, err := readConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := toProxyConfig(fc)

	if cfg.SOCKSListenAddr.Port != 1085 || cfg.HTTPListenAddr.Port != 8085 {
		t.Fatalf("listen addrs: %v, %v", cfg.SOCKSListenAddr, cfg.HTTPListenAddr)
	}

	if cfg.ConnectionTimeout != 30*time.Second || cfg.BufferSize != 8192 {
		t.Fatalf("server settings: %+v", cfg)
	}

	if !cfg.Authenticator.Required() {
		t.Fatal("authenticator must require auth")
	}

	if cfg.RatePerMinute != 60 || cfg.RateBurst != 10 {
		t.Fatalf("rate limit: %d/%d", cfg.RatePerMinute, cfg.RateBurst)
	}

	if len(cfg.BlockedDomains) != 1 || cfg.BlockedDomains[0] != "evil.test" {
		t.Fatalf("blocked domains: %v", cfg.BlockedDomains)
	}
}

func TestNewAuthenticator_errors(t *testing.T) {
	testCases := []struct {
		name string
		ac   *authConfig
	}{{
		name: "no_users",
		ac:   &authConfig{Enabled: true, Method: "static"},
	}, {
		name: "empty_password",
		ac: &authConfig{
			Enabled: true,
			Method:  "static",
			Users:   []userCredentials{{Username: "alice"}},
		},
	}, {
		name: "unknown_method",
		ac:   &authConfig{Enabled: true, Method: "kerberos"},
	}, {
		name: "ldap_without_section",
		ac:   &authConfig{Enabled: true, Method: "ldap"},
	}, {
		name: "sql_without_section",
		ac:   &authConfig{Enabled: true, Method: "sql"},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := newAuthenticator(tc.ac); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewAuthenticator_disabled(t *testing.T) {
	a, err := newAuthenticator(&authConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.Required() {
		t.Fatal("disabled auth must not be required")
	}
}
