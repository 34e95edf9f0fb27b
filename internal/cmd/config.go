package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"duoproxy/internal/auth"
	"duoproxy/internal/proxy"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"gopkg.in/yaml.v3"
)

// fileConfig is the top-level schema of the configuration file.
type fileConfig struct {
	Server   serverConfig   `yaml:"server"`
	Auth     authConfig     `yaml:"auth"`
	Logging  loggingConfig  `yaml:"logging"`
	Security securityConfig `yaml:"security"`
}

// serverConfig is the server section of the configuration file.
type serverConfig struct {
	// BindAddress is the IP address both listeners bind to.
	BindAddress string `yaml:"bind_address"`

	// SOCKS5Port is the SOCKS5 listener port.
	SOCKS5Port int `yaml:"socks5_port"`

	// HTTPPort is the HTTP proxy listener port.
	HTTPPort int `yaml:"http_port"`

	// MaxConnections caps concurrently handled connections.
	MaxConnections int `yaml:"max_connections"`

	// ConnectionTimeout is the handshake/dial/idle timeout in seconds.
	ConnectionTimeout int `yaml:"connection_timeout"`

	// BufferSize is the relay buffer size in bytes.
	BufferSize int `yaml:"buffer_size"`
}

// authConfig is the auth section of the configuration file.
type authConfig struct {
	// LDAP configures the "ldap" method.
	LDAP *auth.LDAPConfig `yaml:"ldap"`

	// SQL configures the "sql" method.
	SQL *auth.SQLConfig `yaml:"sql"`

	// Method selects the backend: "static", "file", "ldap", or "sql".
	Method string `yaml:"method"`

	// UsersFile is the path of the hashed users file for the "file" method.
	UsersFile string `yaml:"users_file"`

	// Users are the inline plaintext accounts for the "static" method.
	Users []userCredentials `yaml:"users"`

	// Enabled turns client authentication on.
	Enabled bool `yaml:"enabled"`
}

// userCredentials is a single inline account.
type userCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// loggingConfig is the logging section of the configuration file.
type loggingConfig struct {
	// Level is one of "debug", "info", "error".
	Level string `yaml:"level"`

	// File is the optional log file.  Rotation settings below only apply
	// when it is set.
	File string `yaml:"file"`

	// MaxSize is the size in megabytes a log file may reach before it is
	// rotated.
	MaxSize int `yaml:"max_size"`

	// MaxBackups is how many rotated files are kept.
	MaxBackups int `yaml:"max_backups"`

	// MaxAge is how many days rotated files are kept.
	MaxAge int `yaml:"max_age"`

	// Compress enables gzip compression of rotated files.
	Compress bool `yaml:"compress"`
}

// securityConfig is the security section of the configuration file.
type securityConfig struct {
	// RateLimit configures per-source admission rate limiting.
	RateLimit *rateLimitConfig `yaml:"rate_limit"`

	// AllowedNetworks is the source allow-list in CIDR notation.
	AllowedNetworks []string `yaml:"allowed_networks"`

	// BlockedDomains is the destination deny-list.
	BlockedDomains []string `yaml:"blocked_domains"`

	// MaxRequestSize caps the HTTP request preamble in bytes.
	MaxRequestSize int `yaml:"max_request_size"`

	// BandwidthRate limits each relay direction to this many bytes per
	// second.  Zero means no limit.
	BandwidthRate float64 `yaml:"bandwidth_rate"`
}

// rateLimitConfig is the security.rate_limit subsection.
type rateLimitConfig struct {
	// RequestsPerMinute is the sustained per-source connection rate.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// BurstSize is the per-source burst capacity.
	BurstSize int `yaml:"burst_size"`
}

// defaultFileConfig returns the configuration used when the file does not
// exist or omits a section.
func defaultFileConfig() (fc *fileConfig) {
	return &fileConfig{
		Server: serverConfig{
			BindAddress:       "127.0.0.1",
			SOCKS5Port:        1080,
			HTTPPort:          8080,
			MaxConnections:    1000,
			ConnectionTimeout: 300,
			BufferSize:        64 * 1024,
		},
		Logging: loggingConfig{
			Level:   "info",
			MaxSize: 100,
		},
		Security: securityConfig{
			MaxRequestSize: 1024 * 1024,
		},
	}
}

// readConfig reads the configuration file at path on top of the defaults.
// A missing file is not an error, the defaults are used as is.
func readConfig(path string) (fc *fileConfig, err error) {
	fc = defaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("cmd: configuration file %s not found, using defaults", path)

			return fc, nil
		}

		return nil, fmt.Errorf("cmd: reading configuration: %w", err)
	}

	if err = yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("cmd: parsing configuration %s: %w", path, err)
	}

	return fc, nil
}

// toProxyConfig converts the file configuration to [*proxy.Config].  It
// exits on an unparsable bind address and panics if the authenticator
// cannot be built; the remaining fields are validated by [proxy.New].
func toProxyConfig(fc *fileConfig) (cfg *proxy.Config) {
	ip := net.ParseIP(fc.Server.BindAddress)
	if ip == nil {
		log.Fatalf("cmd: failed to parse bind_address %s", fc.Server.BindAddress)
	}

	authenticator, err := newAuthenticator(&fc.Auth)
	check(err)

	cfg = &proxy.Config{
		SOCKSListenAddr: &net.TCPAddr{
			IP:   ip,
			Port: fc.Server.SOCKS5Port,
		},
		HTTPListenAddr: &net.TCPAddr{
			IP:   ip,
			Port: fc.Server.HTTPPort,
		},
		Authenticator:     authenticator,
		AllowedNetworks:   fc.Security.AllowedNetworks,
		BlockedDomains:    fc.Security.BlockedDomains,
		MaxConnections:    fc.Server.MaxConnections,
		ConnectionTimeout: time.Duration(fc.Server.ConnectionTimeout) * time.Second,
		BufferSize:        fc.Server.BufferSize,
		MaxRequestSize:    fc.Security.MaxRequestSize,
		BandwidthRate:     fc.Security.BandwidthRate,
	}

	if rl := fc.Security.RateLimit; rl != nil {
		cfg.RatePerMinute = rl.RequestsPerMinute
		cfg.RateBurst = rl.BurstSize
	}

	return cfg
}

// newAuthenticator builds the authenticator backend selected by the auth
// section.
func newAuthenticator(ac *authConfig) (a auth.Authenticator, err error) {
	if !ac.Enabled {
		return auth.Anonymous{}, nil
	}

	switch ac.Method {
	case "", "static":
		if len(ac.Users) == 0 {
			return nil, errors.Error("cmd: auth enabled but no users configured")
		}

		users := make(map[string]string, len(ac.Users))
		for _, u := range ac.Users {
			if u.Username == "" || u.Password == "" {
				return nil, errors.Error("cmd: username and password cannot be empty")
			}

			users[u.Username] = u.Password
		}

		return auth.NewStatic(users), nil
	case "file":
		return auth.NewFile(ac.UsersFile)
	case "ldap":
		if ac.LDAP == nil {
			return nil, errors.Error("cmd: auth method ldap requires the ldap section")
		}

		return auth.NewLDAP(ac.LDAP)
	case "sql":
		if ac.SQL == nil {
			return nil, errors.Error("cmd: auth method sql requires the sql section")
		}

		return auth.NewSQL(context.Background(), ac.SQL)
	default:
		return nil, fmt.Errorf("cmd: unknown auth method %q", ac.Method)
	}
}
