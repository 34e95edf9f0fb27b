package proxy

import (
	"net"
	"time"

	"duoproxy/internal/auth"

	"github.com/AdguardTeam/golibs/errors"
)

// Config is the proxy server configuration.  It is built once at startup
// and never mutated afterwards.
type Config struct {
	// SOCKSListenAddr is the listen address of the SOCKS5 server.
	SOCKSListenAddr *net.TCPAddr

	// HTTPListenAddr is the listen address of the HTTP proxy server.
	HTTPListenAddr *net.TCPAddr

	// Authenticator verifies client credentials for both protocols.
	Authenticator auth.Authenticator

	// AllowedNetworks is the list of source networks in CIDR notation that
	// are allowed to connect.  An empty list allows every source.
	AllowedNetworks []string

	// BlockedDomains is the list of destination domains connections are
	// refused to.  Entries may contain "*" wildcards.
	BlockedDomains []string

	// MaxConnections caps the number of connections handled at once across
	// both listeners.
	MaxConnections int

	// ConnectionTimeout bounds every handshake, authentication, and dial
	// phase, and serves as the per-direction idle timeout of the relay.
	ConnectionTimeout time.Duration

	// BufferSize is the per-direction relay buffer size in bytes.
	BufferSize int

	// MaxRequestSize caps the HTTP request preamble in bytes.
	MaxRequestSize int

	// RatePerMinute is the number of connections a single source IP may
	// open per minute.  Zero disables rate limiting.
	RatePerMinute int

	// RateBurst is the burst capacity of the per-source rate limiter.
	RateBurst int

	// BandwidthRate is a number of bytes per second each relay direction is
	// limited to.  If not set, there is no limit.
	BandwidthRate float64
}

// Config validation errors.
const (
	errNoListenAddr  errors.Error = "both listen addresses must be set"
	errSamePort      errors.Error = "socks5 and http ports must differ"
	errBadPort       errors.Error = "listen ports must be in 0..65535"
	errNoConnections errors.Error = "max_connections must be positive"
	errSmallBuffer   errors.Error = "buffer_size must be at least 1024"
	errNoTimeout     errors.Error = "connection_timeout must be positive"
	errNoRequestSize errors.Error = "max_request_size must be positive"
	errNoAuth        errors.Error = "authenticator must be set"
)

// validate checks the configuration invariants that do not require parsing.
// CIDR entries are validated by [New] when the source filter is built.
func (cfg *Config) validate() (err error) {
	switch {
	case cfg.SOCKSListenAddr == nil || cfg.HTTPListenAddr == nil:
		return errNoListenAddr
	case !validListenPort(cfg.SOCKSListenAddr.Port) || !validListenPort(cfg.HTTPListenAddr.Port):
		return errBadPort
	case cfg.SOCKSListenAddr.Port != 0 && cfg.SOCKSListenAddr.Port == cfg.HTTPListenAddr.Port:
		return errSamePort
	case cfg.Authenticator == nil:
		return errNoAuth
	case cfg.MaxConnections <= 0:
		return errNoConnections
	case cfg.BufferSize < 1024:
		return errSmallBuffer
	case cfg.ConnectionTimeout <= 0:
		return errNoTimeout
	case cfg.MaxRequestSize <= 0:
		return errNoRequestSize
	default:
		return nil
	}
}

// validListenPort reports whether port fits a TCP port number.  Zero is
// accepted and picks an ephemeral port.
func validListenPort(port int) (ok bool) {
	return port >= 0 && port <= 65535
}

// validPort reports whether port fits a nonzero TCP port number.
func validPort(port int) (ok bool) {
	return port > 0 && port <= 65535
}
