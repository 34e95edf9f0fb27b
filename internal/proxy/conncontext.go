package proxy

import (
	"net/netip"
	"sync/atomic"
)

var lastID uint64

// ConnContext represents a single client connection context.
type ConnContext struct {
	// ID is a unique connection ID.
	ID uint64

	// Proto is the listener protocol, "socks5" or "http".
	Proto string

	// User is the authenticated username, or "anonymous".
	User string

	// Client is the client's source address.
	Client netip.AddrPort
}

// NewConnContext creates a new instance of *ConnContext.
func NewConnContext(proto string, client netip.AddrPort) (c *ConnContext) {
	return &ConnContext{
		ID:     atomic.AddUint64(&lastID, 1),
		Proto:  proto,
		User:   "anonymous",
		Client: client,
	}
}
