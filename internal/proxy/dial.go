package proxy

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"

	"duoproxy/internal/socks"

	"github.com/AdguardTeam/golibs/log"
)

// dialDestination opens a TCP connection to host:port under the connection
// timeout.  The caller must have applied the destination policy already:
// this function resolves the host, so a blocked domain must never reach it.
func (p *Server) dialDestination(
	cctx *ConnContext,
	host string,
	port int,
) (conn net.Conn, err error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	log.Debug("proxy: [%d] dialing %s", cctx.ID, addr)

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.ConnectionTimeout)
	defer cancel()

	conn, err = p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Debug("proxy: [%d] dialing %s: %v", cctx.ID, addr, err)

		return nil, err
	}

	log.Debug("proxy: [%d] connected to %s via %s", cctx.ID, addr, conn.LocalAddr())

	return conn, nil
}

// socksReplyForDialError maps a dial error to the SOCKS5 reply code that
// describes it.
func socksReplyForDialError(err error) (reply byte) {
	var dnsErr *net.DNSError

	switch {
	case isTimeout(err):
		return socks.ReplyTTLExpired
	case errors.Is(err, syscall.ECONNREFUSED):
		return socks.ReplyConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH):
		return socks.ReplyNetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH):
		return socks.ReplyHostUnreachable
	case errors.As(err, &dnsErr):
		return socks.ReplyHostUnreachable
	default:
		return socks.ReplyGeneralFailure
	}
}

// socksReplyForReadError maps a request read error to a reply code.
func socksReplyForReadError(err error) (reply byte) {
	switch {
	case errors.Is(err, socks.ErrAddrType):
		return socks.ReplyAddressNotSupported
	case isTimeout(err):
		return socks.ReplyTTLExpired
	default:
		return socks.ReplyGeneralFailure
	}
}
