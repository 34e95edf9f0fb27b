package proxy

import (
	"fmt"
	"net"

	"duoproxy/internal/socks"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
)

// SOCKS5 handler errors.
const (
	errNoAcceptableMethod errors.Error = "no acceptable authentication method"
	errAuthFailed         errors.Error = "authentication failed"
	errCommandRejected    errors.Error = "command rejected"
	errDestinationBlocked errors.Error = "destination blocked"
)

// handleSOCKS drives the SOCKS5 state machine for one client connection:
// method negotiation, optional username/password sub-negotiation, request
// parsing, outbound dial, reply, and the handoff to the relay.
func (p *Server) handleSOCKS(cctx *ConnContext, conn net.Conn) (err error) {
	greeting, err := socks.ReadGreeting(conn)
	if err != nil {
		return fmt.Errorf("proxy: [%d] greeting: %w", cctx.ID, err)
	}

	if err = p.selectMethod(cctx, conn, greeting); err != nil {
		return err
	}

	req, err := socks.ReadRequest(conn)
	if err != nil {
		// Best effort: the client may already be gone.
		_ = socks.WriteReply(conn, socksReplyForReadError(err), nil)

		return fmt.Errorf("proxy: [%d] request: %w", cctx.ID, err)
	}

	log.Debug("proxy: [%d] socks5 handshake completed for %s", cctx.ID, cctx.User)

	if req.Command != socks.CmdConnect {
		_ = socks.WriteReply(conn, socks.ReplyCommandNotSupported, nil)

		return fmt.Errorf("proxy: [%d] command %d: %w", cctx.ID, req.Command, errCommandRejected)
	}

	// The deny-list is applied to the name as the client sent it, before
	// any resolution, so a blocked domain never triggers a DNS query.
	if p.domains.Blocked(req.Host) {
		log.Info("proxy: [%d] blocked connection to %s", cctx.ID, req.Host)
		_ = socks.WriteReply(conn, socks.ReplyNotAllowed, nil)

		return fmt.Errorf("proxy: [%d] %s: %w", cctx.ID, req.Host, errDestinationBlocked)
	}

	upstream, err := p.dialDestination(cctx, req.Host, int(req.Port))
	if err != nil {
		_ = socks.WriteReply(conn, socksReplyForDialError(err), nil)

		return fmt.Errorf("proxy: [%d] dialing %s: %w", cctx.ID, req.HostPort(), err)
	}
	defer log.OnCloserError(upstream, log.DEBUG)

	if err = socks.WriteReply(conn, socks.ReplySucceeded, upstream.LocalAddr()); err != nil {
		return fmt.Errorf("proxy: [%d] reply: %w", cctx.ID, err)
	}

	p.relay(cctx, conn, conn, upstream)

	return nil
}

// selectMethod performs the method negotiation and, when authentication is
// required, the RFC 1929 sub-negotiation.
func (p *Server) selectMethod(
	cctx *ConnContext,
	conn net.Conn,
	greeting *socks.Greeting,
) (err error) {
	if !p.auth.Required() {
		if !greeting.Offers(socks.MethodNoAuth) {
			_ = socks.WriteMethodSelection(conn, socks.MethodNoAcceptable)

			return fmt.Errorf("proxy: [%d] %w", cctx.ID, errNoAcceptableMethod)
		}

		return socks.WriteMethodSelection(conn, socks.MethodNoAuth)
	}

	if !greeting.Offers(socks.MethodUserPass) {
		log.Info("proxy: [%d] rejected: client did not offer authentication", cctx.ID)
		_ = socks.WriteMethodSelection(conn, socks.MethodNoAcceptable)

		return fmt.Errorf("proxy: [%d] %w", cctx.ID, errNoAcceptableMethod)
	}

	if err = socks.WriteMethodSelection(conn, socks.MethodUserPass); err != nil {
		return fmt.Errorf("proxy: [%d] method selection: %w", cctx.ID, err)
	}

	username, password, err := socks.ReadUserPass(conn)
	if err != nil {
		return fmt.Errorf("proxy: [%d] auth message: %w", cctx.ID, err)
	}

	if !p.auth.Verify(p.ctx, username, password) {
		log.Info("proxy: [%d] authentication failed for %q", cctx.ID, username)
		_ = socks.WriteAuthStatus(conn, socks.AuthFailure)

		return fmt.Errorf("proxy: [%d] %w", cctx.ID, errAuthFailed)
	}

	if err = socks.WriteAuthStatus(conn, socks.AuthSucceeded); err != nil {
		return fmt.Errorf("proxy: [%d] auth status: %w", cctx.ID, err)
	}

	cctx.User = username

	return nil
}
