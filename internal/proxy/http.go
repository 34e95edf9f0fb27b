package proxy

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"duoproxy/internal/preamble"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/log"
	"github.com/AdguardTeam/golibs/netutil"
)

// HTTP handler errors.
const (
	errProxyAuthRequired errors.Error = "proxy authentication required"
	errOriginFormTarget  errors.Error = "origin-form target rejected"
)

// proxyAuthenticateHeader is sent with every 407 response.
const proxyAuthenticateHeader = `Proxy-Authenticate: Basic realm="proxy"`

// handleHTTP handles one HTTP proxy connection: it parses the request
// preamble, enforces authentication, and branches on CONNECT tunneling vs
// absolute-form forwarding.
func (p *Server) handleHTTP(cctx *ConnContext, conn net.Conn) (err error) {
	br := bufio.NewReader(conn)

	pre, err := preamble.Read(br, p.cfg.MaxRequestSize)
	if err != nil {
		switch {
		case errors.Is(err, preamble.ErrTooLarge):
			log.Info("proxy: [%d] rejected: request preamble too large", cctx.ID)
			_ = writeStatus(conn, 413, "Payload Too Large")
		case errors.Is(err, preamble.ErrMalformed):
			_ = writeStatus(conn, 400, "Bad Request")
		}

		return fmt.Errorf("proxy: [%d] preamble: %w", cctx.ID, err)
	}

	// Authentication comes before everything else, CONNECT included, so
	// that an unauthenticated client learns nothing and no dial happens.
	if p.auth.Required() {
		username, ok := p.checkProxyAuth(pre)
		if !ok {
			log.Info("proxy: [%d] proxy authentication failed", cctx.ID)
			_ = writeStatus(conn, 407, "Proxy Authentication Required", proxyAuthenticateHeader)

			return fmt.Errorf("proxy: [%d] %w", cctx.ID, errProxyAuthRequired)
		}

		cctx.User = username
	}

	log.Debug("proxy: [%d] http handshake completed for %s", cctx.ID, cctx.User)

	if pre.IsConnect() {
		return p.handleConnect(cctx, conn, br, pre)
	}

	return p.handleAbsolute(cctx, conn, br, pre)
}

// checkProxyAuth validates the Proxy-Authorization header against the
// authenticator and returns the authenticated username.
func (p *Server) checkProxyAuth(pre *preamble.Preamble) (username string, ok bool) {
	value := pre.Get("Proxy-Authorization")

	scheme, encoded, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", false
	}

	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", false
	}

	if !p.auth.Verify(p.ctx, username, password) {
		return "", false
	}

	return username, true
}

// handleConnect establishes a CONNECT tunnel.  Bytes the client sent after
// the blank line are preserved in br and forwarded by the relay.
func (p *Server) handleConnect(
	cctx *ConnContext,
	conn net.Conn,
	br *bufio.Reader,
	pre *preamble.Preamble,
) (err error) {
	host, port, err := netutil.SplitHostPort(pre.Target)
	if err != nil {
		_ = writeStatus(conn, 400, "Bad Request")

		return fmt.Errorf("proxy: [%d] connect target %q: %w", cctx.ID, pre.Target, err)
	}

	if p.domains.Blocked(host) {
		log.Info("proxy: [%d] blocked connection to %s", cctx.ID, host)
		_ = writeStatus(conn, 403, "Forbidden")

		return fmt.Errorf("proxy: [%d] %s: %w", cctx.ID, host, errDestinationBlocked)
	}

	upstream, err := p.dialDestination(cctx, host, int(port))
	if err != nil {
		_ = writeStatus(conn, 502, "Bad Gateway")

		return fmt.Errorf("proxy: [%d] dialing %s: %w", cctx.ID, pre.Target, err)
	}
	defer log.OnCloserError(upstream, log.DEBUG)

	if _, err = conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return fmt.Errorf("proxy: [%d] connect response: %w", cctx.ID, err)
	}

	p.relay(cctx, conn, br, upstream)

	return nil
}

// handleAbsolute forwards an absolute-form request: it rewrites the request
// line to origin form, strips hop-by-hop headers, and relays transparently
// from there on.
func (p *Server) handleAbsolute(
	cctx *ConnContext,
	conn net.Conn,
	br *bufio.Reader,
	pre *preamble.Preamble,
) (err error) {
	u, err := url.Parse(pre.Target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		_ = writeStatus(conn, 400, "Bad Request")

		return fmt.Errorf("proxy: [%d] target %q: %w", cctx.ID, pre.Target, errOriginFormTarget)
	}

	host := u.Hostname()
	port := 80
	if u.Scheme == "https" {
		port = 443
	}

	if portStr := u.Port(); portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || !validPort(port) {
			_ = writeStatus(conn, 400, "Bad Request")

			return fmt.Errorf("proxy: [%d] target port %q: %w", cctx.ID, portStr, errOriginFormTarget)
		}
	}

	if p.domains.Blocked(host) {
		log.Info("proxy: [%d] blocked connection to %s", cctx.ID, host)
		_ = writeStatus(conn, 403, "Forbidden")

		return fmt.Errorf("proxy: [%d] %s: %w", cctx.ID, host, errDestinationBlocked)
	}

	rewriteForOrigin(pre, u)

	upstream, err := p.dialDestination(cctx, host, port)
	if err != nil {
		_ = writeStatus(conn, 502, "Bad Gateway")

		return fmt.Errorf("proxy: [%d] dialing %s: %w", cctx.ID, u.Host, err)
	}
	defer log.OnCloserError(upstream, log.DEBUG)

	if _, err = pre.WriteTo(upstream); err != nil {
		return fmt.Errorf("proxy: [%d] forwarding request: %w", cctx.ID, err)
	}

	p.relay(cctx, conn, br, upstream)

	return nil
}

// rewriteForOrigin turns the absolute-form preamble into the origin-form
// request sent upstream: origin-form target, hop-by-hop headers stripped,
// and a Host header if the client did not send one.
func rewriteForOrigin(pre *preamble.Preamble, u *url.URL) {
	target := u.RequestURI()
	if target == "" {
		target = "/"
	}

	pre.Target = target

	// Headers named by Connection are hop-by-hop too.
	hopByHop := append(pre.ConnectionTokens(), "Proxy-Authorization", "Proxy-Connection", "Connection")
	for _, name := range hopByHop {
		pre.Delete(name)
	}

	if !pre.Has("Host") {
		pre.Add("Host", u.Host)
	}
}

// writeStatus writes a terse HTTP error response with the given status and
// optional extra headers, e.g. Proxy-Authenticate.
func writeStatus(conn net.Conn, code int, reason string, extra ...string) (err error) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("HTTP/1.1 %d %s\r\n", code, reason))
	for _, h := range extra {
		sb.WriteString(h)
		sb.WriteString("\r\n")
	}

	sb.WriteString(fmt.Sprintf("Content-Length: %d\r\n", len(reason)))
	sb.WriteString("Connection: close\r\n\r\n")
	sb.WriteString(reason)

	_, err = conn.Write([]byte(sb.String()))

	return err
}
