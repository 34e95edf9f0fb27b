// Package proxy is responsible for the dual-protocol forward proxy: a
// SOCKS5 server and an HTTP proxy that listen on independent ports, share
// one connection budget and one security policy, and relay traffic to the
// destinations their clients request.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"duoproxy/internal/auth"
	"duoproxy/internal/filter"
	"duoproxy/internal/ratelimit"

	"github.com/AdguardTeam/golibs/log"
	"golang.org/x/sync/semaphore"
)

const (
	// acceptBackoff is how long an accept loop sleeps after a transient
	// accept error before trying again.
	acceptBackoff = 100 * time.Millisecond

	// shutdownDrainTimeout is how long Close waits for in-flight
	// connections before force-closing them.
	shutdownDrainTimeout = 5 * time.Second
)

// Listener protocol names used in the connection context and the log.
const (
	protoSOCKS = "socks5"
	protoHTTP  = "http"
)

// Server is the proxy server.  It owns the two listening sockets, admits
// connections against the shared budget and the security policy, and runs a
// handler goroutine per admitted connection.
type Server struct {
	cfg  *Config
	auth auth.Authenticator

	sources *filter.Sources
	domains *filter.Domains
	limiter *ratelimit.PerSource

	dialer *net.Dialer

	socksListener net.Listener
	httpListener  net.Listener

	sem *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	active atomic.Int64
}

// type check
var _ io.Closer = (*Server)(nil)

// New creates a new instance of *Server.
func New(cfg *Config) (p *Server, err error) {
	if err = cfg.validate(); err != nil {
		return nil, fmt.Errorf("proxy: invalid configuration: %w", err)
	}

	sources, err := filter.NewSources(cfg.AllowedNetworks)
	if err != nil {
		return nil, fmt.Errorf("proxy: invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:     cfg,
		auth:    cfg.Authenticator,
		sources: sources,
		domains: filter.NewDomains(cfg.BlockedDomains),
		limiter: ratelimit.New(cfg.RatePerMinute, cfg.RateBurst),
		dialer: &net.Dialer{
			Timeout:  cfg.ConnectionTimeout,
			Resolver: &net.Resolver{},
		},
		sem:    semaphore.NewWeighted(int64(cfg.MaxConnections)),
		ctx:    ctx,
		cancel: cancel,
		conns:  map[net.Conn]struct{}{},
	}, nil
}

// Start binds both listeners and starts the accept loops.
func (p *Server) Start() (err error) {
	log.Info("proxy: starting")

	p.socksListener, err = net.ListenTCP("tcp", p.cfg.SOCKSListenAddr)
	if err != nil {
		return fmt.Errorf("proxy: failed to bind socks5 listener: %w", err)
	}

	p.httpListener, err = net.ListenTCP("tcp", p.cfg.HTTPListenAddr)
	if err != nil {
		closeErr := p.socksListener.Close()

		return errors.Join(fmt.Errorf("proxy: failed to bind http listener: %w", err), closeErr)
	}

	go p.acceptLoop(p.socksListener, protoSOCKS)
	go p.acceptLoop(p.httpListener, protoHTTP)

	log.Info("proxy: started successfully")

	return nil
}

// Close implements the [io.Closer] interface for *Server.  It stops
// accepting new connections, waits for in-flight ones up to
// shutdownDrainTimeout, and force-closes the rest.
func (p *Server) Close() (err error) {
	log.Info("proxy: stopping")

	p.cancel()

	socksErr := p.socksListener.Close()
	httpErr := p.httpListener.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All handlers drained.
	case <-time.After(shutdownDrainTimeout):
		n := p.closeConns()
		log.Info("proxy: drain window elapsed, force-closed %d connections", n)

		<-done
	}

	log.Info("proxy: stopped")

	return errors.Join(socksErr, httpErr)
}

// closeConns force-closes every tracked connection and returns how many
// there were.
func (p *Server) closeConns() (n int) {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()

	for c := range p.conns {
		_ = c.Close()
		n++
	}

	return n
}

// trackConn registers or unregisters a connection for force-close on
// shutdown.
func (p *Server) trackConn(c net.Conn, add bool) {
	p.connsMu.Lock()
	defer p.connsMu.Unlock()

	if add {
		p.conns[c] = struct{}{}
	} else {
		delete(p.conns, c)
	}
}

// acceptLoop accepts incoming TCP connections on l and starts goroutines
// processing them.  After every accept the loop blocks until a connection
// permit is held, so when the budget is exhausted no further connections
// are accepted and the OS backlog provides the backpressure.  The permit is
// shared between both listeners, which is why it cannot be acquired before
// the accept: an idle listener would park a permit while blocked in Accept
// and starve the other protocol.
func (p *Server) acceptLoop(l net.Listener, proto string) {
	log.Info("proxy: listening for %s connections on %s", proto, l.Addr())

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info("proxy: exiting %s listener loop as it has been closed", proto)

				return
			}

			log.Error("proxy: accepting %s connection: %v", proto, err)
			time.Sleep(acceptBackoff)

			continue
		}

		if err = p.sem.Acquire(p.ctx, 1); err != nil {
			// The server is shutting down.
			_ = conn.Close()

			return
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.sem.Release(1)

			p.serve(conn, proto)
		}()
	}
}

// serve admits and handles a single accepted connection.  Errors are
// handled here at the connection boundary and never propagate further.
func (p *Server) serve(conn net.Conn, proto string) {
	defer log.OnCloserError(conn, log.DEBUG)

	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return
	}

	client := tcpAddr.AddrPort()

	if !p.sources.Allowed(client.Addr()) {
		log.Info("proxy: rejected %s from %s: source not allowed", proto, client)

		return
	}

	if !p.limiter.Allow(client.Addr()) {
		log.Info("proxy: rejected %s from %s: rate limit exceeded", proto, client)

		return
	}

	cctx := NewConnContext(proto, client)

	p.trackConn(conn, true)
	defer p.trackConn(conn, false)

	n := p.active.Add(1)
	defer p.active.Add(-1)

	log.Debug("proxy: [%d] accepted %s connection from %s, %d active", cctx.ID, proto, client, n)

	// The deadline covers the whole handshake phase.  The relay clears it
	// and keeps its own per-read idle deadlines.
	if err := conn.SetDeadline(time.Now().Add(p.cfg.ConnectionTimeout)); err != nil {
		log.Debug("proxy: [%d] setting deadline: %v", cctx.ID, err)

		return
	}

	var err error
	if proto == protoSOCKS {
		err = p.handleSOCKS(cctx, conn)
	} else {
		err = p.handleHTTP(cctx, conn)
	}

	if err != nil {
		log.Debug("proxy: [%d] error handling connection: %v", cctx.ID, err)
	}
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) (ok bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
