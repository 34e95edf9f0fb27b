package proxy

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/fujiwara/shapeio"
)

// relayGraceTimeout is how long the opposite direction is allowed to drain
// after one direction of a tunnel has finished.
const relayGraceTimeout = 5 * time.Second

// closeWriter is a helper interface which only purpose is to check if the
// object has CloseWrite function or not and call it if it exists.
type closeWriter interface {
	CloseWrite() error
}

// relay copies bytes between the client and the upstream in both directions
// until either side closes, errors, or stays idle past the timeout.  The
// clientReader may wrap the client socket, e.g. with bytes already buffered
// by the HTTP preamble parser.
func (p *Server) relay(cctx *ConnContext, client net.Conn, clientReader io.Reader, upstream net.Conn) {
	// The handshake deadline no longer applies, each direction keeps its
	// own idle deadline from here on.
	_ = client.SetDeadline(time.Time{})

	log.Info("proxy: [%d] start tunneling to %s", cctx.ID, upstream.RemoteAddr())

	var wg sync.WaitGroup
	wg.Add(2)

	// When the first direction finishes, the opposite one gets a bounded
	// grace window to drain before both sockets are closed.
	var once sync.Once
	var graceTimer *time.Timer
	armGrace := func() {
		once.Do(func() {
			graceTimer = time.AfterFunc(relayGraceTimeout, func() {
				_ = client.Close()
				_ = upstream.Close()
			})
		})
	}

	var bytesSent, bytesReceived int64

	go func() {
		defer wg.Done()
		defer armGrace()

		bytesSent = p.copyDirection(cctx, upstream, clientReader, client)
	}()
	go func() {
		defer wg.Done()
		defer armGrace()

		bytesReceived = p.copyDirection(cctx, client, upstream, upstream)
	}()

	wg.Wait()

	if graceTimer != nil {
		graceTimer.Stop()
	}

	log.Info(
		"proxy: [%d] finished tunneling to %s. received %d, sent %d",
		cctx.ID,
		upstream.RemoteAddr(),
		bytesReceived,
		bytesSent,
	)
}

// copyDirection copies one direction of a tunnel from src to dst and
// half-closes dst when src is done.  srcConn is the socket behind src, used
// to refresh the idle deadline before every read.
func (p *Server) copyDirection(
	cctx *ConnContext,
	dst net.Conn,
	src io.Reader,
	srcConn net.Conn,
) (written int64) {
	defer func() {
		// In the case of *net.TCPConn we should call CloseWrite so the
		// peer sees EOF while its own direction keeps draining.
		switch c := dst.(type) {
		case closeWriter:
			_ = c.CloseWrite()
		default:
			_ = c.Close()
		}
	}()

	reader := shapeio.NewReader(&idleReader{
		r:       src,
		conn:    srcConn,
		timeout: p.cfg.ConnectionTimeout,
	})
	writer := shapeio.NewWriter(dst)
	if p.cfg.BandwidthRate > 0 {
		reader.SetRateLimit(p.cfg.BandwidthRate)
		writer.SetRateLimit(p.cfg.BandwidthRate)
	}

	written, err := io.CopyBuffer(writer, reader, make([]byte, p.cfg.BufferSize))
	if err != nil {
		if isTimeout(err) {
			log.Debug("proxy: [%d] relay direction closed: idle timeout", cctx.ID)
		} else {
			log.Debug("proxy: [%d] finished copying due to %v", cctx.ID, err)
		}
	}

	return written
}

// idleReader reads from r, pushing the read deadline of conn forward before
// every read so that only a direction idle for the whole timeout fails.
type idleReader struct {
	r       io.Reader
	conn    net.Conn
	timeout time.Duration
}

// Read implements the [io.Reader] interface for *idleReader.
func (ir *idleReader) Read(b []byte) (n int, err error) {
	if ir.timeout > 0 {
		_ = ir.conn.SetReadDeadline(time.Now().Add(ir.timeout))
	}

	return ir.r.Read(b)
}
