package scanio

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/agrinav-robotics/rowfollow/internal/row"
)

// FrameSubmitter accepts frames for processing. The pipeline Runtime is
// the production implementation; its Submit never blocks.
type FrameSubmitter interface {
	Submit(frame row.Frame)
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	// Address to listen on, e.g. ":2368".
	Address string
	// RcvBuf is the socket receive buffer size in bytes; zero keeps the
	// OS default.
	RcvBuf int
	// LogInterval controls periodic ingest statistics logging.
	LogInterval time.Duration
}

// UDPListener receives one scan per datagram in XYZ text form and
// submits it to the pipeline. It is a stand-in transport: a real sensor
// driver would sit in its place and is explicitly out of scope.
type UDPListener struct {
	cfg       UDPListenerConfig
	submitter FrameSubmitter

	datagrams atomic.Uint64
	pts       atomic.Uint64
	malformed atomic.Uint64
}

// NewUDPListener creates a listener feeding the given submitter.
func NewUDPListener(cfg UDPListenerConfig, submitter FrameSubmitter) *UDPListener {
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 30 * time.Second
	}
	return &UDPListener{cfg: cfg, submitter: submitter}
}

// Listen receives datagrams until ctx is cancelled.
func (l *UDPListener) Listen(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", l.cfg.Address)
	if err != nil {
		return err
	}
	defer conn.Close()

	if l.cfg.RcvBuf > 0 {
		if uc, ok := conn.(*net.UDPConn); ok {
			if err := uc.SetReadBuffer(l.cfg.RcvBuf); err != nil {
				row.Opsf("[UDP] Failed to set receive buffer to %d: %v", l.cfg.RcvBuf, err)
			}
		}
	}
	row.Opsf("[UDP] Listening on %s", conn.LocalAddr())
	return l.serve(ctx, conn)
}

// serve consumes datagrams from an already-open socket until ctx is
// cancelled.
func (l *UDPListener) serve(ctx context.Context, conn net.PacketConn) error {
	// Close the socket when the context ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ticker := time.NewTicker(l.cfg.LogInterval)
	defer ticker.Stop()

	buf := make([]byte, 65507)
	for {
		select {
		case <-ticker.C:
			row.Diagf("[UDP] %d datagrams, %d points, %d malformed",
				l.datagrams.Load(), l.pts.Load(), l.malformed.Load())
		default:
		}

		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				row.Opsf("[UDP] Listener stopped")
				return nil
			}
			return err
		}
		l.datagrams.Add(1)

		scan, err := ParsePoints(bytes.NewReader(buf[:n]))
		if err != nil || len(scan) == 0 {
			l.malformed.Add(1)
			row.Tracef("[UDP] Malformed datagram (%d bytes): %v", n, err)
			continue
		}
		l.pts.Add(uint64(len(scan)))
		l.submitter.Submit(row.NewFrame(scan, time.Now()))
	}
}
