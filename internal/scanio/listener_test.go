package scanio

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinav-robotics/rowfollow/internal/row"
)

// frameCollector records submitted frames for inspection.
type frameCollector struct{ ch chan row.Frame }

func (c *frameCollector) Submit(frame row.Frame) { c.ch <- frame }

// startListener serves on a loopback socket and returns a sender dialed
// at it plus the serve result channel.
func startListener(t *testing.T, l *UDPListener) (net.Conn, chan error, context.CancelFunc) {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- l.serve(ctx, conn) }()

	sender, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { sender.Close() })
	return sender, served, cancel
}

func TestUDPListenerDeliversFrames(t *testing.T) {
	t.Parallel()

	collector := &frameCollector{ch: make(chan row.Frame, 4)}
	l := NewUDPListener(UDPListenerConfig{}, collector)
	sender, served, cancel := startListener(t, l)

	_, err := sender.Write([]byte("1 2 3\n4 5 6\n"))
	require.NoError(t, err)

	select {
	case frame := <-collector.ch:
		require.Len(t, frame.Points, 2)
		assert.Equal(t, 1.0, frame.Points[0].X)
		assert.Equal(t, 6.0, frame.Points[1].Z)
		assert.NotEmpty(t, frame.ID)
		assert.False(t, frame.Stamp.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered")
	}
	assert.Equal(t, uint64(1), l.datagrams.Load())

	cancel()
	require.NoError(t, <-served)
}

func TestUDPListenerCountsMalformedDatagrams(t *testing.T) {
	t.Parallel()

	collector := &frameCollector{ch: make(chan row.Frame, 4)}
	l := NewUDPListener(UDPListenerConfig{}, collector)
	sender, served, cancel := startListener(t, l)

	_, err := sender.Write([]byte("not a point\n"))
	require.NoError(t, err)
	// A well-formed scan after the bad one must still come through.
	_, err = sender.Write([]byte("0.5 -0.25 0\n"))
	require.NoError(t, err)

	select {
	case frame := <-collector.ch:
		require.Len(t, frame.Points, 1)
		assert.Equal(t, 0.5, frame.Points[0].X)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered after the malformed datagram")
	}

	deadline := time.Now().Add(5 * time.Second)
	for l.malformed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, uint64(1), l.malformed.Load())
	assert.Equal(t, uint64(2), l.datagrams.Load())

	cancel()
	require.NoError(t, <-served)
}
