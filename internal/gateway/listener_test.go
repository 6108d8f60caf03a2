package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ircbridge/gateway/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRates() ratelimit.Rates {
	return ratelimit.Rates{Join: "10-M", Privmsg: "20-M", Nick: "5-M"}
}

func TestListener_HandleTracksActiveSessionsAcrossLifetime(t *testing.T) {
	l := &Listener{ServerName: "test", BackendAddr: "127.0.0.1:1", Rates: testRates()}

	server, client := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.handle(ctx, server)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return l.ActiveSessions() == 1
	}, time.Second, 10*time.Millisecond, "session should register as active once handle starts")

	// Closing the client before the handshake completes unblocks the
	// session's read loop with an error, ending handle without ever
	// reaching the backend dial.
	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handle did not return after client closed")
	}

	assert.Equal(t, 0, l.ActiveSessions(), "session should be deregistered once handle returns")
}

func TestListener_ServeSpawnsOneSessionPerConnection(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	l := &Listener{ServerName: "test", BackendAddr: "127.0.0.1:1", Rates: testRates()}

	ctx, cancel := context.WithCancel(context.Background())
	serveErrc := make(chan error, 1)
	go func() { serveErrc <- l.Serve(ctx, addr) }()

	// Give the listener a moment to bind before dialing.
	var conn net.Conn
	require.Eventually(t, func() bool {
		c, dialErr := net.Dial("tcp", addr)
		if dialErr != nil {
			return false
		}
		conn = c
		return true
	}, time.Second, 10*time.Millisecond, "listener should accept a connection once bound")
	defer conn.Close()

	require.Eventually(t, func() bool {
		return l.ActiveSessions() == 1
	}, time.Second, 10*time.Millisecond, "accepted connection should spawn one active session")

	conn.Close()
	require.Eventually(t, func() bool {
		return l.ActiveSessions() == 0
	}, time.Second, 10*time.Millisecond, "session should end once its connection closes")

	cancel()
	select {
	case err := <-serveErrc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
