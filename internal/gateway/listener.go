// Package gateway runs the raw TCP accept loop for the IRC side of the
// bridge: one goroutine per client, each wrapped in a freshly constructed
// internal/bridge.Bridge and handed the shared ambient singletons (logger,
// rate limiter config, fleet heartbeat, backend dial breaker).
//
// Grounded on original_source/src/main.rs's accept loop (bind, loop {
// accept, spawn }) and shaped the way the teacher's own internal/v1
// server entry points structure a listener: a small struct holding
// shared dependencies plus a Serve method that never returns except on
// listener failure or context cancellation.
package gateway

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ircbridge/gateway/internal/bridge"
	"github.com/ircbridge/gateway/internal/ircwire"
	"github.com/ircbridge/gateway/internal/logging"
	"github.com/ircbridge/gateway/internal/ratelimit"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Listener accepts IRC client connections and spawns one Bridge per
// connection. It is the only component that touches the raw TCP socket.
type Listener struct {
	ServerName  string
	BackendAddr string
	Rates       ratelimit.Rates
	DialBreaker *gobreaker.CircuitBreaker

	active int64
}

// ActiveSessions implements adminhttp.SessionCounter.
func (l *Listener) ActiveSessions() int {
	return int(atomic.LoadInt64(&l.active))
}

// Serve accepts connections on addr until ctx is cancelled or the listener
// itself fails. Each accepted connection gets its own goroutine and its
// own rate limiter, matching spec §3's "no cross-session sharing."
func (l *Listener) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				logging.Warn(ctx, "accept failed", zap.Error(err))
				continue
			}
		}
		go l.handle(ctx, conn)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	sessionID := uuid.NewString()
	ctx = logging.WithSession(ctx, sessionID)

	atomic.AddInt64(&l.active, 1)
	defer atomic.AddInt64(&l.active, -1)

	limiter, err := ratelimit.New(l.Rates)
	if err != nil {
		logging.Error(ctx, "building session rate limiter failed", zap.Error(err))
		conn.Close()
		return
	}

	b := bridge.New(ircwire.New(conn), limiter, l.ServerName, sessionID)
	if err := b.Run(ctx, l.BackendAddr, l.DialBreaker); err != nil {
		logging.Info(ctx, "session ended", zap.Error(err))
	}
}
