package bridge

import (
	"context"
	"fmt"

	"github.com/ircbridge/gateway/internal/backend"
	"github.com/ircbridge/gateway/internal/ircwire"
	"github.com/ircbridge/gateway/internal/logging"
	"github.com/ircbridge/gateway/internal/metrics"
	"github.com/ircbridge/gateway/internal/ratelimit"
	"github.com/ircbridge/gateway/internal/roomview"
	"github.com/ircbridge/gateway/internal/sendcache"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Bridge owns one IRC connection and its paired backend session for the
// connection's entire lifetime. It is never shared across goroutines: the
// goroutine that calls Run is its only caller, by construction, which is
// what lets Session and SendCache go without locks per spec §4.4/§5.
type Bridge struct {
	conn       *ircwire.Conn
	back       *backend.Client
	info       *ClientInfo
	session    *roomview.Session
	cache      *sendcache.Cache
	limiter    *ratelimit.Limiter
	serverName string
	sessionID  string

	// prependEvents holds backend events observed during login's username
	// discovery scan other than the matching "users" frame; they must be
	// processed by the main loop exactly as if they had arrived after
	// projection, since FetchSession issues its own separate RPC call and
	// never sees them.
	prependEvents []backend.Event
}

// New constructs a Bridge around an already-framed client connection. The
// backend connection, identity, and initial session are filled in by Run.
func New(conn *ircwire.Conn, limiter *ratelimit.Limiter, serverName, sessionID string) *Bridge {
	return &Bridge{
		conn:       conn,
		cache:      sendcache.New(),
		limiter:    limiter,
		serverName: serverName,
		sessionID:  sessionID,
	}
}

// Run drives one session end to end: handshake, backend dial, login,
// initial session projection, and the central client/backend select loop.
// It returns only when the session is over, with the client connection and
// backend connection both guaranteed closed.
func (b *Bridge) Run(ctx context.Context, backendAddr string, dialBreaker *gobreaker.CircuitBreaker) error {
	defer b.conn.Close()

	metrics.IncSession()
	defer metrics.DecSession()

	peerHost := b.conn.RemoteHost()

	info, err := Handshake(ctx, b.conn, peerHost, b.serverName)
	if err != nil {
		logging.Warn(ctx, "handshake failed", zap.Error(err))
		return err
	}
	b.info = info
	ctx = logging.WithNick(ctx, info.Nick)

	back, err := b.dialBackend(ctx, backendAddr, dialBreaker)
	if err != nil {
		logging.Warn(ctx, "backend dial failed", zap.Error(err))
		return err
	}
	b.back = back
	defer b.back.Close()

	pending, err := Login(ctx, b.conn, b.back, b.info, b.serverName)
	if err != nil {
		logging.Warn(ctx, "login failed", zap.Error(err))
		return err
	}
	b.prependEvents = pending
	ctx = logging.WithNick(ctx, b.info.Nick)

	session, err := ProjectInitialSession(ctx, b.conn, b.back, b.info, b.serverName)
	if err != nil {
		logging.Warn(ctx, "initial session projection failed", zap.Error(err))
		return err
	}
	b.session = session

	return b.loop(ctx)
}

// dialBackend connects to the backend through the supplied circuit
// breaker, if any. A nil breaker dials unconditionally, matching
// single-instance deployments that never built one.
func (b *Bridge) dialBackend(ctx context.Context, addr string, breaker *gobreaker.CircuitBreaker) (*backend.Client, error) {
	if breaker == nil {
		return backend.Connect(ctx, addr)
	}

	result, err := breaker.Execute(func() (interface{}, error) {
		return backend.Connect(ctx, addr)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("bridge: backend dial circuit open: %w", err)
		}
		return nil, err
	}
	return result.(*backend.Client), nil
}

// loop is the single-goroutine cooperative select over the client's IRC
// frames and the backend's events. Exactly one frame is processed per
// iteration; EOF or error on either side is session-fatal.
func (b *Bridge) loop(ctx context.Context) error {
	for _, ev := range b.prependEvents {
		if err := b.HandleBackendEvent(ctx, ev); err != nil {
			return err
		}
	}
	b.prependEvents = nil

	messages, clientErrc := b.conn.ReadLoop(ctx)
	backendEvents := b.back.Events()

	for {
		select {
		case m, ok := <-messages:
			if !ok {
				err := <-clientErrc
				logging.Info(ctx, "client connection closed", zap.Error(err))
				return err
			}
			if err := b.HandleClientMessage(ctx, m); err != nil {
				logging.Warn(ctx, "client write failed, ending session", zap.Error(err))
				return err
			}

		case ev, ok := <-backendEvents:
			if !ok {
				err := b.back.Err()
				logging.Info(ctx, "backend connection closed", zap.Error(err))
				return err
			}
			if err := b.HandleBackendEvent(ctx, ev); err != nil {
				logging.Warn(ctx, "backend write failed, ending session", zap.Error(err))
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
