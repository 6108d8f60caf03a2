package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Travis-Britz/irc"
	"github.com/ircbridge/gateway/internal/backend"
	"github.com/ircbridge/gateway/internal/ircwire"
	"github.com/ircbridge/gateway/internal/logging"
	"github.com/ircbridge/gateway/internal/tokeninfo"
	"go.uber.org/zap"
)

// ErrAuthRejected wraps a backend login failure so callers can distinguish
// it from other upstream errors.
type ErrAuthRejected struct{ Cause error }

func (e *ErrAuthRejected) Error() string { return fmt.Sprintf("bridge: auth rejected: %v", e.Cause) }
func (e *ErrAuthRejected) Unwrap() error { return e.Cause }

// Login authenticates info.Pass against the backend, discovers the
// canonical username by watching the first "users" Added frame matching
// the returned user id, sends the welcome banner, and then renames
// info.Nick in place if the canonical username differs from what the
// client supplied.
//
// pending holds every backend event (of any kind) observed while scanning
// for the canonical username other than the matching frame; the caller
// must requeue them (via Bridge.prependEvents) so the main loop still
// sees them. FetchSession does not receive them.
func Login(ctx context.Context, conn *ircwire.Conn, back *backend.Client, info *ClientInfo, serverName string) ([]backend.Event, error) {
	warnIfTokenLooksExpired(ctx, info.Pass)

	result, err := back.Login(ctx, info.Pass)
	if err != nil {
		_ = conn.Write(ircwire.FromServer(serverName, irc.RplErrPasswdMismatch,
			info.Nick, "Authentication rejected by backend"))
		return nil, &ErrAuthRejected{Cause: err}
	}

	canonical, pending, err := discoverUsername(ctx, back, result.UserID)
	if err != nil {
		return pending, err
	}

	if err := conn.Write(ircwire.FromServer(serverName, irc.RplWelcome, info.Nick,
		"Welcome to the IRC gateway for Rocket.Chat")); err != nil {
		return pending, err
	}
	if err := conn.Write(ircwire.FromServer(serverName, irc.RplYourHost, info.Nick,
		fmt.Sprintf("Your host is %s", serverName))); err != nil {
		return pending, err
	}

	oldNick := info.Nick
	if canonical != "" && canonical != oldNick {
		if err := conn.Write(ircwire.FromNick(oldNick, info.User, info.Host, string(irc.CmdNick), canonical)); err != nil {
			return pending, err
		}
		info.Nick = canonical
	}

	return pending, nil
}

// tokenExpiryWarnWindow is how far ahead of a token's exp claim the
// gateway starts logging a warning.
const tokenExpiryWarnWindow = 1 * time.Minute

// warnIfTokenLooksExpired peeks at the bearer token's claims, without
// verifying its signature, so an expired token produces a log line
// pointing at the likely cause instead of a bare backend rejection. The
// backend remains the only system that actually validates the token.
func warnIfTokenLooksExpired(ctx context.Context, token string) {
	info, err := tokeninfo.Peek(token)
	if err != nil {
		return
	}
	if info.NearExpiry(time.Now(), tokenExpiryWarnWindow) {
		logging.Warn(ctx, "rocket auth token near or past expiry",
			zap.String("subject", info.Subject), zap.Time("expires_at", info.ExpiresAt))
	}
}

// discoverUsername drains backend events until it finds an Added frame in
// the "users" collection whose id matches userID, returning its username
// field along with every event it skipped past (so the caller can replay
// them to whoever processes events next).
func discoverUsername(ctx context.Context, back *backend.Client, userID string) (string, []backend.Event, error) {
	var skipped []backend.Event

	for {
		select {
		case ev, ok := <-back.Events():
			if !ok {
				return "", skipped, fmt.Errorf("bridge: backend closed before revealing canonical username: %w", back.Err())
			}
			if ev.Kind == backend.EventAdded && ev.Collection == "users" && ev.ID == userID {
				var fields struct {
					Username string `json:"username"`
				}
				if err := json.Unmarshal(ev.Fields, &fields); err != nil {
					return "", skipped, fmt.Errorf("bridge: decoding canonical username: %w", err)
				}
				return fields.Username, skipped, nil
			}
			skipped = append(skipped, ev)
		case <-ctx.Done():
			return "", skipped, ctx.Err()
		}
	}
}
