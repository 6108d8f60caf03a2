package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/Travis-Britz/irc"
	"github.com/ircbridge/gateway/internal/ircwire"
)

// ErrHandshakeClosed is returned when the connection closes before NICK,
// USER, and PASS have all been observed.
var ErrHandshakeClosed = errors.New("bridge: connection closed during handshake")

// Handshake collects NICK/USER/PASS in any order, emitting ERR_PASSWDMISMATCH
// hints while nick and user are known but pass is not. It never sends a
// welcome banner: that happens only after upstream login succeeds.
func Handshake(ctx context.Context, conn *ircwire.Conn, peerHost, serverName string) (*ClientInfo, error) {
	messages, errc := conn.ReadLoop(ctx)

	var nick, user, pass string

	for {
		select {
		case m, ok := <-messages:
			if !ok {
				if err := <-errc; err != nil {
					return nil, fmt.Errorf("%w: %v", ErrHandshakeClosed, err)
				}
				return nil, ErrHandshakeClosed
			}

			switch string(m.Command) {
			case string(irc.CmdNick):
				nick = m.Params.Get(1)
			case string(irc.CmdUser):
				user = m.Params.Get(1)
			case string(irc.CmdPass):
				pass = m.Params.Get(1)
			default:
				// Non-registration commands are silently ignored.
			}

			if nick != "" && user != "" && pass == "" {
				if err := conn.Write(ircwire.FromServer(serverName, irc.RplErrPasswdMismatch,
					nick, "Please send your rocket authentication token")); err != nil {
					return nil, err
				}
				continue
			}

			if nick != "" && user != "" && pass != "" {
				return &ClientInfo{Nick: nick, User: user, Pass: pass, Host: peerHost}, nil
			}

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
