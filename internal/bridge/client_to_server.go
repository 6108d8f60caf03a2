package bridge

import (
	"context"
	"strings"

	"github.com/Travis-Britz/irc"
	"github.com/ircbridge/gateway/internal/ircwire"
	"github.com/ircbridge/gateway/internal/lazypair"
	"github.com/ircbridge/gateway/internal/logging"
	"github.com/ircbridge/gateway/internal/metrics"
	"github.com/ircbridge/gateway/internal/ratelimit"
	"github.com/ircbridge/gateway/internal/roomview"
	"go.uber.org/zap"
)

// HandleClientMessage implements the IRC command -> backend action table.
// Unrecognized commands get ERR_UNKNOWNCOMMAND and a warning log; nothing
// a client sends ever terminates the session by itself.
func (b *Bridge) HandleClientMessage(ctx context.Context, m *irc.Message) error {
	metrics.FramesTranslated.WithLabelValues("client_to_server", string(m.Command)).Inc()

	switch string(m.Command) {
	case string(irc.CmdJoin):
		return b.handleJoin(ctx, m)
	case string(irc.CmdPart):
		return b.handlePart(ctx, m)
	case string(irc.CmdNick):
		if !b.allow(ctx, ratelimit.ClassNick) {
			return nil
		}
		return b.conn.Write(ircwire.FromServer(b.serverName, irc.RplErrNicknameInUse,
			b.info.Nick, "Backend forbids changing nickname after login"))
	case string(irc.CmdPing):
		return b.handlePing(m)
	case string(irc.CmdPrivmsg):
		return b.handlePrivmsg(ctx, m)
	case string(irc.CmdTopic):
		return b.handleTopic(ctx, m)
	case string(irc.CmdAway):
		return b.handleAway(ctx, m)
	default:
		logging.Warn(ctx, "unsupported IRC command", zap.String("command", string(m.Command)))
		return b.conn.Write(ircwire.FromServer(b.serverName, irc.RplErrUnknownCommand,
			b.info.Nick, string(m.Command), "Unknown command"))
	}
}

func (b *Bridge) handleJoin(ctx context.Context, m *irc.Message) error {
	if !b.allow(ctx, ratelimit.ClassJoin) {
		return nil
	}

	channels := strings.Split(m.Params.Get(1), ",")
	var keys []string
	if raw := m.Params.Get(2); raw != "" {
		keys = strings.Split(raw, ",")
	}

	for _, pair := range lazypair.Zip(channels, keys) {
		chanName := pair.A
		if !strings.HasPrefix(chanName, "#") {
			logging.Warn(ctx, "refusing JOIN for non-channel target", zap.String("target", chanName))
			continue
		}

		room, ok := b.session.ByName(chanName)
		if !ok {
			id, err := b.back.LookupRoomID(ctx, strings.TrimPrefix(chanName, "#"))
			if err != nil || id == "" {
				logging.Warn(ctx, "JOIN: room not found", zap.String("channel", chanName), zap.Error(err))
				continue
			}
			room = &roomview.Room{ID: id, Name: strings.TrimPrefix(chanName, "#"), Type: roomview.TypeChat}
			b.session.Add(room)
		}

		var key *string
		if pair.HasB && pair.B != "" {
			key = &pair.B
		}
		if err := b.back.JoinRoom(ctx, room.ID, key); err != nil {
			logging.Warn(ctx, "JOIN: backend rejected", zap.String("channel", chanName), zap.Error(err))
			continue
		}

		if err := b.conn.Write(ircwire.FromNick(b.info.Nick, b.info.User, b.info.Host, string(irc.CmdJoin), room.ChannelName())); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) handlePart(ctx context.Context, m *irc.Message) error {
	channels := strings.Split(m.Params.Get(1), ",")
	for _, chanName := range channels {
		if !strings.HasPrefix(chanName, "#") {
			continue
		}
		room, ok := b.session.ByName(chanName)
		if !ok {
			continue
		}
		if err := b.back.LeaveRoom(ctx, room.ID); err != nil {
			logging.Warn(ctx, "PART: backend rejected", zap.String("channel", chanName), zap.Error(err))
			continue
		}
		b.session.Remove(room.ID)
		if err := b.conn.Write(ircwire.FromNick(b.info.Nick, b.info.User, b.info.Host, string(irc.CmdPart), room.ChannelName())); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) handlePing(m *irc.Message) error {
	args := make([]string, 0, 2)
	if a := m.Params.Get(1); a != "" {
		args = append(args, a)
	}
	if bArg := m.Params.Get(2); bArg != "" {
		args = append(args, bArg)
	}
	return b.conn.Write(ircwire.FromServer(b.serverName, string(irc.CmdPong), args...))
}

func (b *Bridge) handlePrivmsg(ctx context.Context, m *irc.Message) error {
	if !b.allow(ctx, ratelimit.ClassPrivmsg) {
		return b.conn.Write(ircwire.FromServer(b.serverName, string(irc.CmdNotice),
			b.info.Nick, "You are sending messages too quickly; slow down"))
	}

	target := m.Params.Get(1)
	text := m.Params.Get(2)

	var roomID string
	if strings.HasPrefix(target, "#") {
		room, ok := b.session.ByName(target)
		if !ok {
			logging.Warn(ctx, "PRIVMSG: unknown channel", zap.String("target", target))
			return nil
		}
		roomID = room.ID
	} else {
		room, ok := b.directMessageRoom(ctx, target)
		if !ok {
			logging.Warn(ctx, "PRIVMSG: could not resolve direct message target", zap.String("target", target))
			return nil
		}
		roomID = room.ID
	}

	id := b.cache.Emit()
	if err := b.back.SendMessage(ctx, id, roomID, text); err != nil {
		logging.Warn(ctx, "PRIVMSG: backend rejected", zap.String("target", target), zap.Error(err))
	}
	return nil
}

// directMessageRoom resolves a bare nick to a direct-message room,
// creating one on the backend the first time a given nick is messaged.
func (b *Bridge) directMessageRoom(ctx context.Context, nick string) (*roomview.Room, bool) {
	if room, ok := b.session.ByName(nick); ok {
		return room, true
	}
	id, err := b.back.LookupRoomID(ctx, nick)
	if err != nil || id == "" {
		return nil, false
	}
	room := &roomview.Room{ID: id, Name: nick, Type: roomview.TypeDirect}
	b.session.Add(room)
	return room, true
}

func (b *Bridge) handleTopic(ctx context.Context, m *irc.Message) error {
	chanName := m.Params.Get(1)
	topic := m.Params.Get(2)

	room, ok := b.session.ByName(chanName)
	if !ok {
		logging.Warn(ctx, "TOPIC: unknown channel", zap.String("channel", chanName))
		return nil
	}
	if err := b.back.SetTopic(ctx, room.ID, topic); err != nil {
		logging.Warn(ctx, "TOPIC: backend rejected", zap.String("channel", chanName), zap.Error(err))
		return nil
	}
	room.Topic = topic
	room.HasTopic = true
	return b.conn.Write(ircwire.FromNick(b.info.Nick, b.info.User, b.info.Host, string(irc.CmdTopic), chanName, topic))
}

func (b *Bridge) handleAway(ctx context.Context, m *irc.Message) error {
	away := m.Params.Get(1) != ""
	if err := b.back.SetAway(ctx, away); err != nil {
		logging.Warn(ctx, "AWAY: backend rejected", zap.Error(err))
	}
	return nil
}

func (b *Bridge) allow(ctx context.Context, class ratelimit.Class) bool {
	if b.limiter == nil {
		return true
	}
	if b.limiter.Allow(ctx, b.sessionID, class) {
		return true
	}
	logging.Warn(ctx, "rate limit exceeded", zap.String("class", string(class)))
	return false
}
