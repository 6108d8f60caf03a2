package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/Travis-Britz/irc"
	"github.com/ircbridge/gateway/internal/backend"
	"github.com/ircbridge/gateway/internal/ircwire"
	"github.com/ircbridge/gateway/internal/logging"
	"github.com/ircbridge/gateway/internal/roomview"
	"go.uber.org/zap"
)

// namReplyBudget is the maximum payload length, in bytes, of a single
// RPL_NAMREPLY before the bridge starts a new one.
const namReplyBudget = 512

// ProjectInitialSession fetches every room the user is currently in and,
// for each joinable one, emits a self-prefixed JOIN, an optional
// RPL_TOPIC, and a batched RPL_NAMREPLY/RPL_ENDOFNAMES pair. It finishes
// by arming the backend's "my messages" stream.
func ProjectInitialSession(ctx context.Context, conn *ircwire.Conn, back *backend.Client, info *ClientInfo, serverName string) (*roomview.Session, error) {
	session, err := back.FetchSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: fetching initial session: %w", err)
	}

	for _, room := range session.Rooms() {
		if !room.IsJoinable() {
			continue
		}

		if err := conn.Write(ircwire.FromNick(info.Nick, info.User, info.Host, string(irc.CmdJoin), room.ChannelName())); err != nil {
			return session, err
		}

		if room.HasTopic {
			if err := conn.Write(ircwire.FromServer(serverName, irc.RplTopic, info.Nick, room.ChannelName(), room.Topic)); err != nil {
				return session, err
			}
		}

		users, err := back.GetRoomUsers(ctx, room.ID)
		if err != nil {
			logging.Warn(ctx, "fetching room users failed during projection", zap.String("room", room.ID), zap.Error(err))
			continue
		}
		if err := emitNames(conn, serverName, info.Nick, room, users); err != nil {
			return session, err
		}
	}

	if err := back.SubscribeMyMessages(ctx); err != nil {
		return session, fmt.Errorf("bridge: subscribing to my messages: %w", err)
	}

	return session, nil
}

// emitNames writes one or more RPL_NAMREPLY lines, each no larger than
// namReplyBudget bytes of user-list payload, followed by exactly one
// RPL_ENDOFNAMES.
func emitNames(conn *ircwire.Conn, serverName, nick string, room *roomview.Room, users []roomview.ShortUser) error {
	var batch []string
	size := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		list := strings.Join(batch, " ")
		if err := conn.Write(ircwire.FromServer(serverName, irc.RplNamReply, nick, room.NameModeChar(), room.ChannelName(), list)); err != nil {
			return err
		}
		batch = batch[:0]
		size = 0
		return nil
	}

	for _, u := range users {
		name := u.Username
		added := len(name)
		if len(batch) > 0 {
			added++ // separating space
		}
		if size+added > namReplyBudget && len(batch) > 0 {
			if err := flush(); err != nil {
				return err
			}
		}
		batch = append(batch, name)
		size += added
	}
	if err := flush(); err != nil {
		return err
	}

	return conn.Write(ircwire.FromServer(serverName, irc.RplEndOfNames, nick, room.ChannelName(), "End of /NAMES list"))
}
