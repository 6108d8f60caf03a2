package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Travis-Britz/irc"
	"github.com/ircbridge/gateway/internal/backend"
	"github.com/ircbridge/gateway/internal/ircwire"
	"github.com/ircbridge/gateway/internal/logging"
	"github.com/ircbridge/gateway/internal/metrics"
	"github.com/ircbridge/gateway/internal/roomview"
	"go.uber.org/zap"
)

// shortUser is the sender shape a RoomEvent carries.
type shortUser struct {
	Username string `json:"username"`
}

// attachment is one backend message attachment.
type attachment struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

// roomEvent is the payload of a backend Changed frame the bridge cares
// about: a RoomEventData fused with its RoomExtraInfo.
type roomEvent struct {
	Type        string       `json:"t"`
	Msg         string       `json:"msg"`
	User        shortUser    `json:"u"`
	RoomID      string       `json:"rid"`
	Timestamp   int64        `json:"ts"`
	MessageID   string       `json:"_id"`
	Attachments []attachment `json:"attachments"`
	RoomName    string       `json:"room_name"`
	RoomType    string       `json:"room_type"`
}

// HandleBackendEvent translates one inbound backend event into zero or
// more outbound IRC messages. Only Changed events carrying a decodable
// RoomEvent are acted on; everything else is dropped, Updated silently.
func (b *Bridge) HandleBackendEvent(ctx context.Context, ev backend.Event) error {
	if ev.Kind == backend.EventUpdated {
		return nil
	}
	if ev.Kind != backend.EventChanged {
		logging.Warn(ctx, "ignoring backend event", zap.String("kind", string(ev.Kind)), zap.String("collection", ev.Collection))
		return nil
	}

	var re roomEvent
	if err := json.Unmarshal(ev.Fields, &re); err != nil {
		logging.Warn(ctx, "unparseable backend event dropped", zap.Error(err))
		return nil
	}

	metrics.FramesTranslated.WithLabelValues("server_to_client", re.Type).Inc()

	switch {
	case re.Type == "room_changed_topic" && isChatOrPrivate(re.RoomType):
		return b.emitTopicChange(re)
	case re.Type == "ul" && isChatOrPrivate(re.RoomType):
		return b.emitUserLeft(re)
	default:
		return b.emitMessageLike(ctx, re)
	}
}

func isChatOrPrivate(roomType string) bool {
	t := roomview.Type(roomType)
	return t == roomview.TypeChat || t == roomview.TypePrivate
}

func (b *Bridge) emitTopicChange(re roomEvent) error {
	return b.conn.Write(ircwire.FromNick(re.User.Username, re.User.Username, b.back.Addr(),
		string(irc.CmdTopic), "#"+re.RoomName, re.Msg))
}

func (b *Bridge) emitUserLeft(re roomEvent) error {
	return b.conn.Write(ircwire.FromNick(re.User.Username, re.User.Username, b.back.Addr(),
		string(irc.CmdPart), "#"+re.RoomName))
}

func (b *Bridge) emitMessageLike(ctx context.Context, re roomEvent) error {
	target, ok := b.resolveTarget(re)
	if !ok {
		logging.Warn(ctx, "could not resolve target for message-like event",
			zap.String("room_type", re.RoomType), zap.String("room_id", re.RoomID))
		return nil
	}

	if !b.isFresh(re) {
		logging.Warn(ctx, "dropping stale event as edit/reaction", zap.String("room_id", re.RoomID), zap.Int64("ts", re.Timestamp))
		return nil
	}
	b.markSeen(re)

	if re.MessageID != "" && b.cache.Contains(re.MessageID) {
		metrics.EchoSuppressed.Inc()
		return nil
	}

	if strings.TrimSpace(re.Msg) != "" {
		if err := b.conn.Write(ircwire.FromNick(re.User.Username, re.User.Username, b.back.Addr(),
			string(irc.CmdPrivmsg), target, re.Msg)); err != nil {
			return err
		}
	}

	for _, a := range re.Attachments {
		desc := describeAttachment(a)
		ctcp := "\x01ACTION " + desc + "\x01"
		if err := b.conn.Write(ircwire.FromNick(re.User.Username, re.User.Username, b.back.Addr(),
			string(irc.CmdPrivmsg), target, ctcp)); err != nil {
			return err
		}
	}

	return nil
}

func describeAttachment(a attachment) string {
	switch {
	case a.Title != "" && a.ImageURL != "":
		return "[" + a.Title + "](" + a.ImageURL + ")"
	case a.Title != "":
		return "[" + a.Title + "]"
	case a.ImageURL != "":
		return a.ImageURL
	default:
		return "<UNKNOWN ATTACHMENT>"
	}
}

// resolveTarget maps (room_type, room_name) to an IRC PRIVMSG target per
// spec §4.6: named 'c'/'p' rooms target their channel name, and 'd' rooms
// without a room name target the local client's own nick. A 'd' event that
// carries a room name, an unnamed 'c'/'p' event, and any other room type
// resolve to no target.
func (b *Bridge) resolveTarget(re roomEvent) (string, bool) {
	switch roomview.Type(re.RoomType) {
	case roomview.TypeChat, roomview.TypePrivate:
		if re.RoomName == "" {
			return "", false
		}
		return "#" + re.RoomName, true
	case roomview.TypeDirect:
		if re.RoomName != "" {
			return "", false
		}
		return b.info.Nick, true
	default:
		return "", false
	}
}

// isFresh reports whether re belongs to a room in the session and its
// timestamp is newer than that room's last-seen timestamp. An event for a
// room not in the session is never fresh.
func (b *Bridge) isFresh(re roomEvent) bool {
	room, ok := b.session.ByID(re.RoomID)
	if !ok {
		return false
	}
	ts := time.UnixMilli(re.Timestamp)
	return ts.After(room.LastSeen)
}

// markSeen advances the known room's last-seen timestamp to re's, so a
// later edit/reaction carrying the same or older timestamp is dropped.
func (b *Bridge) markSeen(re roomEvent) {
	room, ok := b.session.ByID(re.RoomID)
	if !ok || re.Timestamp == 0 {
		return
	}
	ts := time.UnixMilli(re.Timestamp)
	if ts.After(room.LastSeen) {
		room.LastSeen = ts
	}
}
