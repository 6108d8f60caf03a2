package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ircbridge/gateway/internal/backend"
	"github.com/ircbridge/gateway/internal/roomview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changedEvent(t *testing.T, re roomEvent) backend.Event {
	t.Helper()
	data, err := json.Marshal(re)
	require.NoError(t, err)
	return backend.Event{Kind: backend.EventChanged, Collection: "stream-room-messages", Fields: data}
}

func TestHandleBackendEvent_TopicChange(t *testing.T) {
	b, client, _ := newTestBridge(t)
	ctx := context.Background()

	ev := changedEvent(t, roomEvent{
		Type: "room_changed_topic", RoomType: "c", RoomName: "general",
		Msg: "new topic", User: shortUser{Username: "carol"},
	})

	go func() { _ = b.HandleBackendEvent(ctx, ev) }()

	line := readLine(t, client)
	assert.Contains(t, line, "carol!carol@")
	assert.Contains(t, line, "TOPIC #general")
	assert.Contains(t, line, "new topic")
}

func TestHandleBackendEvent_UserLeft(t *testing.T) {
	b, client, _ := newTestBridge(t)
	ctx := context.Background()

	ev := changedEvent(t, roomEvent{
		Type: "ul", RoomType: "p", RoomName: "secret",
		User: shortUser{Username: "dave"},
	})

	go func() { _ = b.HandleBackendEvent(ctx, ev) }()

	line := readLine(t, client)
	assert.Contains(t, line, "dave!dave@")
	assert.Contains(t, line, "PART #secret")
}

func TestHandleBackendEvent_FreshMessageDelivered(t *testing.T) {
	b, client, _ := newTestBridge(t)
	ctx := context.Background()
	b.session.Add(&roomview.Room{ID: "room-1", Name: "general", Type: roomview.TypeChat})

	ev := changedEvent(t, roomEvent{
		Type: "msg", RoomType: "c", RoomName: "general", RoomID: "room-1",
		Msg: "hello", User: shortUser{Username: "bob"}, Timestamp: time.Now().UnixMilli(), MessageID: "m1",
	})

	go func() { _ = b.HandleBackendEvent(ctx, ev) }()

	line := readLine(t, client)
	assert.Contains(t, line, "bob!bob@")
	assert.Contains(t, line, "PRIVMSG #general :hello")
}

func TestHandleBackendEvent_EchoSuppressed(t *testing.T) {
	b, client, _ := newTestBridge(t)
	ctx := context.Background()
	b.session.Add(&roomview.Room{ID: "room-1", Name: "general", Type: roomview.TypeChat})

	id := b.cache.Emit()
	ev := changedEvent(t, roomEvent{
		Type: "msg", RoomType: "c", RoomName: "general", RoomID: "room-1",
		Msg: "hi", User: shortUser{Username: "bob"}, Timestamp: time.Now().UnixMilli(), MessageID: id,
	})

	done := make(chan error, 1)
	go func() { done <- b.HandleBackendEvent(ctx, ev) }()
	require.NoError(t, <-done)

	// Nothing should have been written; prove the pipe is empty by racing a
	// short read against a timeout rather than blocking forever.
	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	_, err := client.Read(buf)
	assert.Error(t, err, "expected a read timeout since echo should be suppressed")
}

func TestHandleBackendEvent_StaleEventDropped(t *testing.T) {
	b, client, _ := newTestBridge(t)
	ctx := context.Background()
	room := &roomview.Room{ID: "room-1", Name: "general", Type: roomview.TypeChat, LastSeen: time.Now()}
	b.session.Add(room)

	ev := changedEvent(t, roomEvent{
		Type: "msg", RoomType: "c", RoomName: "general", RoomID: "room-1",
		Msg: "old edit", User: shortUser{Username: "bob"}, Timestamp: room.LastSeen.Add(-time.Hour).UnixMilli(),
	})

	done := make(chan error, 1)
	go func() { done <- b.HandleBackendEvent(ctx, ev) }()
	require.NoError(t, <-done)

	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	_, err := client.Read(buf)
	assert.Error(t, err, "stale event must not produce a frame")
}

func TestHandleBackendEvent_AttachmentOnly(t *testing.T) {
	b, client, _ := newTestBridge(t)
	ctx := context.Background()
	b.session.Add(&roomview.Room{ID: "room-1", Name: "r", Type: roomview.TypeChat})

	ev := changedEvent(t, roomEvent{
		Type: "msg", RoomType: "c", RoomName: "r", RoomID: "room-1",
		Msg: "", User: shortUser{Username: "sender"}, Timestamp: time.Now().UnixMilli(),
		Attachments: []attachment{{Title: "pic", ImageURL: "http://x/y"}},
	})

	go func() { _ = b.HandleBackendEvent(ctx, ev) }()

	line := readLine(t, client)
	assert.Contains(t, line, "PRIVMSG #r :\x01ACTION [pic](http://x/y)\x01")
}

func TestHandleBackendEvent_DirectMessageWithRoomNameIsDropped(t *testing.T) {
	b, client, _ := newTestBridge(t)
	ctx := context.Background()

	ev := changedEvent(t, roomEvent{
		Type: "msg", RoomType: "d", RoomID: "dm-1", RoomName: "frank",
		Msg: "hey", User: shortUser{Username: "frank"}, Timestamp: time.Now().UnixMilli(),
	})

	done := make(chan error, 1)
	go func() { done <- b.HandleBackendEvent(ctx, ev) }()
	require.NoError(t, <-done)

	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	_, err := client.Read(buf)
	assert.Error(t, err, "a direct-message event carrying a room name must be dropped, not delivered")
}

func TestHandleBackendEvent_DirectMessageTargetsLocalNick(t *testing.T) {
	b, client, _ := newTestBridge(t)
	ctx := context.Background()
	b.session.Add(&roomview.Room{ID: "dm-1", Type: roomview.TypeDirect})

	ev := changedEvent(t, roomEvent{
		Type: "msg", RoomType: "d", RoomID: "dm-1",
		Msg: "hey", User: shortUser{Username: "frank"}, Timestamp: time.Now().UnixMilli(),
	})

	go func() { _ = b.HandleBackendEvent(ctx, ev) }()

	line := readLine(t, client)
	assert.Contains(t, line, "PRIVMSG alice :hey")
}
