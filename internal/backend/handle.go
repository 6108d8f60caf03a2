package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ircbridge/gateway/internal/metrics"
	"github.com/ircbridge/gateway/internal/roomview"
)

// LoginResult is what a successful login call reveals.
type LoginResult struct {
	UserID string
}

// Login exchanges a bearer token for a backend session. A rejected token
// surfaces as a non-nil error; callers translate that into
// ERR_PASSWDMISMATCH per spec §4.2.
func (c *Client) Login(ctx context.Context, token string) (*LoginResult, error) {
	start := time.Now()
	result, err := c.call(ctx, "login", []any{map[string]any{"resume": token}})
	metrics.BackendRPCDuration.WithLabelValues("login").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("backend: login: %w", err)
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("backend: decoding login result: %w", err)
	}
	if decoded.ID == "" {
		return nil, fmt.Errorf("backend: login accepted but no user id returned")
	}
	return &LoginResult{UserID: decoded.ID}, nil
}

// LookupRoomID resolves a channel name to a backend room id.
func (c *Client) LookupRoomID(ctx context.Context, name string) (string, error) {
	start := time.Now()
	result, err := c.call(ctx, "getRoomIdByNameOrId", []any{name})
	metrics.BackendRPCDuration.WithLabelValues("lookup_room_id").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(result, &id); err != nil {
		return "", fmt.Errorf("backend: decoding room id: %w", err)
	}
	return id, nil
}

// JoinRoom joins the backend room by id, optionally supplying an access
// key for private rooms.
func (c *Client) JoinRoom(ctx context.Context, roomID string, key *string) error {
	start := time.Now()
	params := []any{roomID}
	if key != nil {
		params = append(params, *key)
	}
	_, err := c.call(ctx, "joinRoom", params)
	metrics.BackendRPCDuration.WithLabelValues("join_room").Observe(time.Since(start).Seconds())
	return err
}

// LeaveRoom leaves the backend room by id.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	start := time.Now()
	_, err := c.call(ctx, "leaveRoom", []any{roomID})
	metrics.BackendRPCDuration.WithLabelValues("leave_room").Observe(time.Since(start).Seconds())
	return err
}

// SendMessage posts a message to a room using a client-chosen MessageID so
// the bridge can recognize its own echo later via the send cache.
func (c *Client) SendMessage(ctx context.Context, messageID, roomID, text string) error {
	start := time.Now()
	_, err := c.call(ctx, "sendMessage", []any{map[string]any{
		"_id": messageID,
		"rid": roomID,
		"msg": text,
	}})
	metrics.BackendRPCDuration.WithLabelValues("send_message").Observe(time.Since(start).Seconds())
	return err
}

// SetTopic updates a room's topic.
func (c *Client) SetTopic(ctx context.Context, roomID, topic string) error {
	start := time.Now()
	_, err := c.call(ctx, "saveRoomSettings", []any{roomID, "roomTopic", topic})
	metrics.BackendRPCDuration.WithLabelValues("set_topic").Observe(time.Since(start).Seconds())
	return err
}

// SetAway toggles the logged-in user's away status.
func (c *Client) SetAway(ctx context.Context, away bool) error {
	status := "online"
	if away {
		status = "away"
	}
	start := time.Now()
	_, err := c.call(ctx, "UserPresence:setDefaultStatus", []any{status})
	metrics.BackendRPCDuration.WithLabelValues("set_away").Observe(time.Since(start).Seconds())
	return err
}

// GetRoomUsers fetches the member list of a room, used to build the
// initial RPL_NAMREPLY batches.
func (c *Client) GetRoomUsers(ctx context.Context, roomID string) ([]roomview.ShortUser, error) {
	start := time.Now()
	result, err := c.call(ctx, "getUsersOfRoom", []any{roomID, true})
	metrics.BackendRPCDuration.WithLabelValues("get_room_users").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Records []struct {
			ID       string `json:"_id"`
			Username string `json:"username"`
		} `json:"records"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("backend: decoding room users: %w", err)
	}

	users := make([]roomview.ShortUser, 0, len(decoded.Records))
	for _, r := range decoded.Records {
		users = append(users, roomview.ShortUser{ID: r.ID, Username: r.Username})
	}
	return users, nil
}

// SubscribeMyMessages arms the inbound event stream for the logged-in
// user's rooms. Must be called once, after initial session projection.
func (c *Client) SubscribeMyMessages(ctx context.Context) error {
	_, err := c.SubscribeNamed("stream-room-messages", "__my_messages__", false)
	return err
}

// FetchSession performs the bulk room listing RPC and projects it into a
// roomview.Session.
func (c *Client) FetchSession(ctx context.Context) (*roomview.Session, error) {
	start := time.Now()
	result, err := c.call(ctx, "rooms/get", []any{})
	metrics.BackendRPCDuration.WithLabelValues("rooms_get").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("backend: fetching rooms: %w", err)
	}

	var decoded []struct {
		ID     string `json:"_id"`
		Name   string `json:"name"`
		Topic  string `json:"topic"`
		Type   string `json:"t"`
		UserAt string `json:"_updatedAt"`
	}
	// Rocket.Chat wraps the bulk result as {"update":[...],"remove":[...]}
	// on incremental fetches and a bare array on a fresh login; try the
	// wrapped shape first and fall back to a bare array.
	var wrapped struct {
		Update []json.RawMessage `json:"update"`
	}
	if err := json.Unmarshal(result, &wrapped); err == nil && len(wrapped.Update) > 0 {
		raws := wrapped.Update
		rooms := make([]roomview.RawRoom, 0, len(raws))
		for _, raw := range raws {
			var d struct {
				ID    string `json:"_id"`
				Name  string `json:"name"`
				Topic string `json:"topic"`
				Type  string `json:"t"`
			}
			if err := json.Unmarshal(raw, &d); err != nil {
				continue
			}
			rooms = append(rooms, roomview.RawRoom{
				ID: d.ID, Name: d.Name, Topic: d.Topic, HasTopic: d.Topic != "", TypeTag: d.Type,
				LastSeen: time.Now(),
			})
		}
		return roomview.BuildFromRaw(rooms), nil
	}

	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("backend: decoding room list: %w", err)
	}
	rooms := make([]roomview.RawRoom, 0, len(decoded))
	for _, d := range decoded {
		rooms = append(rooms, roomview.RawRoom{
			ID: d.ID, Name: d.Name, Topic: d.Topic, HasTopic: d.Topic != "", TypeTag: d.Type,
			LastSeen: time.Now(),
		})
	}
	return roomview.BuildFromRaw(rooms), nil
}
