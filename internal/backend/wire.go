// Package backend implements the DDP-like RPC client the bridge uses to
// talk to the backend: connect, login, a streaming feed of room events,
// and the room-scoped operations (join, leave, send, topic, away, user
// listing) the translators call into.
//
// Grounded on the capability set spec §6 enumerates and on
// original_source/src/proxy.rs's usage of it (Rasta::connect, back.login,
// Session::from, back.handle(), back.stream()), reimplemented here in Go
// over github.com/gorilla/websocket rather than vendored as an external
// crate, since no ready-made Go client for this wire protocol exists in
// the example pack.
package backend

import "encoding/json"

// frame is the envelope every DDP-like message shares.
type frame struct {
	Msg        string          `json:"msg"`
	Session    string          `json:"session,omitempty"`
	Version    string          `json:"version,omitempty"`
	Support    []string        `json:"support,omitempty"`
	ID         string          `json:"id,omitempty"`
	Method     string          `json:"method,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Name       string          `json:"name,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Reason != "":
		return e.Reason
	default:
		return e.Code
	}
}

// EventKind distinguishes the tagged union frame.Msg values the bridge
// cares about. Other values (ready, nosub, connected, pong) are handled
// internally by Client and never surface as an Event.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventChanged EventKind = "changed"
	EventUpdated EventKind = "updated"
)

// Event is a parsed inbound frame of interest to the bridge loop.
type Event struct {
	Kind       EventKind
	Collection string
	ID         string
	Fields     json.RawMessage
}
