// Package bridge implements the per-session state machine that owns one
// IRC connection and its paired backend session: the handshake driver,
// upstream login and identity reconciliation, initial session projection,
// and the central client/backend select loop with its two translators.
//
// Grounded on original_source/src/proxy.rs's handle_client and login
// functions, reshaped from a single async function into a small set of
// cooperating Go methods the way the teacher splits readPump/writePump/
// Router across methods on internal/v1/transport.Client and
// internal/v1/session.Room.
package bridge

// ClientInfo is the per-connection identity captured during handshake.
// Nick is mutated exactly once, when the backend reveals the canonical
// username; User, Pass, and Host are immutable for the session's lifetime.
type ClientInfo struct {
	Nick string
	User string
	Pass string
	Host string
}
