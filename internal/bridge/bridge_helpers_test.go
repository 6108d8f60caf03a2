package bridge

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ircbridge/gateway/internal/backend"
	"github.com/ircbridge/gateway/internal/ircwire"
	"github.com/ircbridge/gateway/internal/roomview"
	"github.com/ircbridge/gateway/internal/sendcache"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// rawFrame is a loosely typed stand-in for backend's unexported frame type,
// sufficient to drive the wire protocol from outside the backend package.
type rawFrame struct {
	Msg        string          `json:"msg"`
	ID         string          `json:"id,omitempty"`
	Method     string          `json:"method,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Name       string          `json:"name,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// newConnectedBackend starts a fake backend websocket server, performs the
// connect handshake against it, and returns the live client plus the
// server-side connection for scripting RPC responses.
func newConnectedBackend(t *testing.T) (*backend.Client, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- conn
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	addr := strings.TrimPrefix(srv.URL, "http://")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	clientCh := make(chan *backend.Client, 1)
	go func() {
		c, err := backend.Connect(ctx, addr)
		require.NoError(t, err)
		clientCh <- c
	}()

	srvConn := <-connCh
	readRaw(t, srvConn) // connect
	writeRaw(t, srvConn, rawFrame{Msg: "connected"})

	c := <-clientCh
	t.Cleanup(func() { c.Close() })
	return c, srvConn
}

func readRaw(t *testing.T, conn *websocket.Conn) rawFrame {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f rawFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func writeRaw(t *testing.T, conn *websocket.Conn, f rawFrame) {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// expectMethod reads the next client->server frame and requires it to be a
// method call with the given name, returning its id for the response.
func expectMethod(t *testing.T, srvConn *websocket.Conn, method string) string {
	t.Helper()
	f := readRaw(t, srvConn)
	require.Equal(t, "method", f.Msg)
	require.Equal(t, method, f.Method)
	return f.ID
}

func respondResult(t *testing.T, srvConn *websocket.Conn, id string, result string) {
	t.Helper()
	writeRaw(t, srvConn, rawFrame{Msg: "result", ID: id, Result: json.RawMessage(result)})
}

// newTestBridge wires a Bridge around an in-memory client pipe and a live
// fake backend, ready for HandleClientMessage/HandleBackendEvent exercise.
func newTestBridge(t *testing.T) (*Bridge, net.Conn, *websocket.Conn) {
	t.Helper()

	server, client := net.Pipe()
	t.Cleanup(func() { server.Close() })

	back, srvConn := newConnectedBackend(t)

	b := &Bridge{
		conn:       ircwire.New(server),
		back:       back,
		info:       &ClientInfo{Nick: "alice", User: "a", Host: "client.example"},
		session:    roomview.New(),
		cache:      sendcache.New(),
		serverName: "ircbridge",
		sessionID:  "test-session",
	}
	return b, client, srvConn
}

func readLine(t *testing.T, client net.Conn) string {
	t.Helper()
	buf := make([]byte, 1024)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}
