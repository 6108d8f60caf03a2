package bridge

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ircbridge/gateway/internal/ircwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_RenamesToCanonicalUsernameAndWelcomes(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := ircwire.New(server)
	back, srvConn := newConnectedBackend(t)
	info := &ClientInfo{Nick: "alice", User: "a", Pass: "tok", Host: "client.example"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	doneCh := make(chan error, 1)
	go func() {
		_, err := Login(ctx, conn, back, info, "ircbridge")
		doneCh <- err
	}()

	loginID := expectMethod(t, srvConn, "login")
	respondResult(t, srvConn, loginID, `{"id":"U1"}`)

	// An unrelated event the username scan must skip past, then the match.
	writeRaw(t, srvConn, rawFrame{Msg: "added", Collection: "rooms", ID: "room-x", Fields: json.RawMessage(`{}`)})
	writeRaw(t, srvConn, rawFrame{Msg: "added", Collection: "users", ID: "U1", Fields: json.RawMessage(`{"username":"alice_canon"}`)})

	welcomeLine := readLine(t, client)
	assert.Contains(t, welcomeLine, " 001 ")

	yourHostLine := readLine(t, client)
	assert.Contains(t, yourHostLine, " 002 ")

	nickLine := readLine(t, client)
	assert.Contains(t, nickLine, "NICK alice_canon")

	require.NoError(t, <-doneCh)
	assert.Equal(t, "alice_canon", info.Nick)
}

func TestLogin_ExpiredTokenStillLogsInSuccessfully(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := ircwire.New(server)
	back, srvConn := newConnectedBackend(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "exp": time.Now().Add(-time.Hour).Unix(),
	})
	tok, err := expired.SignedString([]byte("irrelevant-since-we-never-verify"))
	require.NoError(t, err)

	info := &ClientInfo{Nick: "alice", User: "a", Pass: tok, Host: "client.example"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	doneCh := make(chan error, 1)
	go func() {
		_, err := Login(ctx, conn, back, info, "ircbridge")
		doneCh <- err
	}()

	loginID := expectMethod(t, srvConn, "login")
	respondResult(t, srvConn, loginID, `{"id":"U1"}`)
	writeRaw(t, srvConn, rawFrame{Msg: "added", Collection: "users", ID: "U1", Fields: json.RawMessage(`{"username":"alice"}`)})

	welcomeLine := readLine(t, client)
	assert.Contains(t, welcomeLine, " 001 ")
	readLine(t, client) // 002

	require.NoError(t, <-doneCh, "an expired-looking token is still handed to the backend; only the backend's own verdict matters")
}

func TestLogin_RejectedEmitsPasswdMismatch(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := ircwire.New(server)
	back, srvConn := newConnectedBackend(t)
	info := &ClientInfo{Nick: "bob", User: "b", Pass: "bad", Host: "client.example"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := Login(ctx, conn, back, info, "ircbridge")
		errCh <- err
	}()

	loginID := expectMethod(t, srvConn, "login")
	// A result frame with no usable id is treated as a rejection by
	// backend.Client.Login, the same way a real credential rejection would
	// surface as a non-nil error.
	writeRaw(t, srvConn, rawFrame{Msg: "result", ID: loginID})

	line := readLine(t, client)
	assert.Contains(t, line, " 464 ")

	err := <-errCh
	require.Error(t, err)
	var rejected *ErrAuthRejected
	assert.ErrorAs(t, err, &rejected)
}
