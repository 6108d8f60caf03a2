// Package ircwire frames a raw net.Conn as a stream of IRC messages.
//
// It wraps github.com/Travis-Britz/irc's Message type, which already knows
// how to marshal/unmarshal a single line, with the line-splitting and
// goroutine plumbing a live socket needs. The read side is grounded on that
// package's own Client.startReading: a bufio.Scanner running in its own
// goroutine, feeding a channel that a caller drains with a select.
package ircwire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"

	"github.com/Travis-Britz/irc"
)

// maxLineBytes guards against a client that never sends a newline.
const maxLineBytes = 8192

// Conn frames an IRC connection over an arbitrary net.Conn.
type Conn struct {
	conn net.Conn
}

// New wraps conn for line-oriented IRC framing.
func New(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// RemoteHost returns the peer's address without a port, suitable for use as
// the host portion of a nickname prefix.
func (c *Conn) RemoteHost() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// ReadLoop starts a goroutine that scans CRLF-delimited IRC lines from the
// connection, parses each into a *irc.Message, and sends it on the returned
// channel. The channel is closed when the connection is closed or ctx is
// done; the error channel (once the message channel is closed) reports the terminal error,
// which is io.EOF for a clean disconnect.
func (c *Conn) ReadLoop(ctx context.Context) (<-chan *irc.Message, <-chan error) {
	messages := make(chan *irc.Message)
	errc := make(chan error, 1)

	go func() {
		defer close(messages)

		scanner := bufio.NewScanner(c.conn)
		scanner.Buffer(make([]byte, 0, maxLineBytes), maxLineBytes)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			m := new(irc.Message)
			m.IncludePrefix()
			if err := m.UnmarshalText(line); err != nil {
				// A malformed line is not fatal; skip it and keep reading.
				continue
			}
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case messages <- m:
			}
		}
		if err := scanner.Err(); err != nil {
			errc <- err
			return
		}
		errc <- io.EOF
	}()

	return messages, errc
}

// Write marshals m and writes it to the connection, appending a trailing
// CRLF if the marshaler didn't already include one.
func (c *Conn) Write(m *irc.Message) error {
	b, err := m.MarshalText()
	if err != nil {
		return fmt.Errorf("ircwire: marshal message: %w", err)
	}
	if len(b) < 2 || string(b[len(b)-2:]) != "\r\n" {
		b = append(b, '\r', '\n')
	}
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("ircwire: write message: %w", err)
	}
	return nil
}

// FromServer builds a message prefixed by the given server name rather than
// a client nickname, used for numerics and server-originated notices.
func FromServer(serverName, command string, params ...string) *irc.Message {
	m := irc.NewMessage(irc.Command(command), params...)
	m.Source = irc.Prefix{Host: serverName}
	m.IncludePrefix()
	return m
}

// FromNick builds a message prefixed by a user's nick!user@host, used for
// everything the bridge emits on behalf of a backend user (JOIN, PART,
// PRIVMSG, TOPIC, self-prefixed NICK renames).
func FromNick(nick, user, host, command string, params ...string) *irc.Message {
	m := irc.NewMessage(irc.Command(command), params...)
	m.Source = irc.Prefix{Nick: irc.Nickname(nick), User: user, Host: host}
	m.IncludePrefix()
	return m
}
