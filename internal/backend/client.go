package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a connected DDP-like session against the backend. One Client
// belongs to exactly one bridge session; it is not shared.
//
// Reads happen on a single background goroutine (readLoop), matching the
// teacher's readPump/writePump split in internal/v1/transport.Client;
// writes are serialized behind writeMu since gorilla/websocket forbids
// concurrent writers on one connection.
type Client struct {
	conn *websocket.Conn
	addr string

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan rpcReply

	events chan Event
	done   chan struct{}
	err    error
	errMu  sync.Mutex
}

type rpcReply struct {
	result json.RawMessage
	err    error
}

// Connect dials the backend's DDP websocket endpoint and performs the
// connect handshake. addr is a bare host:port; the "/websocket" path and
// ws:// scheme are the backend's fixed contract.
func Connect(ctx context.Context, addr string) (*Client, error) {
	url := fmt.Sprintf("ws://%s/websocket", addr)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: dial %s: %w", addr, err)
	}

	c := &Client{
		conn:    conn,
		addr:    addr,
		pending: make(map[string]chan rpcReply),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}

	connected := make(chan error, 1)
	go c.readLoop(connected)

	if err := c.writeFrame(frame{Msg: "connect", Version: "1", Support: []string{"1"}}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("backend: sending connect: %w", err)
	}

	select {
	case err := <-connected:
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}

	return c, nil
}

// Addr returns the backend address this client is connected to, used as
// the remote_host component of outbound IRC prefixes.
func (c *Client) Addr() string { return c.addr }

// Close terminates the underlying connection and stops the read loop.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Events returns the channel of inbound Added/Changed/Updated frames.
// Closed when the connection terminates.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Err returns the error that caused the event stream to close, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// call performs a DDP method call and waits for its result frame.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("backend: marshaling params for %s: %w", method, err)
	}

	replyCh := make(chan rpcReply, 1)
	c.pendingMu.Lock()
	c.pending[id] = replyCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeFrame(frame{Msg: "method", Method: method, Params: paramsJSON, ID: id}); err != nil {
		return nil, fmt.Errorf("backend: calling %s: %w", method, err)
	}

	select {
	case reply := <-replyCh:
		return reply.result, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.Err()
	}
}

// Subscribe arms a "stream-room-messages" DDP subscription with the given
// params; it does not wait for "ready" since the bridge only uses it for
// streams whose initial state it doesn't need.
func (c *Client) Subscribe(params ...any) (string, error) {
	return c.SubscribeNamed("stream-room-messages", params...)
}

// SubscribeNamed arms a DDP subscription under an explicit name.
func (c *Client) SubscribeNamed(name string, params ...any) (string, error) {
	id := uuid.NewString()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("backend: marshaling subscribe params: %w", err)
	}
	if err := c.writeFrame(frame{Msg: "sub", ID: id, Name: name, Params: paramsJSON}); err != nil {
		return "", fmt.Errorf("backend: subscribing to %s: %w", name, err)
	}
	return id, nil
}

func (c *Client) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(connected chan<- error) {
	defer close(c.events)
	defer close(c.done)

	awaitingConnect := true

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setErr(err)
			if awaitingConnect {
				connected <- err
			}
			c.failPending(err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		switch f.Msg {
		case "connected":
			if awaitingConnect {
				awaitingConnect = false
				connected <- nil
			}
		case "failed":
			err := fmt.Errorf("backend: connect handshake failed")
			if awaitingConnect {
				awaitingConnect = false
				connected <- err
			}
		case "ping":
			_ = c.writeFrame(frame{Msg: "pong"})
		case "result":
			c.resolve(f.ID, f.Result, errFromFrame(f.Error))
		case "added":
			c.deliver(Event{Kind: EventAdded, Collection: f.Collection, ID: f.ID, Fields: f.Fields})
		case "changed":
			c.deliver(Event{Kind: EventChanged, Collection: f.Collection, ID: f.ID, Fields: f.Fields})
		case "updated":
			c.deliver(Event{Kind: EventUpdated, Collection: f.Collection, ID: f.ID, Fields: f.Fields})
		default:
			// ready, nosub, added-before, etc: not needed by this gateway.
		}
	}
}

func errFromFrame(e *rpcError) error {
	if e == nil {
		return nil
	}
	return e
}

func (c *Client) resolve(id string, result json.RawMessage, err error) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	ch <- rpcReply{result: result, err: err}
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- rpcReply{err: err}
		delete(c.pending, id)
	}
}

func (c *Client) deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
