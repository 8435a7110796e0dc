package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sentinel-server-go/internal/platform/errors"
)

// Connection wraps a gorilla websocket connection with a write lock and
// idle tracking.
type Connection struct {
	id         string
	socket     *websocket.Conn
	mu         sync.Mutex
	closed     atomic.Bool
	lastActive atomic.Int64
}

// NewConnection creates a tracked websocket connection.
func NewConnection(id string, socket *websocket.Conn) *Connection {
	conn := &Connection{
		id:     id,
		socket: socket,
	}
	conn.touch()
	return conn
}

// WriteDirective sends one directive to the page agent.
func (c *Connection) WriteDirective(d Directive) error {
	data, err := d.Encode()
	if err != nil {
		return errors.Wrap(errors.KindTransport, "ws.write", "encode directive", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return errors.New(errors.KindTransport, "ws.write", "connection "+c.id+" already closed")
	}
	if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(errors.KindTransport, "ws.write", "write directive", err)
	}
	c.touch()
	return nil
}

// ReadFrame receives and decodes the next telemetry frame.
func (c *Connection) ReadFrame() (Frame, error) {
	_, payload, err := c.socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	c.touch()
	return DecodeFrame(payload)
}

// Close terminates the underlying websocket connection.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// ID returns the session identifier.
func (c *Connection) ID() string {
	return c.id
}

// IsClosed reports whether the connection has already been closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// LastActive exposes when the client last interacted with the server.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}
