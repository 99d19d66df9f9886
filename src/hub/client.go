package hub

import (
	"sync"
	"time"

	"github.com/dinehub/realtime/src/types"
)

// State tracks a connection through its lifecycle. Every active connection
// passes through StateClosing before StateClosed, so teardown can never
// skip group deregistration.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Client wraps one WebSocket connection and manages its message flow.
// All outbound writes are funneled through the Send channel and drained by
// a single WritePump goroutine, so the transport never sees interleaved
// concurrent writes.
type Client struct {
	ID      string
	Subject string

	conn        types.Conn
	hub         *Hub
	Send        chan types.Envelope
	connectedAt time.Time

	mu     sync.RWMutex
	groups map[string]bool
	state  State
	closed bool
	done   chan struct{}
}

// NewClient creates a client wrapper in the Connecting state.
func NewClient(id, subject string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		Subject:     subject,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Envelope, 256),
		connectedAt: time.Now(),
		groups:      make(map[string]bool),
		state:       StateConnecting,
		done:        make(chan struct{}),
	}
}

// State returns the connection's lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// MarkAuthenticated records a successful handshake validation.
func (c *Client) MarkAuthenticated() {
	c.setState(StateAuthenticated)
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	return types.ClientInfo{
		ID:          c.ID,
		Subject:     c.Subject,
		ConnectedAt: c.connectedAt,
		Groups:      groups,
	}
}

func (c *Client) addGroup(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[group] = true
}

func (c *Client) groupNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	return groups
}

// ReadPump reads client frames until the connection fails or closes.
// The stream is server-push; the only inbound frame acted on is "ping",
// answered with "pong" on the same connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Deregister(c)
		c.conn.Close()
	}()

	for {
		var in types.Inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			return
		}
		if in.Type == "ping" {
			select {
			case c.Send <- types.Envelope{Type: "pong"}:
			default:
			}
		}
	}
}

// WritePump is the connection's single writer. It drains the send channel
// until the client closes or a write fails; a write failure tears down
// only this connection.
func (c *Client) WritePump() {
	defer func() {
		c.conn.Close()
		c.hub.Deregister(c)
	}()

	for {
		select {
		case env := <-c.Send:
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps. Idempotent. The Send
// channel is never closed: ReadPump may still be draining inbound frames
// and enqueueing pongs while teardown runs, so shutdown is signaled
// through done only and stale sends land in an abandoned buffer.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.state = StateClosed
		close(c.done)
	}
}
