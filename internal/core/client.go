package core

import "sync"

const defaultOutboxSize = 64

// Client is a chat participant as seen by the core layer: one live transport session.
type Client struct {
	ID     string
	User   string
	Events chan *Event

	mu     sync.Mutex
	room   RoomID
	done   chan struct{}
	closed bool
}

// NewClient constructs a client with an outbox of the given size.
func NewClient(id, user string, outboxSize int) *Client {
	if outboxSize <= 0 {
		outboxSize = defaultOutboxSize
	}
	return &Client{
		ID:     id,
		User:   user,
		Events: make(chan *Event, outboxSize),
		done:   make(chan struct{}),
	}
}

// Room returns the room the client currently belongs to, if any.
func (c *Client) Room() (RoomID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.room != ""
}

func (c *Client) setRoom(room RoomID) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

// SetUser binds the connection to a user id after the handshake.
func (c *Client) SetUser(user string) {
	c.mu.Lock()
	c.User = user
	c.mu.Unlock()
}

// UserID returns the user bound to the connection.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.User
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the transport session as gone. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Deliver enqueues an event without blocking.
// A full outbox means the consumer stopped keeping up; the client is closed
// and the event is dropped.
func (c *Client) Deliver(ev *Event) bool {
	if c.Closed() {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		c.Close()
		return false
	}
}
