package core

import "sync"

// Client is one live connection as seen by the core layer. A user may hold
// any number of clients at once; presence deduplicates them by UserID.
type Client struct {
	// ID identifies the connection, not the user.
	ID          string
	UserID      int64
	Username    string
	DisplayName string

	// Commands carries inbound actions; the hub consumes them in FIFO order
	// per connection.
	Commands chan *Command

	// Events carries outbound notifications; the transport's write loop
	// drains it. Sends are non-blocking: a full channel drops the event.
	Events chan *Event

	// rooms is the set of room names this connection is subscribed to.
	// Guarded by the hub's lock.
	rooms map[string]struct{}

	// mu guards closed. The session goroutine keeps sending until it drains
	// Commands, which can outlive Unregister when a store call is in flight.
	mu     sync.Mutex
	closed bool
}

// NewClient constructs a client with initialized channels.
func NewClient(connID string, userID int64, username, displayName string) *Client {
	return &Client{
		ID:          connID,
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		Commands:    make(chan *Command, 8),
		Events:      make(chan *Event, 32),
		rooms:       make(map[string]struct{}),
	}
}

func (c *Client) send(ev *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Unregistered mid-command; the event has nowhere to go.
		return
	}
	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
	}
}

// closeEvents shuts the event channel exactly once. Later sends are dropped
// instead of panicking.
func (c *Client) closeEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Events)
}
