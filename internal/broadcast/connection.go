package broadcast

import (
	"sync"

	model "live-auction/internal/models"
)

// Connection is one connected client. Events for every auction it subscribes to,
// plus all global announcements, arrive on Events.
type Connection struct {
	id     string
	events chan model.Event
	done   chan struct{}
	once   sync.Once

	// guarded by Hub.mu
	auctions map[string]struct{}
}

func newConnection(id string, buffer int) *Connection {
	return &Connection{
		id:       id,
		events:   make(chan model.Event, buffer),
		done:     make(chan struct{}),
		auctions: make(map[string]struct{}),
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Events returns the outbound event stream. It is never closed; watch Done instead.
func (c *Connection) Events() <-chan model.Event { return c.events }

// Done is closed once the connection is disconnected.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) close() {
	c.once.Do(func() { close(c.done) })
}

// offer hands ev to the connection without blocking. It reports false when the
// connection is gone or its buffer is full.
func (c *Connection) offer(ev model.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}
