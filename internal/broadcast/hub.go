// Package broadcast fans events out to connected clients.
//
// Two delivery scopes exist side by side: per-auction topics, which reach only the
// connections subscribed to that auction and preserve publish order per auction, and
// the announcement channel, which reaches every connected client.
package broadcast

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	model "live-auction/internal/models"
	"live-auction/utils"
)

// DefaultBuffer is the per-connection outbound buffer used when none is configured.
const DefaultBuffer = 64

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrHubClosed         = errors.New("broadcast hub closed")
)

type topic struct {
	auctionID string
	queue     *queue
	subs      map[string]*Connection // guarded by Hub.mu
}

// Hub is the fan-out service. Create one per process (or per test) with NewHub.
type Hub struct {
	buffer int

	mu       sync.RWMutex
	conns    map[string]*Connection
	topics   map[string]*topic
	closed   bool
	announce *queue

	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewHub creates a hub whose connections buffer up to buffer events each.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	h := &Hub{
		buffer:   buffer,
		conns:    make(map[string]*Connection),
		topics:   make(map[string]*topic),
		announce: newQueue(),
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.announce.run(h.deliverAnnouncement)
	}()
	return h
}

// Connect registers a new client connection.
func (h *Hub) Connect() (*Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	conn := newConnection(utils.GenerateConnectionID(), h.buffer)
	h.conns[conn.id] = conn
	return conn, nil
}

// Disconnect removes the connection and every subscription it holds.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
		for auctionID := range conn.auctions {
			if t, exists := h.topics[auctionID]; exists {
				delete(t.subs, connID)
				h.reapLocked(t)
			}
		}
		conn.auctions = make(map[string]struct{})
	}
	h.mu.Unlock()

	if ok {
		conn.close()
	}
}

// Subscribe attaches the connection to the auction channel. Repeated calls are no-ops.
func (h *Hub) Subscribe(connID, auctionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("subscribe %s to %s: %w", connID, auctionID, ErrUnknownConnection)
	}
	t, err := h.topicLocked(auctionID)
	if err != nil {
		return err
	}
	t.subs[connID] = conn
	conn.auctions[auctionID] = struct{}{}
	return nil
}

// Unsubscribe detaches the connection from the auction channel. Repeated calls are no-ops.
func (h *Hub) Unsubscribe(connID, auctionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("unsubscribe %s from %s: %w", connID, auctionID, ErrUnknownConnection)
	}
	if t, exists := h.topics[auctionID]; exists {
		delete(t.subs, connID)
		h.reapLocked(t)
	}
	delete(conn.auctions, auctionID)
	return nil
}

// Subscriptions lists the auctions a connection observes.
func (h *Hub) Subscriptions(connID string) []model.Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, ok := h.conns[connID]
	if !ok {
		return nil
	}
	subs := make([]model.Subscription, 0, len(conn.auctions))
	for auctionID := range conn.auctions {
		subs = append(subs, model.Subscription{ConnectionID: connID, AuctionID: auctionID})
	}
	return subs
}

// Publish enqueues ev for every current subscriber of auctionID. It never blocks on
// delivery; events published for one auction are delivered in publish order.
// An auction-closed event retires the auction's topic once it has been delivered.
func (h *Hub) Publish(auctionID string, ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		utils.Warn("broadcast: publish after close", map[string]any{"auction_id": auctionID, "type": ev.Type})
		return
	}
	t, ok := h.topics[auctionID]
	if !ok {
		// nobody subscribed
		return
	}
	if !t.queue.push(ev) {
		utils.Warn("broadcast: publish to stopped topic", map[string]any{"auction_id": auctionID, "type": ev.Type})
		return
	}
	if ev.Type == model.EventAuctionClosed {
		h.retireLocked(t)
	}
}

// Announce enqueues ev for every connected client, regardless of subscriptions.
func (h *Hub) Announce(ev model.Event) {
	if !h.announce.push(ev) {
		utils.Warn("broadcast: announce after close", map[string]any{"type": ev.Type})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close drains pending events, stops every dispatcher and disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, t := range h.topics {
		t.queue.close()
	}
	h.mu.Unlock()

	h.announce.close()
	h.wg.Wait()

	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()
	for _, conn := range conns {
		conn.close()
	}
}

// reapLocked drops a topic nobody listens to. Its dispatcher delivers whatever is
// still pending to the (now empty) subscriber set and exits. h.mu must be held for writing.
func (h *Hub) reapLocked(t *topic) {
	if len(t.subs) > 0 {
		return
	}
	if h.topics[t.auctionID] == t {
		delete(h.topics, t.auctionID)
	}
	t.queue.close()
}

// retireLocked ends an auction's channel. Events already queued, including the one
// that closed it, still reach the subscribers it had. h.mu must be held for writing.
func (h *Hub) retireLocked(t *topic) {
	for connID := range t.subs {
		if conn, ok := h.conns[connID]; ok {
			delete(conn.auctions, t.auctionID)
		}
	}
	if h.topics[t.auctionID] == t {
		delete(h.topics, t.auctionID)
	}
	t.queue.close()
}

// topicLocked returns the topic for auctionID, starting its dispatcher on first use.
// h.mu must be held for writing.
func (h *Hub) topicLocked(auctionID string) (*topic, error) {
	if t, ok := h.topics[auctionID]; ok {
		return t, nil
	}
	if h.closed {
		return nil, ErrHubClosed
	}
	t := &topic{
		auctionID: auctionID,
		queue:     newQueue(),
		subs:      make(map[string]*Connection),
	}
	h.topics[auctionID] = t
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		t.queue.run(func(ev model.Event) { h.deliverTopic(t, ev) })
	}()
	return t, nil
}

func (h *Hub) deliverTopic(t *topic, ev model.Event) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(t.subs))
	for _, conn := range t.subs {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	h.deliver(targets, ev)
}

func (h *Hub) deliverAnnouncement(ev model.Event) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	h.deliver(targets, ev)
}

func (h *Hub) deliver(targets []*Connection, ev model.Event) {
	for _, conn := range targets {
		if conn.offer(ev) {
			continue
		}
		h.dropped.Add(1)
		utils.Warn("broadcast: subscriber unavailable, event dropped", map[string]any{
			"connection_id": conn.id,
			"auction_id":    ev.AuctionID,
			"type":          ev.Type,
		})
	}
}
