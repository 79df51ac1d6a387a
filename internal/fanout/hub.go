// Package fanout owns the dashboard subscriber set shared by both pipelines:
// registration, filtered best-effort broadcast, and ping/pong liveness.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsegrid/pulsegrid/internal/metric"
	"github.com/pulsegrid/pulsegrid/pkg/log"
)

// Role describes what a connection does with the pipeline.
type Role string

const (
	RoleProducer  Role = "producer"
	RoleDashboard Role = "dashboard"
)

// Status is the liveness state of a client. A ping with no answering pong
// yet makes the client suspect; a second silent cycle terminates it.
type Status int

const (
	StatusAlive Status = iota
	StatusSuspect
	StatusTerminated
)

// DefaultHeartbeatInterval matches the dashboard protocol's 30s ping cycle.
const DefaultHeartbeatInterval = 30 * time.Second

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Client is one registered connection. Role and filters are mutable:
// registration frames may arrive again mid-stream, so they live behind the
// mutex alongside the liveness state.
type Client struct {
	ID string

	conn Conn

	mu           sync.Mutex
	role         Role
	sourceFilter string
	filter       Filter
	status       Status
	ponged       bool
}

// NewClient wraps a connection. Registration counts as a pong.
func NewClient(id string, conn Conn, role Role) *Client {
	return &Client{ID: id, role: role, conn: conn, ponged: true}
}

// SetSubscription replaces the client's role and filters. Safe against a
// concurrent Broadcast.
func (c *Client) SetSubscription(role Role, sourceFilter string, filter Filter) {
	c.mu.Lock()
	c.role = role
	c.sourceFilter = sourceFilter
	c.filter = filter
	c.mu.Unlock()
}

// Subscription returns the client's current role and filters.
func (c *Client) Subscription() (Role, string, Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role, c.sourceFilter, c.filter
}

// MarkAlive records a pong; wire it to the connection's pong handler.
func (c *Client) MarkAlive() {
	c.mu.Lock()
	c.ponged = true
	c.status = StatusAlive
	c.mu.Unlock()
}

// LivenessStatus returns the client's current liveness state.
func (c *Client) LivenessStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Send writes a text message to the client. Serialized per client so the
// broadcast loop and direct replies never interleave frames.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub is the instance-scoped subscriber registry.
type Hub struct {
	logger log.Logger
	nowMs  func() int64
	pruned interface{ Inc() }

	mu      sync.Mutex
	clients map[string]*Client
}

// NewHub builds an empty hub.
func NewHub(logger log.Logger) *Hub {
	return &Hub{
		logger:  logger.WithComponent("fanout"),
		nowMs:   func() int64 { return time.Now().UnixMilli() },
		clients: make(map[string]*Client),
	}
}

// SetPruneCounter wires a counter incremented whenever the hub drops a
// client for unresponsiveness or a failed write.
func (h *Hub) SetPruneCounter(c interface{ Inc() }) { h.pruned = c }

func (h *Hub) countPrune() {
	if h.pruned != nil {
		h.pruned.Inc()
	}
}

// Register adds the client to the subscriber set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	role, _, _ := c.Subscription()
	h.logger.Debug("client registered", log.Str("client_id", c.ID), log.Str("role", string(role)))
}

// Remove drops a client without closing its connection; the read loop owns
// the close.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	_, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("client removed", log.Str("client_id", id))
	}
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends payload to every dashboard whose source and CEL filters
// accept ev. A failed write drops that client only; the loop never stops.
// Returns the number of successful deliveries.
func (h *Hub) Broadcast(payload []byte, ev metric.Event) int {
	now := h.nowMs()
	sent := 0
	for _, c := range h.snapshot() {
		role, sourceFilter, filter := c.Subscription()
		if role != RoleDashboard {
			continue
		}
		if sourceFilter != "" && sourceFilter != ev.SourceID {
			continue
		}
		if !filter.Match(ev, now) {
			continue
		}
		if err := c.Send(payload); err != nil {
			h.logger.Warn("broadcast write failed, dropping client",
				log.Str("client_id", c.ID), log.Err(err))
			h.Remove(c.ID)
			h.countPrune()
			continue
		}
		sent++
	}
	return sent
}

// RunHeartbeat pings every client once per interval until ctx is done. A
// client is suspect while its ping is unanswered; a cycle that finds the
// previous ping still unanswered terminates it with close code 1001.
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeatCycle()
		}
	}
}

func (h *Hub) heartbeatCycle() {
	deadline := time.Now().Add(5 * time.Second)
	for _, c := range h.snapshot() {
		c.mu.Lock()
		if c.ponged {
			// the ping below goes out with no answer yet
			c.ponged = false
			c.status = StatusSuspect
		} else {
			c.status = StatusTerminated
		}
		status := c.status
		c.mu.Unlock()

		if status == StatusTerminated {
			h.logger.Warn("terminating unresponsive client", log.Str("client_id", c.ID))
			h.Remove(c.ID)
			h.countPrune()
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "heartbeat timeout")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = c.conn.Close()
			continue
		}
		if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.logger.Warn("ping failed, dropping client", log.Str("client_id", c.ID), log.Err(err))
			h.Remove(c.ID)
			h.countPrune()
			_ = c.conn.Close()
		}
	}
}

// CloseAll tells every client the server is going away and closes the
// connections. Used on shutdown.
func (h *Hub) CloseAll() {
	deadline := time.Now().Add(5 * time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range h.snapshot() {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
		h.Remove(c.ID)
	}
}

func (h *Hub) snapshot() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}
