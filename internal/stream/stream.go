// Package stream fans session analysis events out to live subscribers. The
// hub is transport-agnostic; the websocket layer drains subscription
// channels.
package stream

import (
	"context"
	"sync"
	"time"
)

// MessageType tags a stream envelope.
type MessageType string

// Stream message types.
const (
	TypeConnectionEstablished MessageType = "connection_established"
	TypeStreamingAnalysis     MessageType = "streaming_analysis"
	TypeInterventionAlert     MessageType = "intervention_alert"
	TypeHeartbeat             MessageType = "heartbeat"
	TypeError                 MessageType = "error"
)

// Envelope is one message delivered to stream subscribers.
type Envelope struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Subscription is one subscriber's bounded event queue. Receive from C;
// Close when done.
type Subscription struct {
	hub       *Hub
	sessionID string
	ch        chan Envelope

	// lastSend is guarded by the hub mutex.
	lastSend time.Time

	// C delivers envelopes until the subscription is closed.
	C <-chan Envelope
}

// Close removes the subscription from the hub and closes its channel.
// It is safe to call after the hub has already dropped the subscriber.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.sessionID, s)
}

// Config tunes the hub. Zero values fall back to defaults.
type Config struct {
	// Buffer is the per-subscriber queue capacity.
	Buffer int
	// IdleTimeout is the quiet period after which a heartbeat is sent.
	IdleTimeout time.Duration
	// Clock reports the current time; defaults to time.Now.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Hub tracks subscriber sets per session and pushes events to them without
// ever blocking the publisher. A subscriber whose queue is full is dropped
// and unsubscribed; delivery to the remaining subscribers is unaffected.
type Hub struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]map[*Subscription]bool
	closed   bool
}

// NewHub returns a hub with the given configuration.
func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]map[*Subscription]bool),
	}
}

// Subscribe registers a new subscriber for the session and queues a
// connection_established envelope.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		hub:       h,
		sessionID: sessionID,
		ch:        make(chan Envelope, h.cfg.Buffer),
	}
	sub.C = sub.ch

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub
	}
	set := h.sessions[sessionID]
	if set == nil {
		set = make(map[*Subscription]bool)
		h.sessions[sessionID] = set
	}
	set[sub] = true

	now := h.cfg.Clock()
	sub.lastSend = now
	// Buffer is at least 1, so the greeting always fits.
	sub.ch <- Envelope{
		Type:      TypeConnectionEstablished,
		SessionID: sessionID,
		Timestamp: now,
	}
	return sub
}

func (h *Hub) unsubscribe(sessionID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, sub)
}

// removeLocked detaches the subscriber and closes its channel exactly once.
func (h *Hub) removeLocked(sessionID string, sub *Subscription) {
	set, ok := h.sessions[sessionID]
	if !ok || !set[sub] {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.sessions, sessionID)
	}
	close(sub.ch)
}

// Publish queues the envelope to every subscriber of the session without
// blocking. Subscribers with full queues are dropped.
func (h *Hub) Publish(envelope Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.cfg.Clock()
	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = now
	}
	for sub := range h.sessions[envelope.SessionID] {
		select {
		case sub.ch <- envelope:
			sub.lastSend = now
		default:
			h.removeLocked(envelope.SessionID, sub)
		}
	}
}

// Heartbeat queues a heartbeat to every subscriber quiet for longer than the
// idle timeout.
func (h *Hub) Heartbeat() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.cfg.Clock()
	for sessionID, set := range h.sessions {
		for sub := range set {
			if now.Sub(sub.lastSend) < h.cfg.IdleTimeout {
				continue
			}
			select {
			case sub.ch <- Envelope{Type: TypeHeartbeat, SessionID: sessionID, Timestamp: now}:
				sub.lastSend = now
			default:
				h.removeLocked(sessionID, sub)
			}
		}
	}
}

// Run sends periodic heartbeats until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Heartbeat()
		}
	}
}

// CloseSession drops every subscriber of the session, closing their
// channels.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.sessions[sessionID] {
		h.removeLocked(sessionID, sub)
	}
}

// Close drops every subscriber of every session and rejects future
// subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sessionID, set := range h.sessions {
		for sub := range set {
			h.removeLocked(sessionID, sub)
		}
	}
}

// SubscriberCount returns the number of live subscribers for the session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}
