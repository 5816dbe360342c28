package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
)

const outboundBuffer = 32

// Hub is the in-process event bus. Publish fans out synchronously to every
// registered client whose filter matches; delivery to one client never
// blocks on another, and a client whose buffer is full is dropped.
type Hub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	clients map[*Client]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "Hub"),
		clients: make(map[*Client]struct{}),
	}
}

func (h *Hub) Subscribe(f Filter) *Client {
	c := &Client{
		ID:       uuid.New(),
		Filter:   f,
		Outbound: make(chan Event, outboundBuffer),
		done:     make(chan struct{}),
	}
	c.Logger = h.log.With("client_id", c.ID.String())

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("client subscribed", "client_id", c.ID,
		"organization_id", f.OrganizationID, "conversation_id", f.ConversationID,
		"chatbot_id", f.ChatbotID)
	return c
}

// Unsubscribe removes the client and signals its Done channel. Safe to call
// more than once; the stream handler and the drop path may race here.
func (h *Hub) Unsubscribe(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	_, registered := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.markDone()
	if registered {
		h.log.Debug("client unsubscribed", "client_id", c.ID)
	}
}

// Publish delivers ev to every matching client, preserving per-client
// publish order. Clients that cannot keep up are dropped, not waited on.
func (h *Hub) Publish(ev Event) {
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = time.Now().UTC()
	}

	var dropped []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.Filter.Matches(ev) {
			continue
		}
		select {
		case c.Outbound <- ev:
		default:
			dropped = append(dropped, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range dropped {
		h.log.Warn("dropping slow subscriber", "client_id", c.ID, "event", ev.Type)
		h.Unsubscribe(c)
	}
}

// SubscriberCount is used by tests and the healthcheck payload.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
