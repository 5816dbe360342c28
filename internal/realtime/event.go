package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
)

type EventType string

const (
	EventAgentAssigned       EventType = "agent.assigned"
	EventAgentStatus         EventType = "agent.status"
	EventConversationStatus  EventType = "conversation.status"
	EventConversationMessage EventType = "conversation.message"
)

// Payload is the per-type event body. Every payload carries the organization
// id used for routing; Conversation/Chatbot return uuid.Nil when the event is
// not tied to one (agent.status), so conversation-scoped subscribers never
// receive it.
type Payload interface {
	Organization() uuid.UUID
	Conversation() uuid.UUID
	Chatbot() uuid.UUID
}

// Event is an immutable fact about one committed state change. Events exist
// only for the duration of in-flight delivery; there is no replay log.
type Event struct {
	Type      EventType `json:"type"`
	Payload   Payload   `json:"payload"`
	EmittedAt time.Time `json:"emitted_at"`
}

type AgentAssignedPayload struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ChatbotID      uuid.UUID `json:"chatbot_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	AgentID        uuid.UUID `json:"agent_id"`
}

func (p AgentAssignedPayload) Organization() uuid.UUID { return p.OrganizationID }
func (p AgentAssignedPayload) Conversation() uuid.UUID { return p.ConversationID }
func (p AgentAssignedPayload) Chatbot() uuid.UUID      { return p.ChatbotID }

type AgentStatusPayload struct {
	OrganizationID       uuid.UUID `json:"organization_id"`
	AgentID              uuid.UUID `json:"agent_id"`
	Status               string    `json:"status"`
	MaxConversations     int       `json:"max_conversations"`
	CurrentConversations int       `json:"current_conversations"`
}

func (p AgentStatusPayload) Organization() uuid.UUID { return p.OrganizationID }
func (p AgentStatusPayload) Conversation() uuid.UUID { return uuid.Nil }
func (p AgentStatusPayload) Chatbot() uuid.UUID      { return uuid.Nil }

type ConversationStatusPayload struct {
	OrganizationID uuid.UUID  `json:"organization_id"`
	ChatbotID      uuid.UUID  `json:"chatbot_id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Status         string     `json:"status"`
	AssignedToID   *uuid.UUID `json:"assigned_to_id,omitempty"`
}

func (p ConversationStatusPayload) Organization() uuid.UUID { return p.OrganizationID }
func (p ConversationStatusPayload) Conversation() uuid.UUID { return p.ConversationID }
func (p ConversationStatusPayload) Chatbot() uuid.UUID      { return p.ChatbotID }

type ConversationMessagePayload struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	ChatbotID      uuid.UUID       `json:"chatbot_id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Message        *domain.Message `json:"message"`
}

func (p ConversationMessagePayload) Organization() uuid.UUID { return p.OrganizationID }
func (p ConversationMessagePayload) Conversation() uuid.UUID { return p.ConversationID }
func (p ConversationMessagePayload) Chatbot() uuid.UUID      { return p.ChatbotID }

// UnmarshalJSON decodes the payload into the concrete variant named by Type.
// Needed by the redis relay, which round-trips events as JSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      EventType       `json:"type"`
		Payload   json.RawMessage `json:"payload"`
		EmittedAt time.Time       `json:"emitted_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Type = raw.Type
	e.EmittedAt = raw.EmittedAt
	switch raw.Type {
	case EventAgentAssigned:
		var p AgentAssignedPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		e.Payload = p
	case EventAgentStatus:
		var p AgentStatusPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		e.Payload = p
	case EventConversationStatus:
		var p ConversationStatusPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		e.Payload = p
	case EventConversationMessage:
		var p ConversationMessagePayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return err
		}
		e.Payload = p
	default:
		return fmt.Errorf("unknown event type %q", raw.Type)
	}
	return nil
}

// Filter selects the events a subscriber receives. Zero-value fields are
// wildcards; a zero Filter matches everything.
type Filter struct {
	OrganizationID uuid.UUID
	ConversationID uuid.UUID
	ChatbotID      uuid.UUID
}

func (f Filter) Matches(ev Event) bool {
	if ev.Payload == nil {
		return false
	}
	if f.ConversationID != uuid.Nil && ev.Payload.Conversation() != f.ConversationID {
		return false
	}
	if f.ChatbotID != uuid.Nil && ev.Payload.Chatbot() != f.ChatbotID {
		return false
	}
	if f.OrganizationID != uuid.Nil && ev.Payload.Organization() != f.OrganizationID {
		return false
	}
	return true
}
