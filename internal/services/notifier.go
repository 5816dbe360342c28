package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/realtime"
)

// RoutingNotifier turns committed mutations into typed events. Callers
// invoke it only after the transaction commits, so subscribers never observe
// state that later rolled back.
type RoutingNotifier interface {
	AgentAssigned(conv *domain.Conversation, agentID uuid.UUID)
	ConversationStatus(conv *domain.Conversation)
	AgentStatus(av *domain.AgentAvailability)
	ConversationMessage(conv *domain.Conversation, msg *domain.Message)
}

type routingNotifier struct {
	emit EventSink
}

func NewRoutingNotifier(emit EventSink) RoutingNotifier {
	return &routingNotifier{emit: emit}
}

func (n *routingNotifier) AgentAssigned(conv *domain.Conversation, agentID uuid.UUID) {
	if n == nil || n.emit == nil || conv == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.Event{
		Type: realtime.EventAgentAssigned,
		Payload: realtime.AgentAssignedPayload{
			OrganizationID: conv.OrganizationID,
			ChatbotID:      conv.ChatbotID,
			ConversationID: conv.ID,
			AgentID:        agentID,
		},
		EmittedAt: time.Now().UTC(),
	})
}

func (n *routingNotifier) ConversationStatus(conv *domain.Conversation) {
	if n == nil || n.emit == nil || conv == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.Event{
		Type: realtime.EventConversationStatus,
		Payload: realtime.ConversationStatusPayload{
			OrganizationID: conv.OrganizationID,
			ChatbotID:      conv.ChatbotID,
			ConversationID: conv.ID,
			Status:         conv.Status,
			AssignedToID:   conv.AssignedToID,
		},
		EmittedAt: time.Now().UTC(),
	})
}

func (n *routingNotifier) AgentStatus(av *domain.AgentAvailability) {
	if n == nil || n.emit == nil || av == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.Event{
		Type: realtime.EventAgentStatus,
		Payload: realtime.AgentStatusPayload{
			OrganizationID:       av.OrganizationID,
			AgentID:              av.AgentID,
			Status:               av.Status,
			MaxConversations:     av.MaxConversations,
			CurrentConversations: av.CurrentConversations,
		},
		EmittedAt: time.Now().UTC(),
	})
}

func (n *routingNotifier) ConversationMessage(conv *domain.Conversation, msg *domain.Message) {
	if n == nil || n.emit == nil || conv == nil || msg == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.Event{
		Type: realtime.EventConversationMessage,
		Payload: realtime.ConversationMessagePayload{
			OrganizationID: conv.OrganizationID,
			ChatbotID:      conv.ChatbotID,
			ConversationID: conv.ID,
			Message:        msg,
		},
		EmittedAt: time.Now().UTC(),
	})
}
