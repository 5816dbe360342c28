package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/pkg/dbctx"
	"github.com/relaydesk/relaydesk-backend/internal/platform/apierr"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/repos"
)

// HandoffInput carries the optional fields of a handoff request.
type HandoffInput struct {
	Priority *int
	Tags     []string
	Note     *string
}

// RoutingService is the conversation state machine. Each operation is one
// database transaction: every invariant is checked before any write, so a
// failure never leaves partial state. Events are published only after the
// transaction commits.
//
// The concurrency contract relies on READ COMMITTED isolation plus
// SELECT ... FOR UPDATE on the conversation and availability rows, which
// serializes all mutations of one conversation across processes.
type RoutingService interface {
	RequestHandoff(ctx context.Context, conversationID uuid.UUID, in HandoffInput) (*domain.Conversation, error)
	AssignToAgent(ctx context.Context, conversationID, agentID uuid.UUID) (*domain.Conversation, error)
	SendAgentMessage(ctx context.Context, conversationID, agentID uuid.UUID, content string, internalNote *string) (*domain.Message, error)
	ReturnToBot(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	Resolve(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	SubmitFeedback(ctx context.Context, conversationID, messageID uuid.UUID, rating int, comment *string) (*domain.Message, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, []*domain.Message, error)
}

type routingService struct {
	db     *gorm.DB
	log    *logger.Logger
	convs  repos.ConversationRepo
	msgs   repos.MessageRepo
	avail  repos.AgentAvailabilityRepo
	notify RoutingNotifier
}

func NewRoutingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	convRepo repos.ConversationRepo,
	msgRepo repos.MessageRepo,
	availRepo repos.AgentAvailabilityRepo,
	notify RoutingNotifier,
) RoutingService {
	return &routingService{
		db:     db,
		log:    baseLog.With("service", "RoutingService"),
		convs:  convRepo,
		msgs:   msgRepo,
		avail:  availRepo,
		notify: notify,
	}
}

func (s *routingService) RequestHandoff(ctx context.Context, conversationID uuid.UUID, in HandoffInput) (*domain.Conversation, error) {
	var out *domain.Conversation
	var transitioned bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		conv, err := s.lockConversation(dbc, conversationID)
		if err != nil {
			return err
		}
		if conv.IsClosed() {
			return apierr.Conflict(apierr.CodeConversationClosed, fmt.Errorf("conversation %s is closed", conv.ID))
		}

		// Already waiting or already with a human: report current state, no
		// transition, no event.
		if conv.Status == domain.ConversationStatusWaitingForHuman ||
			conv.Status == domain.ConversationStatusHandedOff {
			out = conv
			return nil
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{"status": domain.ConversationStatusWaitingForHuman}
		conv.Status = domain.ConversationStatusWaitingForHuman
		if in.Priority != nil {
			updates["priority"] = *in.Priority
			conv.Priority = *in.Priority
		}
		if len(in.Tags) > 0 {
			raw, err := json.Marshal(in.Tags)
			if err != nil {
				return err
			}
			updates["tags"] = datatypes.JSON(raw)
			conv.Tags = datatypes.JSON(raw)
		}
		if err := s.convs.UpdateFields(dbc, conv.ID, updates); err != nil {
			return err
		}

		if in.Note != nil && strings.TrimSpace(*in.Note) != "" {
			note := strings.TrimSpace(*in.Note)
			if _, err := s.msgs.Create(dbc, []*domain.Message{{
				ID:             uuid.New(),
				ConversationID: conv.ID,
				Role:           domain.MessageRoleAssistant,
				InternalNote:   &note,
				CreatedAt:      now,
			}}); err != nil {
				return err
			}
		}

		conv.UpdatedAt = now
		out = conv
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.log.Info("handoff requested", "conversation_id", out.ID, "priority", out.Priority)
		s.notify.ConversationStatus(out)
	}
	return out, nil
}

func (s *routingService) AssignToAgent(ctx context.Context, conversationID, agentID uuid.UUID) (*domain.Conversation, error) {
	if agentID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("missing agent_id"))
	}

	var out *domain.Conversation
	var avOut *domain.AgentAvailability

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		conv, err := s.lockConversation(dbc, conversationID)
		if err != nil {
			return err
		}
		if conv.IsClosed() {
			return apierr.Conflict(apierr.CodeConversationClosed, fmt.Errorf("conversation %s is closed", conv.ID))
		}

		if conv.AssignedToID != nil {
			if *conv.AssignedToID == agentID {
				// same agent re-claiming is a no-op success
				out = conv
				return nil
			}
			return apierr.Conflict(apierr.CodeAlreadyClaimed,
				fmt.Errorf("conversation %s already assigned to %s", conv.ID, *conv.AssignedToID))
		}

		av, err := s.avail.LockOrCreate(dbc, agentID, conv.OrganizationID)
		if err != nil {
			return err
		}
		if av.AtCapacity() {
			return apierr.Conflict(apierr.CodeAtCapacity,
				fmt.Errorf("agent %s at capacity (%d/%d)", agentID, av.CurrentConversations, av.MaxConversations))
		}

		if err := s.convs.UpdateFields(dbc, conv.ID, map[string]interface{}{
			"status":         domain.ConversationStatusHandedOff,
			"assigned_to_id": agentID,
		}); err != nil {
			return err
		}
		if err := s.avail.UpdateFields(dbc, av.ID, map[string]interface{}{
			"current_conversations": av.CurrentConversations + 1,
		}); err != nil {
			return err
		}

		conv.Status = domain.ConversationStatusHandedOff
		assigned := agentID
		conv.AssignedToID = &assigned
		av.CurrentConversations++
		out = conv
		avOut = av
		return nil
	})
	if err != nil {
		return nil, err
	}

	if avOut != nil {
		s.log.Info("conversation assigned", "conversation_id", out.ID, "agent_id", agentID,
			"current_conversations", avOut.CurrentConversations)
		s.notify.AgentAssigned(out, agentID)
		s.notify.ConversationStatus(out)
		s.notify.AgentStatus(avOut)
	}
	return out, nil
}

func (s *routingService) SendAgentMessage(ctx context.Context, conversationID, agentID uuid.UUID, content string, internalNote *string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apierr.BadRequest(fmt.Errorf("empty message content"))
	}
	if agentID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("missing agent_id"))
	}

	var out *domain.Message
	var convOut *domain.Conversation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		conv, err := s.lockConversation(dbc, conversationID)
		if err != nil {
			return err
		}
		if conv.IsClosed() {
			return apierr.Conflict(apierr.CodeConversationClosed, fmt.Errorf("conversation %s is closed", conv.ID))
		}
		if conv.Status != domain.ConversationStatusHandedOff {
			return apierr.InvalidState(fmt.Errorf("conversation %s is %s, not handed_off", conv.ID, conv.Status))
		}
		if conv.AssignedToID == nil || *conv.AssignedToID != agentID {
			return apierr.Conflict(apierr.CodeWrongAssignee,
				fmt.Errorf("conversation %s is not assigned to agent %s", conv.ID, agentID))
		}

		now := time.Now().UTC()
		msg := &domain.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Role:           domain.MessageRoleAssistant,
			Content:        content,
			IsFromAgent:    true,
			AgentID:        &agentID,
			InternalNote:   internalNote,
			CreatedAt:      now,
		}
		if _, err := s.msgs.Create(dbc, []*domain.Message{msg}); err != nil {
			return err
		}

		updates := map[string]interface{}{"last_message_at": now}
		conv.LastMessageAt = &now
		// first agent-authored message fixes the first-response time; it
		// never changes afterwards, even across return/reassign cycles.
		if conv.FirstResponseTimeMs == nil {
			frt := now.Sub(conv.CreatedAt).Milliseconds()
			updates["first_response_time_ms"] = frt
			conv.FirstResponseTimeMs = &frt
		}
		if err := s.convs.UpdateFields(dbc, conv.ID, updates); err != nil {
			return err
		}

		out = msg
		convOut = conv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.ConversationMessage(convOut, out)
	return out, nil
}

func (s *routingService) ReturnToBot(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	var out *domain.Conversation
	var avOut *domain.AgentAvailability

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		conv, err := s.lockConversation(dbc, conversationID)
		if err != nil {
			return err
		}
		if conv.IsClosed() {
			return apierr.Conflict(apierr.CodeConversationClosed, fmt.Errorf("conversation %s is closed", conv.ID))
		}
		if conv.Status != domain.ConversationStatusHandedOff || conv.AssignedToID == nil {
			return apierr.InvalidState(fmt.Errorf("conversation %s is %s, not handed_off", conv.ID, conv.Status))
		}

		av, err := s.avail.LockOrCreate(dbc, *conv.AssignedToID, conv.OrganizationID)
		if err != nil {
			return err
		}
		next := av.CurrentConversations - 1
		if next < 0 {
			next = 0
		}

		if err := s.convs.UpdateFields(dbc, conv.ID, map[string]interface{}{
			"status":         domain.ConversationStatusActive,
			"assigned_to_id": nil,
		}); err != nil {
			return err
		}
		if err := s.avail.UpdateFields(dbc, av.ID, map[string]interface{}{
			"current_conversations": next,
		}); err != nil {
			return err
		}

		conv.Status = domain.ConversationStatusActive
		conv.AssignedToID = nil
		av.CurrentConversations = next
		out = conv
		avOut = av
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("conversation returned to bot", "conversation_id", out.ID)
	s.notify.ConversationStatus(out)
	s.notify.AgentStatus(avOut)
	return out, nil
}

func (s *routingService) Resolve(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	var out *domain.Conversation
	var avOut *domain.AgentAvailability

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		conv, err := s.lockConversation(dbc, conversationID)
		if err != nil {
			return err
		}
		if conv.IsClosed() {
			return apierr.Conflict(apierr.CodeConversationClosed, fmt.Errorf("conversation %s is already closed", conv.ID))
		}

		if conv.AssignedToID != nil {
			av, err := s.avail.LockOrCreate(dbc, *conv.AssignedToID, conv.OrganizationID)
			if err != nil {
				return err
			}
			next := av.CurrentConversations - 1
			if next < 0 {
				next = 0
			}
			if err := s.avail.UpdateFields(dbc, av.ID, map[string]interface{}{
				"current_conversations": next,
			}); err != nil {
				return err
			}
			av.CurrentConversations = next
			avOut = av
		}

		now := time.Now().UTC()
		if err := s.convs.UpdateFields(dbc, conv.ID, map[string]interface{}{
			"status":         domain.ConversationStatusClosed,
			"assigned_to_id": nil,
			"closed_at":      now,
		}); err != nil {
			return err
		}

		conv.Status = domain.ConversationStatusClosed
		conv.AssignedToID = nil
		conv.ClosedAt = &now
		out = conv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("conversation resolved", "conversation_id", out.ID)
	s.notify.ConversationStatus(out)
	if avOut != nil {
		s.notify.AgentStatus(avOut)
	}
	return out, nil
}

func (s *routingService) SubmitFeedback(ctx context.Context, conversationID, messageID uuid.UUID, rating int, comment *string) (*domain.Message, error) {
	if rating < 1 || rating > 5 {
		return nil, apierr.BadRequest(fmt.Errorf("rating must be between 1 and 5"))
	}
	dbc := dbctx.Context{Ctx: ctx}

	msg, err := s.msgs.GetByID(dbc, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("message %s not found", messageID))
		}
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, apierr.NotFound(fmt.Errorf("message %s not in conversation %s", messageID, conversationID))
	}

	set, err := s.msgs.SetFeedback(dbc, messageID, rating, comment)
	if err != nil {
		return nil, err
	}
	if !set {
		return nil, apierr.Conflict(apierr.CodeFeedbackExists, fmt.Errorf("feedback already submitted for message %s", messageID))
	}

	msg.FeedbackRating = &rating
	msg.FeedbackComment = comment
	return msg, nil
}

func (s *routingService) GetConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, []*domain.Message, error) {
	dbc := dbctx.Context{Ctx: ctx}
	conv, err := s.convs.GetByID(dbc, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apierr.NotFound(fmt.Errorf("conversation %s not found", conversationID))
		}
		return nil, nil, err
	}
	msgs, err := s.msgs.ListByConversation(dbc, conversationID, 0)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func (s *routingService) lockConversation(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("missing conversation_id"))
	}
	conv, err := s.convs.LockByID(dbc, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("conversation %s not found", id))
		}
		return nil, err
	}
	return conv, nil
}
