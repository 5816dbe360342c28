package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/platform/apierr"
	"github.com/relaydesk/relaydesk-backend/internal/realtime"
)

func TestHandoffLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := uuid.New()
	agent := env.seedAgent(t, org, "ana")
	conv := env.seedConversation(t, org, domain.ConversationStatusActive)

	if _, err := env.registry.SetAvailability(ctx, agent.ID, org, domain.AgentStatusAvailable, intPtr(3)); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}
	env.sink.reset()

	// customer asks for a human
	got, err := env.routing.RequestHandoff(ctx, conv.ID, HandoffInput{
		Priority: intPtr(2),
		Tags:     []string{"billing"},
		Note:     strPtr("customer is upset about an invoice"),
	})
	if err != nil {
		t.Fatalf("RequestHandoff: %v", err)
	}
	if got.Status != domain.ConversationStatusWaitingForHuman {
		t.Errorf("status = %q, want waiting_for_human", got.Status)
	}
	if got.Priority != 2 {
		t.Errorf("priority = %d, want 2", got.Priority)
	}
	if types := env.sink.types(); len(types) != 1 || types[0] != realtime.EventConversationStatus {
		t.Errorf("events after handoff = %v, want [conversation.status]", types)
	}

	// the handoff note lands as an agent-only annotation
	_, msgs, err := env.routing.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(msgs) != 1 || msgs[0].InternalNote == nil || *msgs[0].InternalNote != "customer is upset about an invoice" {
		t.Fatalf("expected one message carrying the handoff note, got %+v", msgs)
	}

	// agent claims it
	env.sink.reset()
	got, err = env.routing.AssignToAgent(ctx, conv.ID, agent.ID)
	if err != nil {
		t.Fatalf("AssignToAgent: %v", err)
	}
	if got.Status != domain.ConversationStatusHandedOff {
		t.Errorf("status = %q, want handed_off", got.Status)
	}
	if got.AssignedToID == nil || *got.AssignedToID != agent.ID {
		t.Errorf("assigned_to = %v, want %s", got.AssignedToID, agent.ID)
	}
	if av := env.availability(t, agent.ID, org); av.CurrentConversations != 1 {
		t.Errorf("current_conversations = %d, want 1", av.CurrentConversations)
	}
	wantTypes := []realtime.EventType{realtime.EventAgentAssigned, realtime.EventConversationStatus, realtime.EventAgentStatus}
	if types := env.sink.types(); len(types) != 3 || types[0] != wantTypes[0] || types[1] != wantTypes[1] || types[2] != wantTypes[2] {
		t.Errorf("events after assign = %v, want %v", types, wantTypes)
	}

	// agent replies
	env.sink.reset()
	msg, err := env.routing.SendAgentMessage(ctx, conv.ID, agent.ID, "Hi, taking a look now.", nil)
	if err != nil {
		t.Fatalf("SendAgentMessage: %v", err)
	}
	if !msg.IsFromAgent || msg.Role != domain.MessageRoleAssistant {
		t.Errorf("message flags = {is_from_agent: %v, role: %q}", msg.IsFromAgent, msg.Role)
	}
	snap, _, err := env.routing.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if snap.FirstResponseTimeMs == nil {
		t.Error("first_response_time_ms not set after first agent message")
	}
	if types := env.sink.types(); len(types) != 1 || types[0] != realtime.EventConversationMessage {
		t.Errorf("events after message = %v, want [conversation.message]", types)
	}

	// resolve closes and releases capacity
	got, err = env.routing.Resolve(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != domain.ConversationStatusClosed || got.ClosedAt == nil || got.AssignedToID != nil {
		t.Errorf("after resolve: status=%q closed_at=%v assigned_to=%v", got.Status, got.ClosedAt, got.AssignedToID)
	}
	if av := env.availability(t, agent.ID, org); av.CurrentConversations != 0 {
		t.Errorf("current_conversations after resolve = %d, want 0", av.CurrentConversations)
	}
}

func TestRequestHandoffIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.seedConversation(t, uuid.New(), domain.ConversationStatusActive)

	if _, err := env.routing.RequestHandoff(ctx, conv.ID, HandoffInput{}); err != nil {
		t.Fatalf("first RequestHandoff: %v", err)
	}
	env.sink.reset()

	got, err := env.routing.RequestHandoff(ctx, conv.ID, HandoffInput{Priority: intPtr(9)})
	if err != nil {
		t.Fatalf("second RequestHandoff: %v", err)
	}
	if got.Status != domain.ConversationStatusWaitingForHuman {
		t.Errorf("status = %q, want waiting_for_human", got.Status)
	}
	if got.Priority != 0 {
		t.Errorf("priority changed on repeat handoff: %d", got.Priority)
	}
	if n := env.sink.count(); n != 0 {
		t.Errorf("repeat handoff emitted %d events, want 0", n)
	}
}

func TestRequestHandoffClosedConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.seedConversation(t, uuid.New(), domain.ConversationStatusActive)

	if _, err := env.routing.Resolve(ctx, conv.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_, err := env.routing.RequestHandoff(ctx, conv.ID, HandoffInput{})
	if !apierr.HasCode(err, apierr.CodeConversationClosed) {
		t.Errorf("err = %v, want code %s", err, apierr.CodeConversationClosed)
	}
}

func TestAssignToAgentConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := uuid.New()
	agentA := env.seedAgent(t, org, "ana")
	agentB := env.seedAgent(t, org, "bo")
	conv := env.seedConversation(t, org, domain.ConversationStatusWaitingForHuman)

	if _, err := env.routing.AssignToAgent(ctx, conv.ID, agentA.ID); err != nil {
		t.Fatalf("AssignToAgent: %v", err)
	}

	// someone else is too late
	_, err := env.routing.AssignToAgent(ctx, conv.ID, agentB.ID)
	if !apierr.HasCode(err, apierr.CodeAlreadyClaimed) {
		t.Errorf("err = %v, want code %s", err, apierr.CodeAlreadyClaimed)
	}
	if av, err := env.avail.GetByAgentOrg(dbcBackground(), agentB.ID, org); err == nil && av.CurrentConversations != 0 {
		t.Errorf("loser's counter = %d, want 0", av.CurrentConversations)
	}

	// the holder re-claiming is a quiet no-op
	env.sink.reset()
	got, err := env.routing.AssignToAgent(ctx, conv.ID, agentA.ID)
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if got.AssignedToID == nil || *got.AssignedToID != agentA.ID {
		t.Errorf("assigned_to = %v, want %s", got.AssignedToID, agentA.ID)
	}
	if n := env.sink.count(); n != 0 {
		t.Errorf("re-claim emitted %d events, want 0", n)
	}
	if av := env.availability(t, agentA.ID, org); av.CurrentConversations != 1 {
		t.Errorf("holder's counter = %d, want 1", av.CurrentConversations)
	}
}

func TestAssignToAgentAtCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := uuid.New()
	agent := env.seedAgent(t, org, "ana")

	if _, err := env.registry.SetAvailability(ctx, agent.ID, org, domain.AgentStatusAvailable, intPtr(1)); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}

	first := env.seedConversation(t, org, domain.ConversationStatusWaitingForHuman)
	second := env.seedConversation(t, org, domain.ConversationStatusWaitingForHuman)

	if _, err := env.routing.AssignToAgent(ctx, first.ID, agent.ID); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err := env.routing.AssignToAgent(ctx, second.ID, agent.ID)
	if !apierr.HasCode(err, apierr.CodeAtCapacity) {
		t.Errorf("err = %v, want code %s", err, apierr.CodeAtCapacity)
	}
	if av := env.availability(t, agent.ID, org); av.CurrentConversations != 1 {
		t.Errorf("counter = %d, want 1", av.CurrentConversations)
	}

	// the rejected conversation keeps waiting
	snap, _, err := env.routing.GetConversation(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if snap.Status != domain.ConversationStatusWaitingForHuman || snap.AssignedToID != nil {
		t.Errorf("rejected conversation: status=%q assigned_to=%v", snap.Status, snap.AssignedToID)
	}
}

func TestAssignToAgentConcurrentClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := uuid.New()
	agentA := env.seedAgent(t, org, "ana")
	agentB := env.seedAgent(t, org, "bo")
	conv := env.seedConversation(t, org, domain.ConversationStatusWaitingForHuman)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.routing.AssignToAgent(ctx, conv.ID, agentA.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.routing.AssignToAgent(ctx, conv.ID, agentB.ID)
	}()
	wg.Wait()

	var wins, claims int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apierr.HasCode(err, apierr.CodeAlreadyClaimed):
			claims++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 || claims != 1 {
		t.Fatalf("wins=%d claims=%d, want exactly one of each", wins, claims)
	}

	snap, _, err := env.routing.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if snap.AssignedToID == nil {
		t.Fatal("conversation has no assignee after the race")
	}
	winner := *snap.AssignedToID
	var loser uuid.UUID
	if winner == agentA.ID {
		loser = agentB.ID
	} else {
		loser = agentA.ID
	}
	if av := env.availability(t, winner, org); av.CurrentConversations != 1 {
		t.Errorf("winner counter = %d, want 1", av.CurrentConversations)
	}
	if av, err := env.avail.GetByAgentOrg(dbcBackground(), loser, org); err == nil && av.CurrentConversations != 0 {
		t.Errorf("loser counter = %d, want 0", av.CurrentConversations)
	}
}

func TestSendAgentMessageGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := uuid.New()
	agentA := env.seedAgent(t, org, "ana")
	agentB := env.seedAgent(t, org, "bo")
	conv := env.seedConversation(t, org, domain.ConversationStatusWaitingForHuman)

	// not yet assigned
	_, err := env.routing.SendAgentMessage(ctx, conv.ID, agentA.ID, "hello", nil)
	if !apierr.HasCode(err, apierr.CodeInvalidState) {
		t.Errorf("unassigned send: err = %v, want code %s", err, apierr.CodeInvalidState)
	}

	if _, err := env.routing.AssignToAgent(ctx, conv.ID, agentA.ID); err != nil {
		t.Fatalf("AssignToAgent: %v", err)
	}

	// someone else's conversation
	_, err = env.routing.SendAgentMessage(ctx, conv.ID, agentB.ID, "hello", nil)
	if !apierr.HasCode(err, apierr.CodeWrongAssignee) {
		t.Errorf("wrong assignee: err = %v, want code %s", err, apierr.CodeWrongAssignee)
	}

	// blank content
	_, err = env.routing.SendAgentMessage(ctx, conv.ID, agentA.ID, "   ", nil)
	if !apierr.HasCode(err, apierr.CodeInvalidInput) {
		t.Errorf("blank content: err = %v, want code %s", err, apierr.CodeInvalidInput)
	}
}

func TestFirstResponseTimeImmutable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := uuid.New()
	agent := env.seedAgent(t, org, "ana")
	conv := env.seedConversation(t, org, domain.ConversationStatusWaitingForHuman)

	if _, err := env.routing.AssignToAgent(ctx, conv.ID, agent.ID); err != nil {
		t.Fatalf("AssignToAgent: %v", err)
	}
	if _, err := env.routing.SendAgentMessage(ctx, conv.ID, agent.ID, "first", nil); err != nil {
		t.Fatalf("first message: %v", err)
	}
	snap, _, err := env.routing.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if snap.FirstResponseTimeMs == nil {
		t.Fatal("first_response_time_ms not set")
	}
	initial := *snap.FirstResponseTimeMs

	// bounce through the bot and a fresh claim
	if _, err := env.routing.ReturnToBot(ctx, conv.ID); err != nil {
		t.Fatalf("ReturnToBot: %v", err)
	}
	if _, err := env.routing.RequestHandoff(ctx, conv.ID, HandoffInput{}); err != nil {
		t.Fatalf("RequestHandoff: %v", err)
	}
	if _, err := env.routing.AssignToAgent(ctx, conv.ID, agent.ID); err != nil {
		t.Fatalf("re-assign: %v", err)
	}
	if _, err := env.routing.SendAgentMessage(ctx, conv.ID, agent.ID, "second", nil); err != nil {
		t.Fatalf("second message: %v", err)
	}

	snap, _, err = env.routing.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if snap.FirstResponseTimeMs == nil || *snap.FirstResponseTimeMs != initial {
		t.Errorf("first_response_time_ms = %v, want unchanged %d", snap.FirstResponseTimeMs, initial)
	}
}

func TestReturnToBot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := uuid.New()
	agent := env.seedAgent(t, org, "ana")
	conv := env.seedConversation(t, org, domain.ConversationStatusWaitingForHuman)

	// nothing assigned yet
	_, err := env.routing.ReturnToBot(ctx, conv.ID)
	if !apierr.HasCode(err, apierr.CodeInvalidState) {
		t.Errorf("err = %v, want code %s", err, apierr.CodeInvalidState)
	}

	if _, err := env.routing.AssignToAgent(ctx, conv.ID, agent.ID); err != nil {
		t.Fatalf("AssignToAgent: %v", err)
	}
	got, err := env.routing.ReturnToBot(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ReturnToBot: %v", err)
	}
	if got.Status != domain.ConversationStatusActive || got.AssignedToID != nil {
		t.Errorf("after return: status=%q assigned_to=%v", got.Status, got.AssignedToID)
	}
	if av := env.availability(t, agent.ID, org); av.CurrentConversations != 0 {
		t.Errorf("counter = %d, want 0", av.CurrentConversations)
	}
}

func TestResolveAlreadyClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.seedConversation(t, uuid.New(), domain.ConversationStatusActive)

	if _, err := env.routing.Resolve(ctx, conv.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_, err := env.routing.Resolve(ctx, conv.ID)
	if !apierr.HasCode(err, apierr.CodeConversationClosed) {
		t.Errorf("err = %v, want code %s", err, apierr.CodeConversationClosed)
	}
}

func TestConversationNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.routing.RequestHandoff(ctx, uuid.New(), HandoffInput{})
	if !apierr.HasCode(err, apierr.CodeNotFound) {
		t.Errorf("RequestHandoff err = %v, want code %s", err, apierr.CodeNotFound)
	}
	_, _, err = env.routing.GetConversation(ctx, uuid.New())
	if !apierr.HasCode(err, apierr.CodeNotFound) {
		t.Errorf("GetConversation err = %v, want code %s", err, apierr.CodeNotFound)
	}
}

func TestSubmitFeedback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := uuid.New()
	agent := env.seedAgent(t, org, "ana")
	conv := env.seedConversation(t, org, domain.ConversationStatusWaitingForHuman)

	if _, err := env.routing.AssignToAgent(ctx, conv.ID, agent.ID); err != nil {
		t.Fatalf("AssignToAgent: %v", err)
	}
	msg, err := env.routing.SendAgentMessage(ctx, conv.ID, agent.ID, "does this help?", nil)
	if err != nil {
		t.Fatalf("SendAgentMessage: %v", err)
	}

	got, err := env.routing.SubmitFeedback(ctx, conv.ID, msg.ID, 4, strPtr("yes, thanks"))
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if got.FeedbackRating == nil || *got.FeedbackRating != 4 {
		t.Errorf("rating = %v, want 4", got.FeedbackRating)
	}

	// feedback is set once
	_, err = env.routing.SubmitFeedback(ctx, conv.ID, msg.ID, 1, nil)
	if !apierr.HasCode(err, apierr.CodeFeedbackExists) {
		t.Errorf("repeat feedback: err = %v, want code %s", err, apierr.CodeFeedbackExists)
	}

	// rating bounds
	for _, rating := range []int{0, 6} {
		if _, err := env.routing.SubmitFeedback(ctx, conv.ID, msg.ID, rating, nil); !apierr.HasCode(err, apierr.CodeInvalidInput) {
			t.Errorf("rating %d: err = %v, want code %s", rating, err, apierr.CodeInvalidInput)
		}
	}

	// message must belong to the conversation
	other := env.seedConversation(t, org, domain.ConversationStatusActive)
	if _, err := env.routing.SubmitFeedback(ctx, other.ID, msg.ID, 3, nil); !apierr.HasCode(err, apierr.CodeNotFound) {
		t.Errorf("cross-conversation feedback: err = %v, want code %s", err, apierr.CodeNotFound)
	}
}
