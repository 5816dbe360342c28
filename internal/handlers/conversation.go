package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/requestdata"
	"github.com/relaydesk/relaydesk-backend/internal/services"
)

type ConversationHandler struct {
	Log     *logger.Logger
	Routing services.RoutingService
}

func NewConversationHandler(log *logger.Logger, routing services.RoutingService) *ConversationHandler {
	return &ConversationHandler{
		Log:     log.With("handler", "ConversationHandler"),
		Routing: routing,
	}
}

type handoffRequest struct {
	Priority *int     `json:"priority"`
	Tags     []string `json:"tags"`
	Note     *string  `json:"note"`
}

func (h *ConversationHandler) RequestHandoff(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req handoffRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	conv, err := h.Routing.RequestHandoff(c.Request.Context(), convID, services.HandoffInput{
		Priority: req.Priority,
		Tags:     req.Tags,
		Note:     req.Note,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conv)
}

type assignRequest struct {
	AgentID *uuid.UUID `json:"agent_id"`
}

// Assign claims the conversation for the caller, or for another agent when
// the body names one (supervisor assignment).
func (h *ConversationHandler) Assign(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	agentID := rd.AgentID
	var req assignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.AgentID != nil && *req.AgentID != uuid.Nil {
			agentID = *req.AgentID
		}
	}

	conv, err := h.Routing.AssignToAgent(c.Request.Context(), convID, agentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conv)
}

type sendMessageRequest struct {
	Content      string  `json:"content"`
	InternalNote *string `json:"internal_note"`
}

func (h *ConversationHandler) SendMessage(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.Routing.SendAgentMessage(c.Request.Context(), convID, rd.AgentID, req.Content, req.InternalNote)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, msg)
}

func (h *ConversationHandler) ReturnToBot(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	conv, err := h.Routing.ReturnToBot(c.Request.Context(), convID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conv)
}

func (h *ConversationHandler) Resolve(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	conv, err := h.Routing.Resolve(c.Request.Context(), convID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conv)
}

// Get serves the snapshot half of the snapshot-then-subscribe protocol:
// dashboards fetch this before opening the event stream.
func (h *ConversationHandler) Get(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	conv, msgs, err := h.Routing.GetConversation(c.Request.Context(), convID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv, "messages": msgs})
}

type feedbackRequest struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment"`
}

func (h *ConversationHandler) SubmitFeedback(c *gin.Context) {
	convID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	msgID, ok := pathUUID(c, "messageID")
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.Routing.SubmitFeedback(c.Request.Context(), convID, msgID, req.Rating, req.Comment)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, msg)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return uuid.Nil, false
	}
	return id, true
}
