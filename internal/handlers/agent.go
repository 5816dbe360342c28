package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/requestdata"
	"github.com/relaydesk/relaydesk-backend/internal/services"
)

type AgentHandler struct {
	Log      *logger.Logger
	Registry services.RegistryService
}

func NewAgentHandler(log *logger.Logger, registry services.RegistryService) *AgentHandler {
	return &AgentHandler{
		Log:      log.With("handler", "AgentHandler"),
		Registry: registry,
	}
}

type setAvailabilityRequest struct {
	Status           string `json:"status"`
	MaxConversations *int   `json:"max_conversations"`
}

func (h *AgentHandler) SetAvailability(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req setAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	av, err := h.Registry.SetAvailability(c.Request.Context(), rd.AgentID, rd.OrganizationID, req.Status, req.MaxConversations)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, av)
}

func (h *AgentHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	agents, err := h.Registry.GetAgents(c.Request.Context(), rd.OrganizationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"agents": agents})
}
