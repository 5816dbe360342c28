package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/requestdata"
	"github.com/relaydesk/relaydesk-backend/internal/services"
)

type QueueHandler struct {
	Log   *logger.Logger
	Queue services.QueueService
}

func NewQueueHandler(log *logger.Logger, queue services.QueueService) *QueueHandler {
	return &QueueHandler{
		Log:   log.With("handler", "QueueHandler"),
		Queue: queue,
	}
}

func (h *QueueHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	snapshot, err := h.Queue.ListQueue(c.Request.Context(), rd.OrganizationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, snapshot)
}
