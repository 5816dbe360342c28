package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/realtime"
	"github.com/relaydesk/relaydesk-backend/internal/requestdata"
)

const defaultKeepalive = 15 * time.Second

const (
	frameConnected = "stream.connected"
	frameKeepalive = "stream.keepalive"
)

// StreamHandler adapts hub subscriptions into long-lived push connections.
// It buffers nothing itself: events flow from the client's hub channel
// straight to the response writer as newline-delimited JSON frames.
type StreamHandler struct {
	Log       *logger.Logger
	Hub       *realtime.Hub
	Keepalive time.Duration
}

func NewStreamHandler(log *logger.Logger, hub *realtime.Hub) *StreamHandler {
	return &StreamHandler{
		Log:       log.With("handler", "StreamHandler"),
		Hub:       hub,
		Keepalive: defaultKeepalive,
	}
}

type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Stream holds the connection open until the client disconnects. The
// subscription scope is the caller's organization, optionally narrowed to
// one conversation or one chatbot via query params. No history is replayed:
// callers fetch a snapshot first, then subscribe.
func (h *StreamHandler) Stream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.OrganizationID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	filter := realtime.Filter{OrganizationID: rd.OrganizationID}
	if raw := c.Query("conversation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
			return
		}
		filter.ConversationID = id
	}
	if raw := c.Query("chatbot_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chatbot_id"})
			return
		}
		filter.ChatbotID = id
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	client := h.Hub.Subscribe(filter)
	defer h.Hub.Unsubscribe(client)

	client.Logger.Info("stream open",
		"organization_id", filter.OrganizationID,
		"conversation_id", filter.ConversationID,
		"chatbot_id", filter.ChatbotID)

	if err := writeFrame(c.Writer, flusher, frame{Type: frameConnected}); err != nil {
		return
	}

	interval := h.Keepalive
	if interval <= 0 {
		interval = defaultKeepalive
	}
	keepalive := time.NewTicker(interval)
	defer keepalive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			client.Logger.Debug("stream client disconnected", "err", ctx.Err())
			return
		case <-client.Done():
			// dropped by the hub (slow consumer) or shutdown
			client.Logger.Debug("stream subscription closed")
			return
		case <-keepalive.C:
			if err := writeFrame(c.Writer, flusher, frame{Type: frameKeepalive}); err != nil {
				return
			}
		case ev := <-client.Outbound:
			if err := writeFrame(c.Writer, flusher, frame{Type: string(ev.Type), Payload: ev.Payload}); err != nil {
				client.Logger.Debug("stream write failed", "err", err)
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, f frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\n", raw); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
