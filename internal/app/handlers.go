package app

import (
	"github.com/relaydesk/relaydesk-backend/internal/handlers"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/realtime"
)

type Handlers struct {
	Conversation *handlers.ConversationHandler
	Agent        *handlers.AgentHandler
	Queue        *handlers.QueueHandler
	Stream       *handlers.StreamHandler
}

func wireHandlers(log *logger.Logger, svcs Services, hub *realtime.Hub) Handlers {
	return Handlers{
		Conversation: handlers.NewConversationHandler(log, svcs.Routing),
		Agent:        handlers.NewAgentHandler(log, svcs.Registry),
		Queue:        handlers.NewQueueHandler(log, svcs.Queue),
		Stream:       handlers.NewStreamHandler(log, hub),
	}
}
