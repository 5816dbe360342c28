package app

import (
	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/repos"
)

type Repos struct {
	Conversations repos.ConversationRepo
	Messages      repos.MessageRepo
	Agents        repos.AgentRepo
	Availability  repos.AgentAvailabilityRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Conversations: repos.NewConversationRepo(db, log),
		Messages:      repos.NewMessageRepo(db, log),
		Agents:        repos.NewAgentRepo(db, log),
		Availability:  repos.NewAgentAvailabilityRepo(db, log),
	}
}
