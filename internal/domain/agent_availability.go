package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	AgentStatusAvailable = "available"
	AgentStatusAway      = "away"
	AgentStatusOffline   = "offline"
)

const DefaultMaxConversations = 3

// AgentAvailability is one row per agent per organization.
// CurrentConversations is maintained only inside routing engine
// transactions; SetAvailability never touches it.
type AgentAvailability struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AgentID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_agent_org" json:"agent_id"`
	OrganizationID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_agent_org" json:"organization_id"`
	Status               string    `gorm:"not null;default:'offline'" json:"status"`
	MaxConversations     int       `gorm:"not null;default:3" json:"max_conversations"`
	CurrentConversations int       `gorm:"not null;default:0" json:"current_conversations"`
	UpdatedAt            time.Time `gorm:"not null" json:"updated_at"`
}

func (AgentAvailability) TableName() string { return "agent_availability" }

func (a *AgentAvailability) AtCapacity() bool {
	return a.CurrentConversations >= a.MaxConversations
}

func ValidAgentStatus(s string) bool {
	switch s {
	case AgentStatusAvailable, AgentStatusAway, AgentStatusOffline:
		return true
	default:
		return false
	}
}

// AgentWithAvailability is the GetAgents row: identity joined with
// availability, defaulted when the agent never set a status.
type AgentWithAvailability struct {
	Agent        Agent             `json:"agent"`
	Availability AgentAvailability `json:"availability"`
}
