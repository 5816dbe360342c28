package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ConversationStatusActive          = "active"
	ConversationStatusWaitingForHuman = "waiting_for_human"
	ConversationStatusHandedOff       = "handed_off"
	ConversationStatusClosed          = "closed"
)

// Conversation is one end-user chat session. Status and AssignedToID are
// written only by the routing engine; AssignedToID is non-nil exactly when
// Status is handed_off.
type Conversation struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	ChatbotID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"chatbot_id"`
	WorkspaceID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	OrganizationID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	Status              string         `gorm:"not null;default:'active';index" json:"status"`
	AssignedToID        *uuid.UUID     `gorm:"type:uuid;index" json:"assigned_to_id,omitempty"`
	Priority            int            `gorm:"not null;default:0" json:"priority"`
	Tags                datatypes.JSON `gorm:"type:jsonb" json:"tags,omitempty"`
	FirstResponseTimeMs *int64         `json:"first_response_time_ms,omitempty"`
	LastMessageAt       *time.Time     `json:"last_message_at,omitempty"`
	ClosedAt            *time.Time     `json:"closed_at,omitempty"`
	CreatedAt           time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversation" }

func (c *Conversation) IsClosed() bool {
	return c.Status == ConversationStatusClosed
}

func ValidConversationStatus(s string) bool {
	switch s {
	case ConversationStatusActive, ConversationStatusWaitingForHuman,
		ConversationStatusHandedOff, ConversationStatusClosed:
		return true
	default:
		return false
	}
}
