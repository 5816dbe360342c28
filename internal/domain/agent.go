package domain

import (
	"time"

	"github.com/google/uuid"
)

// Agent is the identity record owned by the surrounding product's CRUD
// layer. The engine only reads it for the GetAgents join.
type Agent struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string    `gorm:"not null" json:"name"`
	Email          string    `gorm:"not null" json:"email"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (Agent) TableName() string { return "agent" }
