package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message is append-only. Feedback fields are the single exception: the end
// user may set them exactly once. InternalNote is visible to agents only and
// is stripped from end-user payloads by the delivery layer.
type Message struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Role            string     `gorm:"not null" json:"role"`
	Content         string     `gorm:"type:text;not null" json:"content"`
	IsFromAgent     bool       `gorm:"not null;default:false" json:"is_from_agent"`
	AgentID         *uuid.UUID `gorm:"type:uuid;index" json:"agent_id,omitempty"`
	InternalNote    *string    `gorm:"type:text" json:"internal_note,omitempty"`
	FeedbackRating  *int       `json:"feedback_rating,omitempty"`
	FeedbackComment *string    `gorm:"type:text" json:"feedback_comment,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;index" json:"created_at"`
}

func (Message) TableName() string { return "message" }

func (m *Message) HasFeedback() bool {
	return m.FeedbackRating != nil || m.FeedbackComment != nil
}
