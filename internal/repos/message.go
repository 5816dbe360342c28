package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/pkg/dbctx"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Message) ([]*domain.Message, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Message, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// SetFeedback is a conditional write: it succeeds only while both
	// feedback fields are still unset, making feedback set-exactly-once
	// without a row lock.
	SetFeedback(dbc dbctx.Context, id uuid.UUID, rating int, comment *string) (bool, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, rows []*domain.Message) ([]*domain.Message, error) {
	if len(rows) == 0 {
		return []*domain.Message{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *messageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Message, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.Message
	if err := txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *messageRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.Message
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) SetFeedback(dbc dbctx.Context, id uuid.UUID, rating int, comment *string) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Where("id = ? AND feedback_rating IS NULL AND feedback_comment IS NULL", id).
		Updates(map[string]interface{}{
			"feedback_rating":  rating,
			"feedback_comment": comment,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *messageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(updates).Error
}
