package repos

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/pkg/dbctx"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
)

type ConversationRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Conversation) ([]*domain.Conversation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ListWaitingByOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*domain.Conversation, error)
	CountByStatus(dbc dbctx.Context, orgID uuid.UUID) (map[string]int64, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: log.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) Create(dbc dbctx.Context, rows []*domain.Conversation) ([]*domain.Conversation, error) {
	if len(rows) == 0 {
		return []*domain.Conversation{}, nil
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

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.Conversation
	if err := txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// LockByID takes a row lock on the conversation for the duration of the
// surrounding transaction. Every routing engine mutation goes through this,
// which serializes concurrent operations on the same conversation.
func (r *conversationRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	q := dbc.Tx.WithContext(dbc.Ctx)
	if lockable(dbc.Tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out domain.Conversation
	if err := q.Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *conversationRepo) ListWaitingByOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*domain.Conversation, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("missing organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.Conversation
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("organization_id = ? AND status = ?", orgID, domain.ConversationStatusWaitingForHuman).
		Order("priority DESC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conversationRepo) CountByStatus(dbc dbctx.Context, orgID uuid.UUID) (map[string]int64, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("missing organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var rows []struct {
		Status string
		N      int64
	}
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Select("status, COUNT(*) AS n").
		Where("organization_id = ?", orgID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
