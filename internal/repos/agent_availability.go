package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/pkg/dbctx"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
)

type AgentAvailabilityRepo interface {
	Upsert(dbc dbctx.Context, agentID, orgID uuid.UUID, status string, maxConversations *int) (*domain.AgentAvailability, error)
	GetByAgentOrg(dbc dbctx.Context, agentID, orgID uuid.UUID) (*domain.AgentAvailability, error)
	// LockOrCreate locks the availability row inside dbc.Tx, creating the
	// default offline row first when the agent never set a status.
	LockOrCreate(dbc dbctx.Context, agentID, orgID uuid.UUID) (*domain.AgentAvailability, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ListByOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*domain.AgentAvailability, error)
}

type agentAvailabilityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAgentAvailabilityRepo(db *gorm.DB, log *logger.Logger) AgentAvailabilityRepo {
	return &agentAvailabilityRepo{db: db, log: log.With("repo", "AgentAvailabilityRepo")}
}

func (r *agentAvailabilityRepo) Upsert(dbc dbctx.Context, agentID, orgID uuid.UUID, status string, maxConversations *int) (*domain.AgentAvailability, error) {
	if agentID == uuid.Nil || orgID == uuid.Nil {
		return nil, fmt.Errorf("missing agent_id or organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}

	row := &domain.AgentAvailability{
		ID:               uuid.New(),
		AgentID:          agentID,
		OrganizationID:   orgID,
		Status:           status,
		MaxConversations: domain.DefaultMaxConversations,
		UpdatedAt:        time.Now().UTC(),
	}
	if maxConversations != nil {
		row.MaxConversations = *maxConversations
	}

	assign := map[string]interface{}{
		"status":     status,
		"updated_at": row.UpdatedAt,
	}
	if maxConversations != nil {
		assign["max_conversations"] = *maxConversations
	}

	// current_conversations is deliberately absent from the assignment set:
	// only routing engine transactions may move the counter.
	if err := txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}, {Name: "organization_id"}},
			DoUpdates: clause.Assignments(assign),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByAgentOrg(dbc, agentID, orgID)
}

func (r *agentAvailabilityRepo) GetByAgentOrg(dbc dbctx.Context, agentID, orgID uuid.UUID) (*domain.AgentAvailability, error) {
	if agentID == uuid.Nil || orgID == uuid.Nil {
		return nil, fmt.Errorf("missing agent_id or organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.AgentAvailability
	if err := txx.WithContext(dbc.Ctx).
		Where("agent_id = ? AND organization_id = ?", agentID, orgID).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *agentAvailabilityRepo) LockOrCreate(dbc dbctx.Context, agentID, orgID uuid.UUID) (*domain.AgentAvailability, error) {
	if agentID == uuid.Nil || orgID == uuid.Nil {
		return nil, fmt.Errorf("missing agent_id or organization_id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockOrCreate requires dbc.Tx")
	}

	row, err := r.lock(dbc, agentID, orgID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &domain.AgentAvailability{
		ID:               uuid.New(),
		AgentID:          agentID,
		OrganizationID:   orgID,
		Status:           domain.AgentStatusOffline,
		MaxConversations: domain.DefaultMaxConversations,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := dbc.Tx.WithContext(dbc.Ctx).Create(fresh).Error; err != nil {
		if duplicateKey(err) {
			// lost the insert race to a concurrent transaction; lock theirs
			return r.lock(dbc, agentID, orgID)
		}
		return nil, err
	}
	return fresh, nil
}

func (r *agentAvailabilityRepo) lock(dbc dbctx.Context, agentID, orgID uuid.UUID) (*domain.AgentAvailability, error) {
	q := dbc.Tx.WithContext(dbc.Ctx)
	if lockable(dbc.Tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out domain.AgentAvailability
	if err := q.Where("agent_id = ? AND organization_id = ?", agentID, orgID).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *agentAvailabilityRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&domain.AgentAvailability{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *agentAvailabilityRepo) ListByOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*domain.AgentAvailability, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("missing organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.AgentAvailability
	if err := txx.WithContext(dbc.Ctx).
		Where("organization_id = ?", orgID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
