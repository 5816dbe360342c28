package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/pkg/dbctx"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
)

type AgentRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Agent) ([]*domain.Agent, error)
	ListByOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*domain.Agent, error)
}

type agentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAgentRepo(db *gorm.DB, log *logger.Logger) AgentRepo {
	return &agentRepo{db: db, log: log.With("repo", "AgentRepo")}
}

func (r *agentRepo) Create(dbc dbctx.Context, rows []*domain.Agent) ([]*domain.Agent, error) {
	if len(rows) == 0 {
		return []*domain.Agent{}, nil
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

func (r *agentRepo) ListByOrg(dbc dbctx.Context, orgID uuid.UUID) ([]*domain.Agent, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("missing organization_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.Agent
	if err := txx.WithContext(dbc.Ctx).
		Order("name ASC").
		Where("organization_id = ?", orgID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
