package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/pkg/dbctx"
	"github.com/relaydesk/relaydesk-backend/internal/platform/apierr"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/repos"
)

// RegistryService tracks agent presence and capacity configuration. The
// conversation counter itself moves only inside routing engine transactions.
type RegistryService interface {
	SetAvailability(ctx context.Context, agentID, orgID uuid.UUID, status string, maxConversations *int) (*domain.AgentAvailability, error)
	GetAgents(ctx context.Context, orgID uuid.UUID) ([]*domain.AgentWithAvailability, error)
}

type registryService struct {
	db     *gorm.DB
	log    *logger.Logger
	agents repos.AgentRepo
	avail  repos.AgentAvailabilityRepo
	notify RoutingNotifier
}

func NewRegistryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	agentRepo repos.AgentRepo,
	availRepo repos.AgentAvailabilityRepo,
	notify RoutingNotifier,
) RegistryService {
	return &registryService{
		db:     db,
		log:    baseLog.With("service", "RegistryService"),
		agents: agentRepo,
		avail:  availRepo,
		notify: notify,
	}
}

func (s *registryService) SetAvailability(ctx context.Context, agentID, orgID uuid.UUID, status string, maxConversations *int) (*domain.AgentAvailability, error) {
	if agentID == uuid.Nil || orgID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("missing agent_id or organization_id"))
	}
	if !domain.ValidAgentStatus(status) {
		return nil, apierr.BadRequest(fmt.Errorf("invalid agent status %q", status))
	}
	if maxConversations != nil && *maxConversations < 1 {
		return nil, apierr.BadRequest(fmt.Errorf("max_conversations must be at least 1"))
	}

	av, err := s.avail.Upsert(dbctx.Context{Ctx: ctx}, agentID, orgID, status, maxConversations)
	if err != nil {
		return nil, err
	}

	s.log.Info("agent availability set", "agent_id", agentID, "status", status,
		"max_conversations", av.MaxConversations)
	s.notify.AgentStatus(av)
	return av, nil
}

func (s *registryService) GetAgents(ctx context.Context, orgID uuid.UUID) ([]*domain.AgentWithAvailability, error) {
	if orgID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("missing organization_id"))
	}
	dbc := dbctx.Context{Ctx: ctx}

	agents, err := s.agents.ListByOrg(dbc, orgID)
	if err != nil {
		return nil, err
	}
	avails, err := s.avail.ListByOrg(dbc, orgID)
	if err != nil {
		return nil, err
	}

	byAgent := make(map[uuid.UUID]*domain.AgentAvailability, len(avails))
	for _, av := range avails {
		byAgent[av.AgentID] = av
	}

	out := make([]*domain.AgentWithAvailability, 0, len(agents))
	for _, a := range agents {
		row := &domain.AgentWithAvailability{Agent: *a}
		if av, ok := byAgent[a.ID]; ok {
			row.Availability = *av
		} else {
			// never set a status: offline with defaults
			row.Availability = domain.AgentAvailability{
				AgentID:          a.ID,
				OrganizationID:   orgID,
				Status:           domain.AgentStatusOffline,
				MaxConversations: domain.DefaultMaxConversations,
			}
		}
		out = append(out, row)
	}
	return out, nil
}
