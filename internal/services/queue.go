package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/pkg/dbctx"
	"github.com/relaydesk/relaydesk-backend/internal/platform/apierr"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/repos"
)

type QueueEntry struct {
	Conversation *domain.Conversation `json:"conversation"`
	WaitMs       int64                `json:"wait_ms"`
}

type QueueStats struct {
	CountsByStatus map[string]int64 `json:"counts_by_status"`
	QueuedCount    int              `json:"queued_count"`
	AverageWaitMs  int64            `json:"average_wait_ms"`
}

type QueueSnapshot struct {
	Entries []QueueEntry `json:"entries"`
	Stats   QueueStats   `json:"stats"`
}

// QueueService answers "who is waiting for a human" straight from the
// store, so a listing always reflects the latest committed routing
// transaction.
type QueueService interface {
	ListQueue(ctx context.Context, orgID uuid.UUID) (*QueueSnapshot, error)
}

type queueService struct {
	db    *gorm.DB
	log   *logger.Logger
	convs repos.ConversationRepo
}

func NewQueueService(db *gorm.DB, baseLog *logger.Logger, convRepo repos.ConversationRepo) QueueService {
	return &queueService{
		db:    db,
		log:   baseLog.With("service", "QueueService"),
		convs: convRepo,
	}
}

func (s *queueService) ListQueue(ctx context.Context, orgID uuid.UUID) (*QueueSnapshot, error) {
	if orgID == uuid.Nil {
		return nil, apierr.BadRequest(fmt.Errorf("missing organization_id"))
	}
	dbc := dbctx.Context{Ctx: ctx}

	waiting, err := s.convs.ListWaitingByOrg(dbc, orgID)
	if err != nil {
		return nil, err
	}
	counts, err := s.convs.CountByStatus(dbc, orgID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entries := make([]QueueEntry, 0, len(waiting))
	var totalWait int64
	for _, conv := range waiting {
		wait := now.Sub(conv.CreatedAt).Milliseconds()
		if wait < 0 {
			wait = 0
		}
		totalWait += wait
		entries = append(entries, QueueEntry{Conversation: conv, WaitMs: wait})
	}

	stats := QueueStats{
		CountsByStatus: counts,
		QueuedCount:    len(entries),
	}
	if len(entries) > 0 {
		stats.AverageWaitMs = totalWait / int64(len(entries))
	}

	return &QueueSnapshot{Entries: entries, Stats: stats}, nil
}
