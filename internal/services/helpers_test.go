package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relaydesk/relaydesk-backend/internal/domain"
	"github.com/relaydesk/relaydesk-backend/internal/pkg/dbctx"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/realtime"
	"github.com/relaydesk/relaydesk-backend/internal/repos"
)

// recordingSink captures emitted events so tests can assert on what was
// published after commit.
type recordingSink struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (s *recordingSink) Emit(_ context.Context, ev realtime.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []realtime.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type testEnv struct {
	db       *gorm.DB
	sink     *recordingSink
	routing  RoutingService
	registry RegistryService
	queue    QueueService
	convs    repos.ConversationRepo
	msgs     repos.MessageRepo
	agents   repos.AgentRepo
	avail    repos.AgentAvailabilityRepo
}

// newTestEnv wires the services against an in-memory sqlite database. The
// pool is pinned to a single connection so concurrent transactions
// serialize the same way row locks serialize them on Postgres.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := gdb.AutoMigrate(
		&domain.Agent{},
		&domain.AgentAvailability{},
		&domain.Conversation{},
		&domain.Message{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	convs := repos.NewConversationRepo(gdb, log)
	msgs := repos.NewMessageRepo(gdb, log)
	agents := repos.NewAgentRepo(gdb, log)
	avail := repos.NewAgentAvailabilityRepo(gdb, log)

	sink := &recordingSink{}
	notify := NewRoutingNotifier(sink)

	return &testEnv{
		db:       gdb,
		sink:     sink,
		routing:  NewRoutingService(gdb, log, convs, msgs, avail, notify),
		registry: NewRegistryService(gdb, log, agents, avail, notify),
		queue:    NewQueueService(gdb, log, convs),
		convs:    convs,
		msgs:     msgs,
		agents:   agents,
		avail:    avail,
	}
}

func (e *testEnv) seedConversation(t *testing.T, orgID uuid.UUID, status string) *domain.Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:             uuid.New(),
		SessionID:      uuid.New(),
		ChatbotID:      uuid.New(),
		WorkspaceID:    uuid.New(),
		OrganizationID: orgID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := e.convs.Create(dbctx.Context{Ctx: context.Background()}, []*domain.Conversation{conv}); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv
}

func (e *testEnv) seedAgent(t *testing.T, orgID uuid.UUID, name string) *domain.Agent {
	t.Helper()
	a := &domain.Agent{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		Email:          name + "@example.com",
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := e.agents.Create(dbctx.Context{Ctx: context.Background()}, []*domain.Agent{a}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return a
}

func (e *testEnv) availability(t *testing.T, agentID, orgID uuid.UUID) *domain.AgentAvailability {
	t.Helper()
	av, err := e.avail.GetByAgentOrg(dbctx.Context{Ctx: context.Background()}, agentID, orgID)
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	return av
}

func dbcBackground() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
