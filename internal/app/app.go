package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaydesk/relaydesk-backend/internal/db"
	"github.com/relaydesk/relaydesk-backend/internal/middleware"
	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/realtime"
	"github.com/relaydesk/relaydesk-backend/internal/realtime/bus"
	"github.com/relaydesk/relaydesk-backend/internal/relay"
	"github.com/relaydesk/relaydesk-backend/internal/server"
)

const serviceName = "relaydesk-backend"

type App struct {
	Cfg    Config
	Log    *logger.Logger
	Router *gin.Engine
	Hub    *realtime.Hub

	Repos    Repos
	Services Services
	Handlers Handlers

	postgres *db.PostgresService
	bus      bus.Bus
	relay    relay.Publisher

	httpServer *http.Server
}

func New() (*App, error) {
	bootLog, err := logger.New("development")
	if err != nil {
		return nil, fmt.Errorf("bootstrap logger: %w", err)
	}

	cfg, err := LoadConfig(bootLog)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, err
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	hub := realtime.NewHub(log)

	var eventBus bus.Bus
	if cfg.RedisAddr != "" {
		eventBus, err = bus.NewRedisBus(log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return nil, err
		}
	}

	var pub relay.Publisher
	if cfg.AMQPURL != "" {
		pub, err = relay.New(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			return nil, err
		}
	}

	r := wireRepos(pg.DB(), log)
	svcs := wireServices(pg.DB(), log, r, hub, eventBus, pub)
	h := wireHandlers(log, svcs, hub)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.RouterConfig{
		ServiceName:         serviceName,
		AllowOrigins:        cfg.AllowOrigins,
		AuthMiddleware:      middleware.NewAuthMiddleware(log, cfg.JWTSecret),
		ConversationHandler: h.Conversation,
		AgentHandler:        h.Agent,
		QueueHandler:        h.Queue,
		StreamHandler:       h.Stream,
	})

	return &App{
		Cfg:      cfg,
		Log:      log,
		Router:   router,
		Hub:      hub,
		Repos:    r,
		Services: svcs,
		Handlers: h,
		postgres: pg,
		bus:      eventBus,
		relay:    pub,
	}, nil
}

// Start launches background workers. The redis forwarder feeds cross-replica
// events into the local hub until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if a.bus != nil {
		if err := a.bus.StartForwarder(ctx, a.Hub.Publish); err != nil {
			return fmt.Errorf("start event forwarder: %w", err)
		}
	}
	return nil
}

func (a *App) Serve(ctx context.Context) error {
	a.httpServer = &http.Server{
		Addr:              ":" + a.Cfg.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.Log.Info("http server listening", "port", a.Cfg.Port)
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown", "error", err)
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.Log.Warn("bus close", "error", err)
		}
	}
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.Log.Warn("relay close", "error", err)
		}
	}
	a.Log.Sync()
}
