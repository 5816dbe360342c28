package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/relaydesk/relaydesk-backend/internal/handlers"
	"github.com/relaydesk/relaydesk-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName         string
	AllowOrigins        []string
	AuthMiddleware      *middleware.AuthMiddleware
	ConversationHandler *handlers.ConversationHandler
	AgentHandler        *handlers.AgentHandler
	QueueHandler        *handlers.QueueHandler
	StreamHandler       *handlers.StreamHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		// conversation lifecycle
		api.GET("/conversations/:id", cfg.ConversationHandler.Get)
		api.POST("/conversations/:id/handoff", cfg.ConversationHandler.RequestHandoff)
		api.POST("/conversations/:id/assign", cfg.ConversationHandler.Assign)
		api.POST("/conversations/:id/messages", cfg.ConversationHandler.SendMessage)
		api.POST("/conversations/:id/messages/:messageID/feedback", cfg.ConversationHandler.SubmitFeedback)
		api.POST("/conversations/:id/return", cfg.ConversationHandler.ReturnToBot)
		api.POST("/conversations/:id/resolve", cfg.ConversationHandler.Resolve)

		// agents
		api.GET("/agents", cfg.AgentHandler.List)
		api.PUT("/agents/availability", cfg.AgentHandler.SetAvailability)

		// queue + realtime
		api.GET("/queue", cfg.QueueHandler.List)
		api.GET("/stream", cfg.StreamHandler.Stream)
	}

	return router
}
