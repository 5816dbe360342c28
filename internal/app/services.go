package app

import (
	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/realtime"
	"github.com/relaydesk/relaydesk-backend/internal/realtime/bus"
	"github.com/relaydesk/relaydesk-backend/internal/relay"
	"github.com/relaydesk/relaydesk-backend/internal/services"
)

type Services struct {
	Routing  services.RoutingService
	Registry services.RegistryService
	Queue    services.QueueService
}

// wireServices builds the event sink chain and the services on top of it.
// With a redis bus configured, local emits go through redis and come back
// via the forwarder, so every replica's hub sees every event exactly once.
// Without one, emits go straight into the local hub.
func wireServices(db *gorm.DB, log *logger.Logger, r Repos, hub *realtime.Hub, eventBus bus.Bus, pub relay.Publisher) Services {
	var sinks services.MultiSink
	if eventBus != nil {
		sinks = append(sinks, &services.BusSink{Bus: eventBus, Log: log})
	} else {
		sinks = append(sinks, &services.HubSink{Hub: hub})
	}
	if pub != nil {
		sinks = append(sinks, &services.RelaySink{Pub: pub, Log: log})
	}

	notify := services.NewRoutingNotifier(sinks)

	return Services{
		Routing:  services.NewRoutingService(db, log, r.Conversations, r.Messages, r.Availability, notify),
		Registry: services.NewRegistryService(db, log, r.Agents, r.Availability, notify),
		Queue:    services.NewQueueService(db, log, r.Conversations),
	}
}
