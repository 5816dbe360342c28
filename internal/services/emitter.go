package services

import (
	"context"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
	"github.com/relaydesk/relaydesk-backend/internal/realtime"
	"github.com/relaydesk/relaydesk-backend/internal/realtime/bus"
	"github.com/relaydesk/relaydesk-backend/internal/relay"
)

// EventSink receives every committed state change. Emit must not block on
// slow consumers; failures are logged, never propagated to the caller.
type EventSink interface {
	Emit(ctx context.Context, ev realtime.Event)
}

// HubSink broadcasts into the local in-process hub.
type HubSink struct{ Hub *realtime.Hub }

func (s *HubSink) Emit(_ context.Context, ev realtime.Event) {
	s.Hub.Publish(ev)
}

// BusSink publishes through redis so other replicas forward the event into
// their own hubs.
type BusSink struct {
	Bus bus.Bus
	Log *logger.Logger
}

func (s *BusSink) Emit(ctx context.Context, ev realtime.Event) {
	if err := s.Bus.Publish(ctx, ev); err != nil && s.Log != nil {
		s.Log.Warn("bus publish failed", "event", ev.Type, "error", err)
	}
}

// RelaySink mirrors events to the external AMQP exchange for out-of-product
// integrations.
type RelaySink struct {
	Pub relay.Publisher
	Log *logger.Logger
}

func (s *RelaySink) Emit(ctx context.Context, ev realtime.Event) {
	if err := s.Pub.PublishEvent(ctx, string(ev.Type), ev.Payload, ev.EmittedAt); err != nil && s.Log != nil {
		s.Log.Warn("relay publish failed", "event", ev.Type, "error", err)
	}
}

// MultiSink fans one emit out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev realtime.Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
