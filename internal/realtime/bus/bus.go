package bus

import (
	"context"

	"github.com/relaydesk/relaydesk-backend/internal/realtime"
)

// Bus relays events between process replicas so every dashboard sees every
// state change regardless of which replica committed it.
type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error
	Close() error
}
