package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
)

// Client is one subscription handle. Outbound is a bounded buffer: when the
// hub cannot enqueue, the client is dropped rather than allowed to
// backpressure publishers.
type Client struct {
	ID       uuid.UUID
	Filter   Filter
	Outbound chan Event
	Logger   *logger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed when the hub drops the client or Unsubscribe is called.
// Stream handlers select on it to terminate their connection.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}
