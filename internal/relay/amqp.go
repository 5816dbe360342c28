package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/relaydesk/relaydesk-backend/internal/platform/logger"
)

const producerName = "relaydesk-routing"

// Envelope is the wire shape published to the integrations exchange.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type Meta struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Producer string    `json:"producer"`
}

// Publisher mirrors engine events to an external broker. Routing key is the
// event type ("conversation.status", "agent.assigned", ...).
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, data any, emittedAt time.Time) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *logger.Logger
}

func New(url, exchange string, log *logger.Logger) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &rmqPublisher{
		conn:     conn,
		exchange: exchange,
		log:      log.With("component", "AMQPRelay"),
	}, nil
}

func (r *rmqPublisher) PublishEvent(ctx context.Context, eventType string, data any, emittedAt time.Time) error {
	env := Envelope{
		Meta: Meta{
			ID:       uuid.New().String(),
			Type:     eventType,
			Time:     emittedAt,
			Producer: producerName,
		},
		Data: data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, r.exchange, eventType, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    env.Meta.ID,
		Timestamp:    emittedAt,
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
}

func (r *rmqPublisher) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// NoopPublisher is wired when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishEvent(context.Context, string, any, time.Time) error { return nil }
func (NoopPublisher) Close() error                                               { return nil }
