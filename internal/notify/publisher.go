package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"church-chat-service/internal/observability"
)

// Routing keys for outbound notifications.
const (
	KeyGroupMessage  = "chat.message.group"
	KeyDirectMessage = "chat.message.direct"
)

// Envelope is the notification schema handed to the delivery service.
// Actual push/email/SMS fan-out happens downstream.
type Envelope struct {
	SchemaVersion int       `json:"schema_version"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	GroupID       *int      `json:"group_id,omitempty"`
	ReceiverID    *int      `json:"receiver_id,omitempty"`
	SenderID      int       `json:"sender_id"`
	SenderName    string    `json:"sender_name,omitempty"`
	Preview       string    `json:"preview,omitempty"`
	Room          string    `json:"room,omitempty"`
}

// Publisher sends outbound notification events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds an AMQP publisher or a noop publisher when the broker
// is not configured or unreachable. Notification delivery is best-effort; a
// missing broker must never take the chat service down.
func NewPublisher(amqpURL string, exchange string, log *zap.Logger) Publisher {
	if amqpURL == "" {
		log.Info("notifications disabled, using noop publisher", zap.String("reason", "empty amqp url"))
		return noopPublisher{log: log}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn("notifications disabled, using noop publisher", zap.Error(err))
		return noopPublisher{log: log}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("notifications disabled, using noop publisher", zap.Error(err))
		_ = conn.Close()
		return noopPublisher{log: log}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Warn("notifications disabled, using noop publisher", zap.Error(err))
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{log: log}
	}

	log.Info("notification publisher connected", zap.String("exchange", exchange))
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: log}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		p.log.Warn("notification publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	log *zap.Logger
}

func (n noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	n.log.Debug("noop notification publish", zap.String("routing_key", routingKey))
	return nil
}

func (noopPublisher) Close() error {
	return nil
}
