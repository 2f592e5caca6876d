package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeActionDue       MessageType = "action.due"
	MessageTypeActionCompleted MessageType = "action.completed"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// ActionDuePayload — payload для nudge о due action.
type ActionDuePayload struct {
	ActionID uuid.UUID `json:"action_id"`
	TenantID uuid.UUID `json:"tenant_id"`
}

// ActionCompletedPayload — payload для события о завершённом action.
type ActionCompletedPayload struct {
	ActionID uuid.UUID `json:"action_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Type     string    `json:"action_type"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	Attempts int       `json:"attempts"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishActionDue публикует nudge о due action.
// Потребитель: Worker (может захватить action раньше очередного poll'а).
func (p *Publisher) PublishActionDue(ctx context.Context, actionID, tenantID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeActionDue,
		Payload:   ActionDuePayload{ActionID: actionID, TenantID: tenantID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeActions, RoutingKeyDue, msg)
}

// PublishActionCompleted публикует событие о терминальном переходе action.
func (p *Publisher) PublishActionCompleted(ctx context.Context, payload ActionCompletedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeActionCompleted,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeActions, RoutingKeyCompleted, msg)
}
