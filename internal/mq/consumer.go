package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Nudge — доставленное action.due сообщение. Это подсказка «action
// стал due», не команда: если action уже захвачен другим воркером,
// nudge просто подтверждается.
type Nudge struct {
	ActionID uuid.UUID
	TenantID uuid.UUID

	raw amqp.Delivery
}

// Ack подтверждает обработку nudge.
func (n *Nudge) Ack() error {
	return n.raw.Ack(false)
}

// Requeue возвращает nudge в очередь для повторной доставки.
func (n *Nudge) Requeue() error {
	return n.raw.Nack(false, true)
}

// Reject отправляет nudge в DLQ.
func (n *Nudge) Reject() error {
	return n.raw.Nack(false, false)
}

// NudgeHandler обрабатывает один nudge. Ack/Requeue/Reject — на
// стороне handler'а: только он знает, имеет ли смысл повтор.
type NudgeHandler func(ctx context.Context, n *Nudge) error

// NudgeConsumer потребляет action.due nudges для воркера.
//
// Цикл потребления переживает разрывы соединения: при закрытии
// канала доставки consumer ждёт переподключения Connection и
// подписывается заново.
type NudgeConsumer struct {
	conn     *Connection
	logger   *slog.Logger
	handler  NudgeHandler
	prefetch int

	cancelFunc context.CancelFunc
}

// NewNudgeConsumer создаёт consumer очереди actions.due.
func NewNudgeConsumer(conn *Connection, logger *slog.Logger, handler NudgeHandler, prefetch int) *NudgeConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &NudgeConsumer{
		conn:     conn,
		logger:   logger,
		handler:  handler,
		prefetch: prefetch,
	}
}

// Start блокируется, потребляя nudges до отмены контекста.
func (c *NudgeConsumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("subscribe to nudges", "error", err)
			if werr := c.awaitReconnect(ctx); werr != nil {
				return werr
			}
			continue
		}

		c.logger.Info("nudge consumer started", "queue", QueueActionsDue)
		if err := c.drain(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("nudge stream closed, resubscribing")
			if werr := c.awaitReconnect(ctx); werr != nil {
				return werr
			}
		}
	}
}

// Stop останавливает consumer.
func (c *NudgeConsumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *NudgeConsumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(string(QueueActionsDue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", QueueActionsDue, err)
	}
	return deliveries, nil
}

func (c *NudgeConsumer) awaitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		return nil
	}
}

// drain обрабатывает nudges до закрытия канала доставки.
func (c *NudgeConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.dispatch(ctx, raw)
		}
	}
}

// dispatch декодирует одно сообщение и передаёт его handler'у.
// Сообщение, не являющееся nudge'ем, уходит в DLQ.
func (c *NudgeConsumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	var env struct {
		ID      string           `json:"id"`
		Type    MessageType      `json:"type"`
		Payload ActionDuePayload `json:"payload"`
	}
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		c.logger.Error("malformed nudge", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}
	if env.Type != MessageTypeActionDue || env.Payload.ActionID == uuid.Nil {
		c.logger.Error("unexpected message in nudge queue", "type", env.Type, "message_id", env.ID)
		raw.Nack(false, false)
		return
	}

	nudge := &Nudge{
		ActionID: env.Payload.ActionID,
		TenantID: env.Payload.TenantID,
		raw:      raw,
	}

	c.logger.Debug("nudge received", "action_id", nudge.ActionID, "message_id", env.ID)

	if err := c.handler(ctx, nudge); err != nil {
		c.logger.Error("nudge handler failed", "action_id", nudge.ActionID, "error", err)
	}
}
