package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeActions Exchange = "vitrina.actions"
	ExchangeDLQ     Exchange = "vitrina.dlq"
)

const (
	QueueActionsDue       Queue = "actions.due"
	QueueActionsCompleted Queue = "actions.completed"
	QueueDLQActions       Queue = "dlq.actions"
)

const (
	RoutingKeyDue        RoutingKey = "due"
	RoutingKeyCompleted  RoutingKey = "completed"
	RoutingKeyDLQActions RoutingKey = "actions"
)

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентно:
// повторное объявление существующей топологии — no-op на стороне
// RabbitMQ, поэтому каждый процесс вызывает его при старте.
//
// Очередь actions.due объявляется с DLQ: битый nudge после Reject
// попадает в dlq.actions, а не крутится в очереди вечно.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeActions, ExchangeDLQ} {
			if err := ch.ExchangeDeclare(string(ex), "direct", true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		dlqArgs := amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQActions),
		}

		topology := []struct {
			queue    Queue
			args     amqp.Table
			key      RoutingKey
			exchange Exchange
		}{
			{QueueActionsDue, dlqArgs, RoutingKeyDue, ExchangeActions},
			{QueueActionsCompleted, nil, RoutingKeyCompleted, ExchangeActions},
			{QueueDLQActions, nil, RoutingKeyDLQActions, ExchangeDLQ},
		}

		for _, t := range topology {
			if _, err := ch.QueueDeclare(string(t.queue), true, false, false, false, t.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", t.queue, err)
			}
			if err := ch.QueueBind(string(t.queue), string(t.key), string(t.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", t.queue, t.exchange, err)
			}
		}
		return nil
	})
}
