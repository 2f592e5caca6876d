package mq

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Задержки переподключения.
const (
	redialBase = time.Second
	redialCap  = 30 * time.Second
)

// Connection держит AMQP-соединение и один канал, переподключаясь
// при разрыве. Потеря соединения не критична: очередь лишь ускоряет
// подхват due actions, источник истины — таблица actions.
type Connection struct {
	addr   string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	done        chan struct{}
	reconnected chan struct{}
}

// NewConnection открывает соединение с RabbitMQ и запускает
// мониторинг разрывов.
func NewConnection(addr string, logger *slog.Logger) (*Connection, error) {
	c := &Connection{
		addr:        addr,
		logger:      logger,
		done:        make(chan struct{}),
		reconnected: make(chan struct{}, 1),
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	go c.monitor()
	return c, nil
}

// dial устанавливает соединение и открывает канал.
func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.addr)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// monitor ждёт разрыва соединения и перезванивается с backoff'ом.
func (c *Connection) monitor() {
	for {
		c.mu.RLock()
		closed, conn := c.closed, c.conn
		c.mu.RUnlock()
		if closed {
			return
		}

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case amqpErr := <-notify:
			if amqpErr != nil {
				c.logger.Warn("connection lost", "error", amqpErr)
			}
		}

		delay := redialBase
		for {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if closed {
				return
			}

			time.Sleep(delay)
			if err := c.dial(); err != nil {
				c.logger.Warn("redial failed", "error", err, "next_in", delay)
				delay = min(delay*2, redialCap)
				continue
			}
			// Будим подписчиков (consumer перезапускает потребление).
			select {
			case c.reconnected <- struct{}{}:
			default:
			}
			break
		}
	}
}

// Channel возвращает текущий AMQP-канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify возвращает канал уведомлений о переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnected
}

// WithChannel выполняет fn с текущим каналом.
func (c *Connection) WithChannel(fn func(ch *amqp.Channel) error) error {
	ch := c.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}
	return fn(ch)
}

// Close закрывает канал и соединение. Повторный вызов — no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = fmt.Errorf("close channel: %w", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connection: %w", err)
		}
	}
	return firstErr
}
