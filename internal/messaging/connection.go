package messaging

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"tableside/internal/config"
	"tableside/internal/logger"
)

// Exchange and queue names for the kitchen ticket pipeline.
const (
	OrdersExchange   = "orders_topic"
	TicketQueue      = "kitchen_ticket_queue"
	TicketRoutingKey = "ticket.created"
)

const dialAttempts = 5

// Connection wraps an AMQP connection and channel. The topology is declared
// on every connect so either side of the pipeline can start first.
type Connection struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
}

// New dials RabbitMQ and declares the ticket topology, retrying with a
// growing backoff.
func New(cfg *config.Config, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		logger: log,
		url:    cfg.RabbitMQURL(),
	}

	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return c, nil
}

func (c *Connection) connect() error {
	var err error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		err = c.dial()
		if err == nil {
			return nil
		}

		if attempt < dialAttempts {
			backoff := time.Duration(attempt) * 2 * time.Second
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", backoff),
				"startup", err, nil)
			time.Sleep(backoff)
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, err)
}

func (c *Connection) dial() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.channel = channel

	if err := c.declareTopology(); err != nil {
		c.close()
		return err
	}
	return nil
}

func (c *Connection) declareTopology() error {
	err := c.channel.ExchangeDeclare(OrdersExchange, "topic", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", OrdersExchange, err)
	}

	// Tickets older than 15 minutes are stale for display systems.
	_, err = c.channel.QueueDeclare(TicketQueue, true, false, false, false, amqp091.Table{
		"x-message-ttl": 900000,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", TicketQueue, err)
	}

	if err := c.channel.QueueBind(TicketQueue, "ticket.*", OrdersExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", TicketQueue, err)
	}

	return nil
}

// Channel returns the current channel.
func (c *Connection) Channel() *amqp091.Channel {
	return c.channel
}

// IsClosed reports whether the underlying connection is gone.
func (c *Connection) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Reconnect drops the current connection and dials again.
func (c *Connection) Reconnect() error {
	c.close()
	return c.connect()
}

// Close shuts the channel and connection down.
func (c *Connection) Close() error {
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
