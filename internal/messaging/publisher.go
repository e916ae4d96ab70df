package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"tableside/internal/logger"
)

const publishTimeout = 10 * time.Second

// Publisher pushes kitchen tickets onto the orders exchange.
type Publisher struct {
	conn   *Connection
	logger *logger.Logger
}

func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{conn: conn, logger: log}
}

// PublishTicket publishes a kitchen ticket as a persistent JSON message.
func (p *Publisher) PublishTicket(ctx context.Context, ticket interface{}) error {
	if p.conn.IsClosed() {
		if err := p.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	body, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.conn.Channel().PublishWithContext(ctx, OrdersExchange, TicketRoutingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		p.logger.Error("ticket_publish_failed",
			fmt.Sprintf("Failed to publish ticket to exchange %s", OrdersExchange),
			"", err, map[string]interface{}{
				"exchange":    OrdersExchange,
				"routing_key": TicketRoutingKey,
			})
		return fmt.Errorf("failed to publish ticket: %w", err)
	}

	p.logger.Debug("ticket_published", "Published kitchen ticket", "", map[string]interface{}{
		"routing_key":  TicketRoutingKey,
		"message_size": len(body),
	})

	return nil
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
