// Package ticketfeed consumes the kitchen ticket queue and renders each
// ticket for display and printing systems in the kitchen.
package ticketfeed

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tableside/internal/logger"
	"tableside/internal/messaging"
	"tableside/internal/models"
)

// Feed is the kitchen-side ticket consumer.
type Feed struct {
	consumer *messaging.Consumer
	logger   *logger.Logger

	shutdown chan os.Signal
	done     chan bool
}

// New creates a ticket feed over the given consumer.
func New(consumer *messaging.Consumer, log *logger.Logger) *Feed {
	return &Feed{
		consumer: consumer,
		logger:   log,
		shutdown: make(chan os.Signal, 1),
		done:     make(chan bool, 1),
	}
}

// Start consumes tickets until the context is cancelled or a shutdown signal
// arrives.
func (f *Feed) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	signal.Notify(f.shutdown, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := f.consumer.StartConsuming(ctx, f.handleTicket); err != nil && ctx.Err() == nil {
			f.logger.Error("consumer_failed", "Ticket consumer failed", requestID, err, nil)
		}
		f.done <- true
	}()

	f.logger.Info("ticket_feed_started", "Kitchen ticket feed started", requestID, map[string]interface{}{
		"queue": messaging.TicketQueue,
	})

	select {
	case <-f.shutdown:
		f.logger.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
		<-f.done
		return f.consumer.Close()
	case <-f.done:
		return nil
	}
}

// handleTicket renders one ticket. A parse failure is not requeued; a broken
// message stays broken.
func (f *Feed) handleTicket(_ context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var ticket models.TicketMessage
	if err := messaging.ParseMessage(body, &ticket); err != nil {
		f.logger.Error("ticket_parse_failed", "Failed to parse ticket message", requestID, err, nil)
		return nil
	}

	fmt.Println(render(&ticket))

	f.logger.Info("ticket_printed", fmt.Sprintf("Ticket for table %s", ticket.TableNumber), requestID, map[string]interface{}{
		"order_id":     ticket.OrderID,
		"table_number": ticket.TableNumber,
		"item_count":   len(ticket.Items),
	})
	return nil
}

// render formats a ticket the way the kitchen printer expects it.
func render(ticket *models.TicketMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== TABLE %s ===\n", ticket.TableNumber)
	fmt.Fprintf(&b, "order %s\n", ticket.OrderID)
	fmt.Fprintf(&b, "placed %s\n", ticket.PlacedAt.Format("15:04:05"))
	b.WriteString(strings.Repeat("-", 24) + "\n")
	for _, line := range ticket.Items {
		fmt.Fprintf(&b, "%2dx %s\n", line.Quantity, line.Name)
		if line.SpecialInstructions != "" {
			fmt.Fprintf(&b, "    * %s\n", line.SpecialInstructions)
		}
	}
	b.WriteString(strings.Repeat("-", 24) + "\n")
	fmt.Fprintf(&b, "total %.2f\n", ticket.TotalAmount)
	return b.String()
}
