package models

import (
	"time"

	"tableside/internal/auth"
)

// Streaming notification types delivered over the realtime channel. Each
// event carries a full current snapshot, not a diff.
const (
	EventOrderCreated         = "order_created"
	EventOrderStatusUpdated   = "order_status_updated"
	EventPaymentStatusUpdated = "payment_status_updated"
)

// Event is the envelope broadcast to realtime rooms.
type Event struct {
	Type      string         `json:"type"`
	Order     *Order         `json:"order,omitempty"`
	Payment   *PaymentUpdate `json:"payment,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PaymentUpdate is the payment-status snapshot sent to a table room.
type PaymentUpdate struct {
	OrderID            string                 `json:"order_id"`
	TableID            string                 `json:"table_id"`
	Status             PaymentLifecycleStatus `json:"status"`
	OrderPaymentStatus PaymentStatus          `json:"order_payment_status"`
}

// RoleRoom names the broadcast room for a staff role.
func RoleRoom(role auth.Role) string {
	return string(role)
}

// TableRoom names the broadcast room for a table.
func TableRoom(tableID string) string {
	return "table-" + tableID
}

// TicketLine is one line of a kitchen ticket.
type TicketLine struct {
	Name                string `json:"name"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// TicketMessage is published to the kitchen ticket queue when an order is
// placed, for display and printing systems.
type TicketMessage struct {
	OrderID     string       `json:"order_id"`
	TableNumber string       `json:"table_number"`
	Items       []TicketLine `json:"items"`
	TotalAmount float64      `json:"total_amount"`
	PlacedAt    time.Time    `json:"placed_at"`
}

// NewTicketMessage builds the kitchen ticket for a freshly placed order.
func NewTicketMessage(order *Order) *TicketMessage {
	ticket := &TicketMessage{
		OrderID:     order.ID,
		TableNumber: order.TableNumber,
		TotalAmount: order.TotalAmount,
		PlacedAt:    order.CreatedAt,
	}
	for _, line := range order.Items {
		ticket.Items = append(ticket.Items, TicketLine{
			Name:                line.Name,
			Quantity:            line.Quantity,
			SpecialInstructions: line.SpecialInstructions,
		})
	}
	return ticket
}
