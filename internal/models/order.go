package models

import (
	"time"

	"tableside/internal/apperr"
	"tableside/internal/auth"
)

// OrderStatus represents the lifecycle status of an order.
type OrderStatus string

const (
	StatusPlaced    OrderStatus = "placed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus represents the payment state of an order.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// OrderLine is an item on an order. Name and Price are snapshots taken from
// the menu catalog at order creation and never change afterwards.
type OrderLine struct {
	MenuItemID          string  `json:"menu_item_id" db:"menu_item_id"`
	Name                string  `json:"name" db:"name"`
	Quantity            int     `json:"quantity" db:"quantity"`
	Price               float64 `json:"price" db:"price"`
	SpecialInstructions string  `json:"special_instructions,omitempty" db:"special_instructions"`
}

// Order represents a customer order bound to a table.
type Order struct {
	ID                string        `json:"id" db:"id"`
	TableID           string        `json:"table_id" db:"table_id"`
	TableNumber       string        `json:"table_number,omitempty"`
	CustomerSessionID string        `json:"-" db:"customer_session_id"`
	Items             []OrderLine   `json:"items"`
	Status            OrderStatus   `json:"status" db:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status" db:"payment_status"`
	TotalAmount       float64       `json:"total_amount" db:"total_amount"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
	PreparedAt        *time.Time    `json:"prepared_at,omitempty" db:"prepared_at"`
	ReadyAt           *time.Time    `json:"ready_at,omitempty" db:"ready_at"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
}

// CalculateTotal returns the sum of line price times quantity.
func CalculateTotal(lines []OrderLine) float64 {
	total := 0.0
	for _, line := range lines {
		total += line.Price * float64(line.Quantity)
	}
	return total
}

// IsTerminal reports whether no further status mutation is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// nextStatus is the linear happy path of the order state machine. Cancellation
// is not listed here: it is only reachable through the cancel operation.
var nextStatus = map[OrderStatus]OrderStatus{
	StatusPlaced:    StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusDelivered,
}

// CanTransition reports whether target is the legal forward step from current.
func CanTransition(current, target OrderStatus) bool {
	if current.IsTerminal() {
		return false
	}
	return nextStatus[current] == target
}

// roleTargets is the transition authorization table: which target statuses
// each staff role may set. Admin may set any forward step; customers never
// transition through this operation and must use cancel.
var roleTargets = map[auth.Role]map[OrderStatus]bool{
	auth.RoleKitchen: {StatusPreparing: true, StatusReady: true},
	auth.RoleRunner:  {StatusDelivered: true},
	auth.RoleAdmin:   {StatusPreparing: true, StatusReady: true, StatusDelivered: true},
}

// RoleMaySet reports whether the acting role is permitted to set the target
// status at all, independent of the order's current state.
func RoleMaySet(role auth.Role, target OrderStatus) bool {
	return roleTargets[role][target]
}

// ValidOrderStatus parses a status string supplied by a client.
func ValidOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case StatusPlaced, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

// Table is a physical seating unit, the unit of QR-code scoping. Occupancy is
// mutated only by the order engine.
type Table struct {
	ID          string `json:"id" db:"id"`
	TableNumber string `json:"table_number" db:"table_number"`
	Capacity    int    `json:"capacity" db:"capacity"`
	IsOccupied  bool   `json:"is_occupied" db:"is_occupied"`
}

// MenuItem is read-mostly catalog reference data.
type MenuItem struct {
	ID          string  `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description,omitempty" db:"description"`
	Price       float64 `json:"price" db:"price"`
	Category    string  `json:"category" db:"category"`
	IsAvailable bool    `json:"is_available" db:"is_available"`
}

// CreateOrderLine is one requested line in an incoming order.
type CreateOrderLine struct {
	MenuItemID          string `json:"menu_item_id"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// CreateOrderRequest is the request to create a new order.
type CreateOrderRequest struct {
	TableID string            `json:"table_id"`
	Items   []CreateOrderLine `json:"items"`
}

const (
	maxOrderLines     = 20
	maxLineQuantity   = 10
	maxInstructionLen = 200
)

// Validate checks the request shape; referenced entities are resolved later
// against the catalog and table registry.
func (req *CreateOrderRequest) Validate() error {
	if req.TableID == "" {
		return apperr.InvalidInput("table_id is required")
	}
	if len(req.Items) == 0 {
		return apperr.InvalidInput("items array cannot be empty")
	}
	if len(req.Items) > maxOrderLines {
		return apperr.InvalidInput("items array cannot contain more than %d items", maxOrderLines)
	}

	for i, line := range req.Items {
		if line.MenuItemID == "" {
			return apperr.InvalidInput("items[%d].menu_item_id is required", i)
		}
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			return apperr.InvalidInput("items[%d].quantity must be between 1 and %d", i, maxLineQuantity)
		}
		if len(line.SpecialInstructions) > maxInstructionLen {
			return apperr.InvalidInput("items[%d].special_instructions must not exceed %d characters", i, maxInstructionLen)
		}
	}

	return nil
}

// UpdateStatusRequest is the request to transition an order's status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}
