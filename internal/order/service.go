// Package order implements the order lifecycle: creation, the status state
// machine, cancellation and the read paths.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tableside/internal/apperr"
	"tableside/internal/auth"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// cancelWindow is how long the owning session may cancel a placed order.
const cancelWindow = 5 * time.Minute

// publicLookupWindow bounds the unauthenticated receipt lookup.
const publicLookupWindow = 24 * time.Hour

// Repository persists orders.
type Repository interface {
	Insert(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error)
	ListByTable(ctx context.Context, tableID string) ([]models.Order, error)
	// UpdateStatus applies target only when the row still carries expected.
	// It reports false when a concurrent transition won the race.
	UpdateStatus(ctx context.Context, id string, target, expected models.OrderStatus) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error
}

// Catalog resolves menu items for line pricing.
type Catalog interface {
	FindItem(ctx context.Context, id string) (*models.MenuItem, error)
}

// TableRegistry resolves tables and tracks their occupancy.
type TableRegistry interface {
	FindTable(ctx context.Context, id string) (*models.Table, error)
	SetOccupied(ctx context.Context, id string, occupied bool) error
}

// Notifier fans order events out to connected clients. Implementations must
// not block; delivery is best effort.
type Notifier interface {
	OrderCreated(order *models.Order)
	OrderStatusUpdated(order *models.Order)
}

// TicketQueue publishes kitchen tickets for freshly placed orders.
type TicketQueue interface {
	PublishTicket(ctx context.Context, ticket interface{}) error
}

// Service is the order engine.
type Service struct {
	repo    Repository
	catalog Catalog
	tables  TableRegistry
	notify  Notifier
	tickets TicketQueue
	logger  *logger.Logger
	now     func() time.Time
}

// NewService creates the order engine with its collaborators.
func NewService(repo Repository, catalog Catalog, tables TableRegistry,
	notify Notifier, tickets TicketQueue, log *logger.Logger) *Service {

	return &Service{
		repo:    repo,
		catalog: catalog,
		tables:  tables,
		notify:  notify,
		tickets: tickets,
		logger:  log,
		now:     time.Now,
	}
}

// CreateOrder validates and persists a new order for the caller's session,
// then marks the table occupied, publishes the kitchen ticket and notifies
// staff rooms. Notifications happen only after the transaction commits.
func (s *Service) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, sessionID, requestID string) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	table, err := s.tables.FindTable(ctx, req.TableID)
	if err != nil {
		return nil, err
	}

	lines := make([]models.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		menuItem, err := s.catalog.FindItem(ctx, item.MenuItemID)
		if err != nil {
			return nil, err
		}
		if !menuItem.IsAvailable {
			return nil, apperr.Unavailable("menu item %s is currently unavailable", menuItem.Name)
		}
		lines = append(lines, models.OrderLine{
			MenuItemID:          menuItem.ID,
			Name:                menuItem.Name,
			Quantity:            item.Quantity,
			Price:               menuItem.Price,
			SpecialInstructions: item.SpecialInstructions,
		})
	}

	order := &models.Order{
		ID:                uuid.NewString(),
		TableID:           table.ID,
		TableNumber:       table.TableNumber,
		CustomerSessionID: sessionID,
		Items:             lines,
		Status:            models.StatusPlaced,
		PaymentStatus:     models.PaymentPending,
		TotalAmount:       models.CalculateTotal(lines),
	}

	if err := s.repo.Insert(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	// Occupancy and the ticket feed are side channels; their failure never
	// rolls back a committed order.
	if err := s.tables.SetOccupied(ctx, table.ID, true); err != nil {
		s.logger.Error("table_occupy_failed", "Failed to mark table occupied", requestID, err, map[string]interface{}{
			"table_id": table.ID,
			"order_id": order.ID,
		})
	}
	if err := s.tickets.PublishTicket(ctx, models.NewTicketMessage(order)); err != nil {
		s.logger.Error("ticket_publish_failed", "Failed to publish kitchen ticket", requestID, err, map[string]interface{}{
			"order_id": order.ID,
		})
	}

	s.notify.OrderCreated(order)

	s.logger.Info("order_created", fmt.Sprintf("Order created for table %s", table.TableNumber), requestID, map[string]interface{}{
		"order_id":     order.ID,
		"table_id":     table.ID,
		"total_amount": order.TotalAmount,
		"item_count":   len(order.Items),
	})

	return order, nil
}

// UpdateStatus transitions an order along the forward path on behalf of a
// staff identity. The same method serves HTTP and websocket callers.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string, identity auth.Identity, requestID string) (*models.Order, error) {
	target, ok := models.ValidOrderStatus(status)
	if !ok {
		return nil, apperr.InvalidInput("unknown order status %q", status)
	}

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !models.RoleMaySet(identity.Role, target) {
		return nil, apperr.Forbidden("role %s may not set status %s", identity.Role, target)
	}
	if !models.CanTransition(order.Status, target) {
		return nil, apperr.InvalidState("cannot transition order from %s to %s", order.Status, target)
	}

	applied, err := s.repo.UpdateStatus(ctx, orderID, target, order.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !applied {
		return nil, apperr.InvalidState("order %s was transitioned concurrently", orderID)
	}

	updated, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if target == models.StatusDelivered {
		s.freeTable(ctx, updated, requestID)
	}

	s.notify.OrderStatusUpdated(updated)

	s.logger.Info("order_status_updated", fmt.Sprintf("Order %s moved to %s", orderID, target), requestID, map[string]interface{}{
		"order_id": orderID,
		"from":     order.Status,
		"to":       target,
		"actor":    identity.Role,
	})

	return updated, nil
}

// CancelOrder cancels a placed order. Admins may always cancel; the owning
// session may cancel within the grace window after placement.
func (s *Service) CancelOrder(ctx context.Context, orderID string, identity auth.Identity, sessionID, requestID string) (*models.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.StatusPlaced {
		return nil, apperr.InvalidState("only placed orders can be cancelled, order is %s", order.Status)
	}

	if identity.Role != auth.RoleAdmin {
		owner := sessionID != "" && order.CustomerSessionID == sessionID
		if !owner {
			return nil, apperr.Forbidden("order belongs to another session")
		}
		if s.now().Sub(order.CreatedAt) > cancelWindow {
			return nil, apperr.Forbidden("cancellation window of %s has passed", cancelWindow)
		}
	}

	applied, err := s.repo.UpdateStatus(ctx, orderID, models.StatusCancelled, models.StatusPlaced)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !applied {
		return nil, apperr.InvalidState("order %s was transitioned concurrently", orderID)
	}

	updated, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.freeTable(ctx, updated, requestID)
	s.notify.OrderStatusUpdated(updated)

	s.logger.Info("order_cancelled", fmt.Sprintf("Order %s cancelled", orderID), requestID, map[string]interface{}{
		"order_id": orderID,
		"actor":    identity.Role,
	})

	return updated, nil
}

// GetOrder returns an order to staff, or to the session that placed it.
func (s *Service) GetOrder(ctx context.Context, orderID string, identity auth.Identity, sessionID string) (*models.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if identity.Role.IsStaff() {
		return order, nil
	}
	if sessionID == "" || order.CustomerSessionID != sessionID {
		return nil, apperr.Forbidden("order belongs to another session")
	}
	return order, nil
}

// GetOrderPublic is the unauthenticated receipt lookup, limited to recent
// orders so ids cannot be mined long after the visit.
func (s *Service) GetOrderPublic(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if s.now().Sub(order.CreatedAt) > publicLookupWindow {
		return nil, apperr.Forbidden("order is no longer publicly visible")
	}
	return order, nil
}

// ListOrders returns the work queue for the caller's role.
func (s *Service) ListOrders(ctx context.Context, identity auth.Identity) ([]models.Order, error) {
	var statuses []models.OrderStatus
	switch identity.Role {
	case auth.RoleKitchen:
		statuses = []models.OrderStatus{models.StatusPlaced, models.StatusPreparing}
	case auth.RoleRunner:
		statuses = []models.OrderStatus{models.StatusReady}
	case auth.RoleAdmin:
		// all orders
	default:
		return nil, apperr.Forbidden("listing orders requires a staff role")
	}
	return s.repo.List(ctx, statuses)
}

// ListOrdersByTable returns the table's active orders for the table screen.
func (s *Service) ListOrdersByTable(ctx context.Context, tableID string) ([]models.Order, error) {
	if tableID == "" {
		return nil, apperr.InvalidInput("table id is required")
	}
	return s.repo.ListByTable(ctx, tableID)
}

func (s *Service) freeTable(ctx context.Context, order *models.Order, requestID string) {
	if err := s.tables.SetOccupied(ctx, order.TableID, false); err != nil {
		s.logger.Error("table_release_failed", "Failed to release table", requestID, err, map[string]interface{}{
			"table_id": order.TableID,
			"order_id": order.ID,
		})
	}
}
