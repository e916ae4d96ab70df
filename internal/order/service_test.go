package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tableside/internal/apperr"
	"tableside/internal/auth"
	"tableside/internal/logger"
	"tableside/internal/models"
)

type fakeRepo struct {
	orders map[string]*models.Order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]*models.Order)}
}

func (r *fakeRepo) Insert(_ context.Context, order *models.Order) error {
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*models.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found with id %s", id)
	}
	copied := *order
	return &copied, nil
}

func (r *fakeRepo) List(_ context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.orders {
		if len(statuses) == 0 {
			out = append(out, *order)
			continue
		}
		for _, s := range statuses {
			if order.Status == s {
				out = append(out, *order)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByTable(_ context.Context, tableID string) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.orders {
		if order.TableID == tableID && order.Status != models.StatusDelivered {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id string, target, expected models.OrderStatus) (bool, error) {
	order, ok := r.orders[id]
	if !ok || order.Status != expected {
		return false, nil
	}
	order.Status = target
	now := time.Now().UTC()
	order.UpdatedAt = now
	switch target {
	case models.StatusPreparing:
		order.PreparedAt = &now
	case models.StatusReady:
		order.ReadyAt = &now
	case models.StatusDelivered:
		order.DeliveredAt = &now
	}
	return true, nil
}

func (r *fakeRepo) UpdatePaymentStatus(_ context.Context, id string, status models.PaymentStatus) error {
	order, ok := r.orders[id]
	if !ok {
		return apperr.NotFound("order not found with id %s", id)
	}
	order.PaymentStatus = status
	return nil
}

type fakeCatalog struct {
	items map[string]*models.MenuItem
}

func (c *fakeCatalog) FindItem(_ context.Context, id string) (*models.MenuItem, error) {
	item, ok := c.items[id]
	if !ok {
		return nil, apperr.NotFound("menu item not found with id %s", id)
	}
	return item, nil
}

type fakeTables struct {
	tables   map[string]*models.Table
	occupied map[string]bool
	failSet  bool
}

func (t *fakeTables) FindTable(_ context.Context, id string) (*models.Table, error) {
	table, ok := t.tables[id]
	if !ok {
		return nil, apperr.NotFound("table not found with id %s", id)
	}
	return table, nil
}

func (t *fakeTables) SetOccupied(_ context.Context, id string, occupied bool) error {
	if t.failSet {
		return errors.New("registry down")
	}
	t.occupied[id] = occupied
	return nil
}

type fakeNotifier struct {
	created []*models.Order
	updated []*models.Order
}

func (n *fakeNotifier) OrderCreated(order *models.Order)       { n.created = append(n.created, order) }
func (n *fakeNotifier) OrderStatusUpdated(order *models.Order) { n.updated = append(n.updated, order) }

type fakeTickets struct {
	published []interface{}
	fail      bool
}

func (q *fakeTickets) PublishTicket(_ context.Context, ticket interface{}) error {
	if q.fail {
		return errors.New("broker down")
	}
	q.published = append(q.published, ticket)
	return nil
}

type fixture struct {
	service *Service
	repo    *fakeRepo
	tables  *fakeTables
	notify  *fakeNotifier
	tickets *fakeTickets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newFakeRepo()
	catalog := &fakeCatalog{items: map[string]*models.MenuItem{
		"pizza": {ID: "pizza", Name: "Margherita", Price: 10.00, Category: "mains", IsAvailable: true},
		"cola":  {ID: "cola", Name: "Cola", Price: 5.00, Category: "drinks", IsAvailable: true},
		"off":   {ID: "off", Name: "Seasonal Special", Price: 12.00, Category: "mains", IsAvailable: false},
	}}
	tables := &fakeTables{
		tables:   map[string]*models.Table{"t1": {ID: "t1", TableNumber: "T1", Capacity: 4}},
		occupied: make(map[string]bool),
	}
	notify := &fakeNotifier{}
	tickets := &fakeTickets{}

	service := NewService(repo, catalog, tables, notify, tickets, logger.New("order-test"))
	return &fixture{service: service, repo: repo, tables: tables, notify: notify, tickets: tickets}
}

func (f *fixture) placeOrder(t *testing.T, sessionID string) *models.Order {
	t.Helper()
	order, err := f.service.CreateOrder(context.Background(), &models.CreateOrderRequest{
		TableID: "t1",
		Items: []models.CreateOrderLine{
			{MenuItemID: "pizza", Quantity: 2},
			{MenuItemID: "cola", Quantity: 1},
		},
	}, sessionID, "req_test")
	require.NoError(t, err)
	return order
}

func TestCreateOrder_TotalsAndOccupancy(t *testing.T) {
	f := newFixture(t)

	order := f.placeOrder(t, "sess_a")

	require.Equal(t, models.StatusPlaced, order.Status)
	require.Equal(t, models.PaymentPending, order.PaymentStatus)
	require.InDelta(t, 25.00, order.TotalAmount, 1e-9)
	require.True(t, f.tables.occupied["t1"], "table must be occupied after placement")
	require.Len(t, f.notify.created, 1)
	require.Len(t, f.tickets.published, 1)
}

func TestCreateOrder_SnapshotsPriceAndName(t *testing.T) {
	f := newFixture(t)

	order := f.placeOrder(t, "sess_a")
	require.Equal(t, "Margherita", order.Items[0].Name)
	require.InDelta(t, 10.00, order.Items[0].Price, 1e-9)

	stored, err := f.repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.InDelta(t, 10.00, stored.Items[0].Price, 1e-9)
}

func TestCreateOrder_UnknownTable(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateOrder(context.Background(), &models.CreateOrderRequest{
		TableID: "missing",
		Items:   []models.CreateOrderLine{{MenuItemID: "pizza", Quantity: 1}},
	}, "sess_a", "req_test")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateOrder_UnavailableItem(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateOrder(context.Background(), &models.CreateOrderRequest{
		TableID: "t1",
		Items:   []models.CreateOrderLine{{MenuItemID: "off", Quantity: 1}},
	}, "sess_a", "req_test")
	require.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
}

func TestCreateOrder_TicketFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(t)
	f.tickets.fail = true

	order := f.placeOrder(t, "sess_a")
	require.NotEmpty(t, order.ID)
	require.Len(t, f.notify.created, 1)
}

func TestUpdateStatus_HappyPath(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")

	kitchen := auth.Identity{Role: auth.RoleKitchen, IsActive: true}
	runner := auth.Identity{Role: auth.RoleRunner, IsActive: true}

	updated, err := f.service.UpdateStatus(context.Background(), order.ID, "preparing", kitchen, "req_test")
	require.NoError(t, err)
	require.Equal(t, models.StatusPreparing, updated.Status)
	require.NotNil(t, updated.PreparedAt)

	// Runner cannot skip READY.
	_, err = f.service.UpdateStatus(context.Background(), order.ID, "delivered", runner, "req_test")
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = f.service.UpdateStatus(context.Background(), order.ID, "ready", kitchen, "req_test")
	require.NoError(t, err)

	updated, err = f.service.UpdateStatus(context.Background(), order.ID, "delivered", runner, "req_test")
	require.NoError(t, err)
	require.Equal(t, models.StatusDelivered, updated.Status)
	require.NotNil(t, updated.DeliveredAt)
	require.False(t, f.tables.occupied["t1"], "table must be free after delivery")
	require.Len(t, f.notify.updated, 3)
}

func TestUpdateStatus_RoleGate(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")

	tests := []struct {
		name   string
		role   auth.Role
		target string
		kind   apperr.Kind
	}{
		{"runner cannot set preparing", auth.RoleRunner, "preparing", apperr.KindForbidden},
		{"kitchen cannot set delivered", auth.RoleKitchen, "delivered", apperr.KindForbidden},
		{"customer cannot transition", auth.RoleCustomer, "preparing", apperr.KindForbidden},
		{"nobody sets cancelled here", auth.RoleAdmin, "cancelled", apperr.KindForbidden},
		{"unknown status", auth.RoleAdmin, "cooking", apperr.KindInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.UpdateStatus(context.Background(), order.ID,
				tc.target, auth.Identity{Role: tc.role, IsActive: true}, "req_test")
			require.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestUpdateStatus_TerminalOrderRejected(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")
	admin := auth.Identity{Role: auth.RoleAdmin, IsActive: true}

	_, err := f.service.CancelOrder(context.Background(), order.ID, admin, "", "req_test")
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(context.Background(), order.ID, "preparing", admin, "req_test")
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestUpdateStatus_ConcurrentTransition(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")
	kitchen := auth.Identity{Role: auth.RoleKitchen, IsActive: true}

	// Another actor moves the order between our read and our write.
	applied, err := f.repo.UpdateStatus(context.Background(), order.ID, models.StatusPreparing, models.StatusPlaced)
	require.NoError(t, err)
	require.True(t, applied)

	_, err = f.service.UpdateStatus(context.Background(), order.ID, "preparing", kitchen, "req_test")
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestCancelOrder_OwnerWithinWindow(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")
	customer := auth.Identity{Role: auth.RoleCustomer, IsActive: true}

	cancelled, err := f.service.CancelOrder(context.Background(), order.ID, customer, "sess_a", "req_test")
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, cancelled.Status)
	require.False(t, f.tables.occupied["t1"], "table must be free after cancellation")
}

func TestCancelOrder_WindowBoundary(t *testing.T) {
	f := newFixture(t)
	customer := auth.Identity{Role: auth.RoleCustomer, IsActive: true}

	// Exactly five minutes is still inside the window.
	order := f.placeOrder(t, "sess_a")
	placedAt := f.repo.orders[order.ID].CreatedAt
	f.service.now = func() time.Time { return placedAt.Add(cancelWindow) }

	_, err := f.service.CancelOrder(context.Background(), order.ID, customer, "sess_a", "req_test")
	require.NoError(t, err)

	// One second past the window is not.
	late := f.placeOrder(t, "sess_a")
	placedAt = f.repo.orders[late.ID].CreatedAt
	f.service.now = func() time.Time { return placedAt.Add(cancelWindow + time.Second) }

	_, err = f.service.CancelOrder(context.Background(), late.ID, customer, "sess_a", "req_test")
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCancelOrder_AdminBypassesWindow(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")
	f.service.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	customer := auth.Identity{Role: auth.RoleCustomer, IsActive: true}
	_, err := f.service.CancelOrder(context.Background(), order.ID, customer, "sess_a", "req_test")
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	admin := auth.Identity{Role: auth.RoleAdmin, IsActive: true}
	cancelled, err := f.service.CancelOrder(context.Background(), order.ID, admin, "", "req_test")
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, cancelled.Status)
}

func TestCancelOrder_WrongSession(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")
	customer := auth.Identity{Role: auth.RoleCustomer, IsActive: true}

	_, err := f.service.CancelOrder(context.Background(), order.ID, customer, "sess_b", "req_test")
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCancelOrder_NotPlaced(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")
	kitchen := auth.Identity{Role: auth.RoleKitchen, IsActive: true}
	admin := auth.Identity{Role: auth.RoleAdmin, IsActive: true}

	_, err := f.service.UpdateStatus(context.Background(), order.ID, "preparing", kitchen, "req_test")
	require.NoError(t, err)

	_, err = f.service.CancelOrder(context.Background(), order.ID, admin, "", "req_test")
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestGetOrder_Scoping(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")
	customer := auth.Identity{Role: auth.RoleCustomer, IsActive: true}

	_, err := f.service.GetOrder(context.Background(), order.ID, customer, "sess_a")
	require.NoError(t, err)

	_, err = f.service.GetOrder(context.Background(), order.ID, customer, "sess_b")
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.service.GetOrder(context.Background(), order.ID,
		auth.Identity{Role: auth.RoleRunner, IsActive: true}, "")
	require.NoError(t, err)
}

func TestGetOrderPublic_Window(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")

	_, err := f.service.GetOrderPublic(context.Background(), order.ID)
	require.NoError(t, err)

	placedAt := f.repo.orders[order.ID].CreatedAt
	f.service.now = func() time.Time { return placedAt.Add(25 * time.Hour) }

	_, err = f.service.GetOrderPublic(context.Background(), order.ID)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestListOrders_RoleFilters(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, "sess_a")
	kitchen := auth.Identity{Role: auth.RoleKitchen, IsActive: true}
	runner := auth.Identity{Role: auth.RoleRunner, IsActive: true}
	admin := auth.Identity{Role: auth.RoleAdmin, IsActive: true}

	orders, err := f.service.ListOrders(context.Background(), kitchen)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	orders, err = f.service.ListOrders(context.Background(), runner)
	require.NoError(t, err)
	require.Empty(t, orders)

	_, err = f.service.UpdateStatus(context.Background(), order.ID, "preparing", kitchen, "req_test")
	require.NoError(t, err)
	_, err = f.service.UpdateStatus(context.Background(), order.ID, "ready", kitchen, "req_test")
	require.NoError(t, err)

	orders, err = f.service.ListOrders(context.Background(), kitchen)
	require.NoError(t, err)
	require.Empty(t, orders)

	orders, err = f.service.ListOrders(context.Background(), runner)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	orders, err = f.service.ListOrders(context.Background(), admin)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	_, err = f.service.ListOrders(context.Background(), auth.Identity{Role: auth.RoleCustomer, IsActive: true})
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}
