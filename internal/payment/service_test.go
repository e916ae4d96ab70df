package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tableside/internal/apperr"
	"tableside/internal/auth"
	"tableside/internal/logger"
	"tableside/internal/models"
)

type fakePaymentRepo struct {
	payments map[string]*models.Payment
	inserted []string
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*models.Payment)}
}

func (r *fakePaymentRepo) Insert(_ context.Context, payment *models.Payment) error {
	copied := *payment
	r.payments[payment.ID] = &copied
	r.inserted = append(r.inserted, payment.ID)
	return nil
}

func (r *fakePaymentRepo) SetProviderID(_ context.Context, id, providerID string) error {
	payment, ok := r.payments[id]
	if !ok {
		return apperr.NotFound("payment not found with id %s", id)
	}
	payment.ProviderPaymentID = providerID
	return nil
}

func (r *fakePaymentRepo) UpdateStatus(_ context.Context, id string, status models.PaymentLifecycleStatus) error {
	payment, ok := r.payments[id]
	if !ok {
		return apperr.NotFound("payment not found with id %s", id)
	}
	payment.Status = status
	return nil
}

func (r *fakePaymentRepo) Get(_ context.Context, id string) (*models.Payment, error) {
	payment, ok := r.payments[id]
	if !ok {
		return nil, apperr.NotFound("payment not found with id %s", id)
	}
	copied := *payment
	return &copied, nil
}

func (r *fakePaymentRepo) GetByProviderID(_ context.Context, providerID string) (*models.Payment, error) {
	for _, payment := range r.payments {
		if payment.ProviderPaymentID == providerID && providerID != "" {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("payment not found for transaction %s", providerID)
}

func (r *fakePaymentRepo) GetLatestByOrder(_ context.Context, orderID string) (*models.Payment, error) {
	var latest *models.Payment
	for _, id := range r.inserted {
		if r.payments[id].OrderID == orderID {
			latest = r.payments[id]
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

type fakeOrderStore struct {
	orders map[string]*models.Order
}

func (s *fakeOrderStore) Get(_ context.Context, id string) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found with id %s", id)
	}
	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) UpdatePaymentStatus(_ context.Context, id string, status models.PaymentStatus) error {
	order, ok := s.orders[id]
	if !ok {
		return apperr.NotFound("order not found with id %s", id)
	}
	order.PaymentStatus = status
	return nil
}

type fakeProvider struct {
	failInitiate  bool
	initiations   int
	validateAs    bool
	lastSignature string
}

func (p *fakeProvider) Initiate(_ context.Context, req *InitiateRequest) (*InitiateResult, error) {
	p.initiations++
	if p.failInitiate {
		return nil, errors.New("provider timeout")
	}
	return &InitiateResult{
		ProviderPaymentID: "MT-" + req.PaymentID,
		RedirectURL:       "https://pay.example/redirect/" + req.PaymentID,
	}, nil
}

func (p *fakeProvider) VerifySignature(_, header string) bool {
	p.lastSignature = header
	return p.validateAs
}

type fakePaymentNotifier struct {
	updates []*models.PaymentUpdate
}

func (n *fakePaymentNotifier) PaymentStatusUpdated(update *models.PaymentUpdate) {
	n.updates = append(n.updates, update)
}

type paymentFixture struct {
	service  *Service
	repo     *fakePaymentRepo
	orders   *fakeOrderStore
	provider *fakeProvider
	notify   *fakePaymentNotifier
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	repo := newFakePaymentRepo()
	orders := &fakeOrderStore{orders: map[string]*models.Order{
		"order-1": {
			ID:            "order-1",
			TableID:       "t1",
			TableNumber:   "T1",
			Status:        models.StatusPlaced,
			PaymentStatus: models.PaymentPending,
			TotalAmount:   25.00,
		},
	}}
	provider := &fakeProvider{validateAs: true}
	notify := &fakePaymentNotifier{}

	service := NewService(repo, orders, provider, notify, logger.New("payment-test"))
	return &paymentFixture{service: service, repo: repo, orders: orders, provider: provider, notify: notify}
}

func (f *paymentFixture) createPayment(t *testing.T) *models.CreatePaymentResponse {
	t.Helper()
	resp, err := f.service.CreatePayment(context.Background(), &models.CreatePaymentRequest{
		OrderID:      "order-1",
		CustomerInfo: models.CustomerInfo{Email: "diner@example.com"},
	}, "req_test")
	require.NoError(t, err)
	return resp
}

func webhookBody(t *testing.T, txnID, code string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"merchantTransactionId": txnID,
		"code":                  code,
	})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{
		"response": string(payload),
		"xVerify":  "deadbeef###1",
	})
	require.NoError(t, err)
	return body
}

func TestCreatePayment_Succeeds(t *testing.T) {
	f := newPaymentFixture(t)

	resp := f.createPayment(t)
	require.NotEmpty(t, resp.PaymentID)
	require.Contains(t, resp.PaymentURL, "https://pay.example/redirect/")

	stored, err := f.repo.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentAttemptCreated, stored.Status)
	require.InDelta(t, 25.00, stored.Amount, 1e-9)
	require.NotEmpty(t, stored.ProviderPaymentID)
}

func TestCreatePayment_OrderNotFound(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.CreatePayment(context.Background(), &models.CreatePaymentRequest{
		OrderID: "missing",
	}, "req_test")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreatePayment_AlreadyPaid(t *testing.T) {
	f := newPaymentFixture(t)
	f.orders.orders["order-1"].PaymentStatus = models.PaymentCompleted

	_, err := f.service.CreatePayment(context.Background(), &models.CreatePaymentRequest{
		OrderID: "order-1",
	}, "req_test")
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestCreatePayment_DuplicateActiveAttempt(t *testing.T) {
	f := newPaymentFixture(t)
	f.createPayment(t)

	_, err := f.service.CreatePayment(context.Background(), &models.CreatePaymentRequest{
		OrderID: "order-1",
	}, "req_test")
	require.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestCreatePayment_ProviderFailureIsRetryable(t *testing.T) {
	f := newPaymentFixture(t)
	f.provider.failInitiate = true

	_, err := f.service.CreatePayment(context.Background(), &models.CreatePaymentRequest{
		OrderID: "order-1",
	}, "req_test")
	require.Equal(t, apperr.KindProviderError, apperr.KindOf(err))

	// The dangling attempt has no provider reference, so the retry goes
	// through once the provider recovers.
	f.provider.failInitiate = false
	resp := f.createPayment(t)
	require.NotEmpty(t, resp.PaymentURL)
}

func TestReconcile_SuccessCompletesOrder(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)
	txnID := "MT-" + resp.PaymentID

	payment, err := f.service.Reconcile(context.Background(), txnID, true, "req_test")
	require.NoError(t, err)
	require.Equal(t, models.PaymentAttemptCaptured, payment.Status)
	require.Equal(t, models.PaymentCompleted, f.orders.orders["order-1"].PaymentStatus)

	require.Len(t, f.notify.updates, 1)
	require.Equal(t, "t1", f.notify.updates[0].TableID)
	require.Equal(t, models.PaymentAttemptCaptured, f.notify.updates[0].Status)
}

func TestReconcile_FailureLeavesOrderPending(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)
	txnID := "MT-" + resp.PaymentID

	payment, err := f.service.Reconcile(context.Background(), txnID, false, "req_test")
	require.NoError(t, err)
	require.Equal(t, models.PaymentAttemptFailed, payment.Status)
	require.Equal(t, models.PaymentPending, f.orders.orders["order-1"].PaymentStatus)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)
	txnID := "MT-" + resp.PaymentID

	_, err := f.service.Reconcile(context.Background(), txnID, true, "req_test")
	require.NoError(t, err)
	_, err = f.service.Reconcile(context.Background(), txnID, true, "req_test")
	require.NoError(t, err)

	require.Len(t, f.notify.updates, 1, "replayed outcome must not notify again")
	require.Equal(t, models.PaymentCompleted, f.orders.orders["order-1"].PaymentStatus)
}

func TestReconcile_CapturedIsTerminal(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)
	txnID := "MT-" + resp.PaymentID

	_, err := f.service.Reconcile(context.Background(), txnID, true, "req_test")
	require.NoError(t, err)

	// A late failure signal, such as a redirect callback losing the race
	// against the webhook, must not downgrade the captured payment.
	payment, err := f.service.Reconcile(context.Background(), txnID, false, "req_test")
	require.NoError(t, err)
	require.Equal(t, models.PaymentAttemptCaptured, payment.Status)
	require.Equal(t, models.PaymentCompleted, f.orders.orders["order-1"].PaymentStatus)
	require.Len(t, f.notify.updates, 1, "ignored outcome must not notify")
}

func TestReconcile_UnknownTransaction(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.Reconcile(context.Background(), "MT-unknown", true, "req_test")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestHandleCallback_OrderMismatch(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)

	_, err := f.service.HandleCallback(context.Background(), "other-order", "MT-"+resp.PaymentID, "SUCCESS", "req_test")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestHandleWebhook_BadSignatureMutatesNothing(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)
	f.provider.validateAs = false

	_, err := f.service.HandleWebhook(context.Background(),
		webhookBody(t, "MT-"+resp.PaymentID, "PAYMENT_SUCCESS"), "req_test")
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	stored, err := f.repo.Get(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentAttemptCreated, stored.Status)
	require.Equal(t, models.PaymentPending, f.orders.orders["order-1"].PaymentStatus)
	require.Empty(t, f.notify.updates)
}

func TestHandleWebhook_Success(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)

	payment, err := f.service.HandleWebhook(context.Background(),
		webhookBody(t, "MT-"+resp.PaymentID, "PAYMENT_SUCCESS"), "req_test")
	require.NoError(t, err)
	require.Equal(t, models.PaymentAttemptCaptured, payment.Status)
	require.Equal(t, models.PaymentCompleted, f.orders.orders["order-1"].PaymentStatus)
}

func TestHandleWebhook_FailureCode(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)

	payment, err := f.service.HandleWebhook(context.Background(),
		webhookBody(t, "MT-"+resp.PaymentID, "PAYMENT_ERROR"), "req_test")
	require.NoError(t, err)
	require.Equal(t, models.PaymentAttemptFailed, payment.Status)
}

func TestHandleWebhook_MalformedBody(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.HandleWebhook(context.Background(), []byte("not json"), "req_test")
	require.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestCheckStatus(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.CheckStatus(context.Background(), "order-1")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	resp := f.createPayment(t)
	_, err = f.service.Reconcile(context.Background(), "MT-"+resp.PaymentID, true, "req_test")
	require.NoError(t, err)

	status, err := f.service.CheckStatus(context.Background(), "order-1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentAttemptCaptured, status.Status)
	require.InDelta(t, 25.00, status.Amount, 1e-9)
	require.Equal(t, models.StatusPlaced, status.OrderStatus)
}

func TestGetPaymentDetails_AdminOnly(t *testing.T) {
	f := newPaymentFixture(t)
	resp := f.createPayment(t)

	admin := auth.Identity{ID: "a1", Role: auth.RoleAdmin, IsActive: true}

	details, err := f.service.GetPaymentDetails(context.Background(), resp.PaymentID, admin)
	require.NoError(t, err)
	require.Equal(t, resp.PaymentID, details.Payment.ID)
	require.Equal(t, "order-1", details.Order.ID)
	require.Equal(t, "T1", details.Order.TableNumber)

	for _, role := range []auth.Role{auth.RoleKitchen, auth.RoleRunner, auth.RoleCustomer} {
		_, err := f.service.GetPaymentDetails(context.Background(), resp.PaymentID,
			auth.Identity{ID: "u1", Role: role, IsActive: true})
		require.Equal(t, apperr.KindForbidden, apperr.KindOf(err), "role %s", role)
	}

	_, err = f.service.GetPaymentDetails(context.Background(), "pay-missing", admin)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
