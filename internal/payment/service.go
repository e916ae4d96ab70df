// Package payment implements payment initiation against the provider and the
// reconciliation funnel fed by callbacks and webhooks.
package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tableside/internal/apperr"
	"tableside/internal/auth"
	"tableside/internal/logger"
	"tableside/internal/models"
)

const (
	defaultCurrency = "INR"
	providerName    = "phonepe"

	// webhookSuccessCode is the provider's terminal success code.
	webhookSuccessCode = "PAYMENT_SUCCESS"
)

// Repository persists payment attempts. Rows are append-then-update, never
// deleted.
type Repository interface {
	Insert(ctx context.Context, payment *models.Payment) error
	SetProviderID(ctx context.Context, id, providerID string) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentLifecycleStatus) error
	Get(ctx context.Context, id string) (*models.Payment, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.Payment, error)
	// GetLatestByOrder returns nil when the order has no payments yet.
	GetLatestByOrder(ctx context.Context, orderID string) (*models.Payment, error)
}

// OrderStore is the slice of the order repository the payment service needs.
type OrderStore interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error
}

// Notifier pushes payment outcomes to the order's table room.
type Notifier interface {
	PaymentStatusUpdated(update *models.PaymentUpdate)
}

// Service reconciles payments against orders.
type Service struct {
	repo     Repository
	orders   OrderStore
	provider Provider
	notify   Notifier
	logger   *logger.Logger
}

// NewService creates the payment service.
func NewService(repo Repository, orders OrderStore, provider Provider, notify Notifier, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		provider: provider,
		notify:   notify,
		logger:   log,
	}
}

// CreatePayment opens a payment attempt for an order. The amount is snapshot
// from the order total. A provider failure leaves the attempt without a
// provider reference so the customer can retry.
func (s *Service) CreatePayment(ctx context.Context, req *models.CreatePaymentRequest, requestID string) (*models.CreatePaymentResponse, error) {
	if req.OrderID == "" {
		return nil, apperr.InvalidInput("order_id is required")
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus != models.PaymentPending {
		return nil, apperr.InvalidState("payment already processed for this order")
	}

	latest, err := s.repo.GetLatestByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest payment: %w", err)
	}
	if latest != nil && latest.IsActiveAttempt() {
		return nil, apperr.InvalidState("an active payment attempt already exists for this order")
	}

	payment := &models.Payment{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		Currency:      defaultCurrency,
		Provider:      providerName,
		Status:        models.PaymentAttemptCreated,
		CustomerEmail: req.CustomerInfo.Email,
	}
	if err := s.repo.Insert(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	userID := req.CustomerInfo.UserID
	if userID == "" {
		userID = "guest-" + order.TableNumber
	}

	result, err := s.provider.Initiate(ctx, &InitiateRequest{
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Amount:    payment.Amount,
		UserID:    userID,
		Phone:     req.CustomerInfo.Phone,
	})
	if err != nil {
		s.logger.Error("payment_initiation_failed", "Provider call failed", requestID, err, map[string]interface{}{
			"order_id":   order.ID,
			"payment_id": payment.ID,
		})
		return nil, apperr.Provider("payment provider call failed", err)
	}

	if err := s.repo.SetProviderID(ctx, payment.ID, result.ProviderPaymentID); err != nil {
		return nil, fmt.Errorf("failed to store provider payment id: %w", err)
	}

	s.logger.Info("payment_created", fmt.Sprintf("Payment initiated for order %s", order.ID), requestID, map[string]interface{}{
		"order_id":            order.ID,
		"payment_id":          payment.ID,
		"provider_payment_id": result.ProviderPaymentID,
		"amount":              payment.Amount,
	})

	return &models.CreatePaymentResponse{
		PaymentURL: result.RedirectURL,
		PaymentID:  payment.ID,
	}, nil
}

// Reconcile is the single funnel applying a provider outcome to a payment.
// Both the redirect callback and the webhook end up here. Applying the same
// outcome twice is a no-op with no duplicate notification.
func (s *Service) Reconcile(ctx context.Context, providerTxnID string, success bool, requestID string) (*models.Payment, error) {
	payment, err := s.repo.GetByProviderID(ctx, providerTxnID)
	if err != nil {
		return nil, err
	}

	target := models.PaymentAttemptFailed
	if success {
		target = models.PaymentAttemptCaptured
	}

	if payment.Status == target {
		return payment, nil
	}

	// A captured payment is terminal. A late failure signal, such as a
	// redirect callback racing a webhook that already captured, must not
	// downgrade the row while the order stays completed.
	if payment.Status == models.PaymentAttemptCaptured && target == models.PaymentAttemptFailed {
		s.logger.Info("payment_reconcile_ignored", "Ignoring failure outcome for captured payment", requestID, map[string]interface{}{
			"payment_id":          payment.ID,
			"provider_payment_id": providerTxnID,
		})
		return payment, nil
	}

	if err := s.repo.UpdateStatus(ctx, payment.ID, target); err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	payment.Status = target

	orderPaymentStatus := models.PaymentPending
	if success {
		orderPaymentStatus = models.PaymentCompleted
		if err := s.orders.UpdatePaymentStatus(ctx, payment.OrderID, orderPaymentStatus); err != nil {
			return nil, fmt.Errorf("failed to update order payment status: %w", err)
		}
	}

	order, err := s.orders.Get(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if !success {
		orderPaymentStatus = order.PaymentStatus
	}

	s.notify.PaymentStatusUpdated(&models.PaymentUpdate{
		OrderID:            order.ID,
		TableID:            order.TableID,
		Status:             target,
		OrderPaymentStatus: orderPaymentStatus,
	})

	s.logger.Info("payment_reconciled", fmt.Sprintf("Payment %s reconciled to %s", payment.ID, target), requestID, map[string]interface{}{
		"payment_id":          payment.ID,
		"order_id":            payment.OrderID,
		"provider_payment_id": providerTxnID,
		"status":              target,
	})

	return payment, nil
}

// HandleCallback processes the redirect-style provider callback. The
// transaction must belong to the order named in the redirect.
func (s *Service) HandleCallback(ctx context.Context, orderID, providerTxnID, status, requestID string) (*models.Payment, error) {
	if orderID == "" || providerTxnID == "" {
		return nil, apperr.InvalidInput("orderId and transactionId are required")
	}

	payment, err := s.repo.GetByProviderID(ctx, providerTxnID)
	if err != nil {
		return nil, err
	}
	if payment.OrderID != orderID {
		return nil, apperr.NotFound("payment not found for order %s", orderID)
	}

	return s.Reconcile(ctx, providerTxnID, status == "SUCCESS", requestID)
}

// webhookEnvelope is the provider's server-to-server notification body.
type webhookEnvelope struct {
	Response string `json:"response"`
	XVerify  string `json:"xVerify"`
}

// webhookPayload is the signed part of the notification.
type webhookPayload struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	Code                  string `json:"code"`
}

// HandleWebhook verifies and applies a provider webhook. The signature is
// checked before anything else; a bad signature mutates nothing.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, requestID string) (*models.Payment, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apperr.InvalidInput("malformed webhook body")
	}
	if envelope.Response == "" || envelope.XVerify == "" {
		return nil, apperr.InvalidInput("webhook body missing response or signature")
	}

	if !s.provider.VerifySignature(envelope.Response, envelope.XVerify) {
		s.logger.Error("webhook_rejected", "Invalid webhook signature", requestID, nil, nil)
		return nil, apperr.Unauthenticated("invalid webhook signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal([]byte(envelope.Response), &payload); err != nil {
		return nil, apperr.InvalidInput("malformed webhook payload")
	}
	if payload.MerchantTransactionID == "" {
		return nil, apperr.InvalidInput("webhook payload missing transaction id")
	}

	return s.Reconcile(ctx, payload.MerchantTransactionID, payload.Code == webhookSuccessCode, requestID)
}

// CheckStatus is the public payment-status view for an order.
func (s *Service) CheckStatus(ctx context.Context, orderID string) (*models.PaymentStatusResponse, error) {
	payment, err := s.repo.GetLatestByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest payment: %w", err)
	}
	if payment == nil {
		return nil, apperr.NotFound("no payment found for order %s", orderID)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &models.PaymentStatusResponse{
		Status:      payment.Status,
		Amount:      payment.Amount,
		OrderStatus: order.Status,
	}, nil
}

// PaymentDetails is the admin view of a payment attempt and its order.
type PaymentDetails struct {
	Payment *models.Payment `json:"payment"`
	Order   *models.Order   `json:"order"`
}

// GetPaymentDetails is the admin-only read of a single payment attempt.
func (s *Service) GetPaymentDetails(ctx context.Context, paymentID string, identity auth.Identity) (*PaymentDetails, error) {
	if identity.Role != auth.RoleAdmin {
		return nil, apperr.Forbidden("payment details require the admin role")
	}

	payment, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Get(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}

	return &PaymentDetails{Payment: payment, Order: order}, nil
}
