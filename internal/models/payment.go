package models

import "time"

// PaymentLifecycleStatus represents the state of a single payment attempt.
type PaymentLifecycleStatus string

const (
	PaymentAttemptCreated    PaymentLifecycleStatus = "created"
	PaymentAttemptAuthorized PaymentLifecycleStatus = "authorized"
	PaymentAttemptCaptured   PaymentLifecycleStatus = "captured"
	PaymentAttemptFailed     PaymentLifecycleStatus = "failed"
	PaymentAttemptRefunded   PaymentLifecycleStatus = "refunded"
)

// Payment is one payment attempt against an order. Amount is copied from the
// order total at creation and never changes. Rows are never deleted.
type Payment struct {
	ID                string                 `json:"id" db:"id"`
	OrderID           string                 `json:"order_id" db:"order_id"`
	Amount            float64                `json:"amount" db:"amount"`
	Currency          string                 `json:"currency" db:"currency"`
	Provider          string                 `json:"provider" db:"provider"`
	ProviderPaymentID string                 `json:"provider_payment_id,omitempty" db:"provider_payment_id"`
	Status            PaymentLifecycleStatus `json:"status" db:"status"`
	CustomerEmail     string                 `json:"customer_email,omitempty" db:"customer_email"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
}

// IsActiveAttempt reports whether this payment still occupies the order's
// single active-attempt slot. An initiation that never reached the provider
// leaves no provider reference and does not block a fresh attempt.
func (p *Payment) IsActiveAttempt() bool {
	switch p.Status {
	case PaymentAttemptCreated:
		return p.ProviderPaymentID != ""
	case PaymentAttemptAuthorized, PaymentAttemptCaptured:
		return true
	}
	return false
}

// CustomerInfo accompanies a payment initiation request.
type CustomerInfo struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// CreatePaymentRequest is the request to initiate a payment for an order.
type CreatePaymentRequest struct {
	OrderID      string       `json:"order_id"`
	CustomerInfo CustomerInfo `json:"customer_info"`
}

// CreatePaymentResponse carries the provider redirect for the customer.
type CreatePaymentResponse struct {
	PaymentURL string `json:"payment_url"`
	PaymentID  string `json:"payment_id"`
}

// PaymentStatusResponse is the public payment-status view for an order.
type PaymentStatusResponse struct {
	Status      PaymentLifecycleStatus `json:"status"`
	Amount      float64                `json:"amount"`
	OrderStatus OrderStatus            `json:"order_status"`
}
