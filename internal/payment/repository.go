package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tableside/internal/apperr"
	"tableside/internal/database"
	"tableside/internal/models"
)

// PostgresRepository persists payments via pgx.
type PostgresRepository struct {
	db *database.DB
}

// NewRepository creates a Postgres-backed payment repository.
func NewRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes a fresh payment attempt and fills its timestamps.
func (r *PostgresRepository) Insert(ctx context.Context, payment *models.Payment) error {
	var email interface{}
	if payment.CustomerEmail != "" {
		email = payment.CustomerEmail
	}
	err := r.db.QueryRow(ctx, database.InsertPaymentSQL,
		payment.ID,
		payment.OrderID,
		payment.Amount,
		payment.Currency,
		payment.Provider,
		payment.Status,
		email,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// SetProviderID records the provider's transaction reference.
func (r *PostgresRepository) SetProviderID(ctx context.Context, id, providerID string) error {
	if err := r.db.Exec(ctx, database.SetPaymentProviderIDSQL, id, providerID); err != nil {
		return fmt.Errorf("failed to set provider payment id: %w", err)
	}
	return nil
}

// UpdateStatus sets the attempt's lifecycle status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentLifecycleStatus) error {
	if err := r.db.Exec(ctx, database.UpdatePaymentStatusSQL, id, status); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}

// Get loads a payment by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, database.GetPaymentSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("payment not found with id %s", id)
		}
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}
	return payment, nil
}

// GetByProviderID loads a payment by the provider's transaction reference.
func (r *PostgresRepository) GetByProviderID(ctx context.Context, providerID string) (*models.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, database.GetPaymentByProviderIDSQL, providerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("payment not found for transaction %s", providerID)
		}
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}
	return payment, nil
}

// GetLatestByOrder loads the most recent payment for an order, nil when the
// order has none.
func (r *PostgresRepository) GetLatestByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, database.GetLatestPaymentByOrderSQL, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest payment: %w", err)
	}
	return payment, nil
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.Amount,
		&payment.Currency,
		&payment.Provider,
		&payment.ProviderPaymentID,
		&payment.Status,
		&payment.CustomerEmail,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
