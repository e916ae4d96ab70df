package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tableside/internal/apperr"
	"tableside/internal/database"
	"tableside/internal/models"
)

// PostgresRepository persists orders via pgx.
type PostgresRepository struct {
	db *database.DB
}

// NewRepository creates a Postgres-backed order repository.
func NewRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes the order and its lines in one transaction and fills the
// database-assigned timestamps.
func (r *PostgresRepository) Insert(ctx context.Context, order *models.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, database.InsertOrderSQL,
		order.ID,
		order.TableID,
		nullable(order.CustomerSessionID),
		order.Status,
		order.PaymentStatus,
		order.TotalAmount,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, line := range order.Items {
		_, err = tx.Exec(ctx, database.InsertOrderItemSQL,
			order.ID,
			line.MenuItemID,
			line.Name,
			line.Quantity,
			line.Price,
			nullable(line.SpecialInstructions),
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Get loads an order with its lines.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, database.GetOrderSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order not found with id %s", id)
		}
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns orders filtered to the given statuses, all orders when the
// filter is empty.
func (r *PostgresRepository) List(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}

	rows, err := r.db.Query(ctx, database.ListOrdersSQL, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return r.collectOrders(ctx, rows)
}

// ListByTable returns the table's orders excluding delivered ones.
func (r *PostgresRepository) ListByTable(ctx context.Context, tableID string) ([]models.Order, error) {
	rows, err := r.db.Query(ctx, database.ListOrdersByTableSQL, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to query table orders: %w", err)
	}
	return r.collectOrders(ctx, rows)
}

// UpdateStatus performs the guarded transition. Zero rows affected means the
// expected status no longer matches.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, target, expected models.OrderStatus) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, database.UpdateOrderStatusSQL, id, target, expected)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdatePaymentStatus sets the order-level payment rollup.
func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	if err := r.db.Exec(ctx, database.UpdateOrderPaymentStatusSQL, id, status); err != nil {
		return fmt.Errorf("failed to update order payment status: %w", err)
	}
	return nil
}

func (r *PostgresRepository) collectOrders(ctx context.Context, rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := r.db.Query(ctx, database.GetOrderItemsSQL, order.ID)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.OrderLine
		if err := rows.Scan(
			&line.MenuItemID,
			&line.Name,
			&line.Quantity,
			&line.Price,
			&line.SpecialInstructions,
		); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, line)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	err := row.Scan(
		&order.ID,
		&order.TableID,
		&order.TableNumber,
		&order.CustomerSessionID,
		&order.Status,
		&order.PaymentStatus,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.PreparedAt,
		&order.ReadyAt,
		&order.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// nullable converts an empty string to NULL for optional text columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
