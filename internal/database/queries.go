package database

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (id, table_id, customer_session_id, status, payment_status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	InsertOrderItemSQL = `
		INSERT INTO order_items (order_id, menu_item_id, name, quantity, price, special_instructions)
		VALUES ($1, $2, $3, $4, $5, $6)`

	GetOrderSQL = `
		SELECT o.id, o.table_id, t.table_number, COALESCE(o.customer_session_id, ''),
			   o.status, o.payment_status, o.total_amount,
			   o.created_at, o.updated_at, o.prepared_at, o.ready_at, o.delivered_at
		FROM orders o
		JOIN tables t ON t.id = o.table_id
		WHERE o.id = $1`

	GetOrderItemsSQL = `
		SELECT menu_item_id, name, quantity, price, COALESCE(special_instructions, '')
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC`

	ListOrdersSQL = `
		SELECT o.id, o.table_id, t.table_number, COALESCE(o.customer_session_id, ''),
			   o.status, o.payment_status, o.total_amount,
			   o.created_at, o.updated_at, o.prepared_at, o.ready_at, o.delivered_at
		FROM orders o
		JOIN tables t ON t.id = o.table_id
		WHERE cardinality($1::text[]) = 0 OR o.status = ANY($1::text[])
		ORDER BY o.created_at DESC`

	ListOrdersByTableSQL = `
		SELECT o.id, o.table_id, t.table_number, COALESCE(o.customer_session_id, ''),
			   o.status, o.payment_status, o.total_amount,
			   o.created_at, o.updated_at, o.prepared_at, o.ready_at, o.delivered_at
		FROM orders o
		JOIN tables t ON t.id = o.table_id
		WHERE o.table_id = $1 AND o.status <> 'delivered'
		ORDER BY o.created_at DESC`

	// Conditional update guarded on the expected current status; zero rows
	// affected means a concurrent transition won the race.
	UpdateOrderStatusSQL = `
		UPDATE orders SET
			status = $2,
			updated_at = NOW(),
			prepared_at  = CASE WHEN $2 = 'preparing' THEN NOW() ELSE prepared_at END,
			ready_at     = CASE WHEN $2 = 'ready'     THEN NOW() ELSE ready_at END,
			delivered_at = CASE WHEN $2 = 'delivered' THEN NOW() ELSE delivered_at END
		WHERE id = $1 AND status = $3`

	UpdateOrderPaymentStatusSQL = `
		UPDATE orders SET payment_status = $2, updated_at = NOW()
		WHERE id = $1`
)

// Table registry queries
const (
	GetTableSQL = `
		SELECT id, table_number, capacity, is_occupied
		FROM tables WHERE id = $1`

	ListTablesSQL = `
		SELECT id, table_number, capacity, is_occupied
		FROM tables
		ORDER BY table_number`

	SetTableOccupiedSQL = `
		UPDATE tables SET is_occupied = $2 WHERE id = $1`
)

// Menu catalog queries
const (
	GetMenuItemSQL = `
		SELECT id, name, COALESCE(description, ''), price, category, is_available
		FROM menu_items WHERE id = $1`

	ListMenuItemsSQL = `
		SELECT id, name, COALESCE(description, ''), price, category, is_available
		FROM menu_items
		ORDER BY category, name`
)

// Payment queries
const (
	InsertPaymentSQL = `
		INSERT INTO payments (id, order_id, amount, currency, provider, status, customer_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	SetPaymentProviderIDSQL = `
		UPDATE payments SET provider_payment_id = $2, updated_at = NOW()
		WHERE id = $1`

	UpdatePaymentStatusSQL = `
		UPDATE payments SET status = $2, updated_at = NOW()
		WHERE id = $1`

	GetPaymentSQL = `
		SELECT id, order_id, amount, currency, provider, COALESCE(provider_payment_id, ''),
			   status, COALESCE(customer_email, ''), created_at, updated_at
		FROM payments WHERE id = $1`

	GetPaymentByProviderIDSQL = `
		SELECT id, order_id, amount, currency, provider, COALESCE(provider_payment_id, ''),
			   status, COALESCE(customer_email, ''), created_at, updated_at
		FROM payments WHERE provider_payment_id = $1`

	GetLatestPaymentByOrderSQL = `
		SELECT id, order_id, amount, currency, provider, COALESCE(provider_payment_id, ''),
			   status, COALESCE(customer_email, ''), created_at, updated_at
		FROM payments WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
)
