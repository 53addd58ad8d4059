package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

var ErrOrderNotFound = errors.New("order not found")

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS customers (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL DEFAULT '',
	email VARCHAR(255) NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS products (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL DEFAULT '',
	price DECIMAL(12,2) NOT NULL,
	stock INT NOT NULL CHECK (stock >= 0),
	version INT NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS orders (
	id VARCHAR(36) PRIMARY KEY,
	customer_id VARCHAR(64) NOT NULL,
	status VARCHAR(16) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items (
	order_id VARCHAR(36) NOT NULL,
	position INT NOT NULL,
	product_id VARCHAR(64) NOT NULL,
	quantity INT NOT NULL,
	price DECIMAL(12,2) NOT NULL,
	PRIMARY KEY (order_id, position)
);`

type MySQLAdapter struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema creates the tables if they are missing.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(mysqlSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := m.db.QueryRowContext(ctx, `SELECT id, name, email FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}
	return &c, nil
}

func (m *MySQLAdapter) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, name, price, stock FROM products WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	return m.queryProducts(ctx, query, args...)
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return m.queryProducts(ctx, `SELECT id, name, price, stock FROM products ORDER BY id`)
}

func (m *MySQLAdapter) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem) (*domain.Order, error) {
	return m.inTx(ctx, func(tx *sql.Tx) (*domain.Order, error) {
		return m.insertOrder(ctx, tx, customer, items)
	})
}

func (m *MySQLAdapter) CreateOrderWithDecrements(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem, decrements domain.StockDecrements) (*domain.Order, error) {
	return m.inTx(ctx, func(tx *sql.Tx) (*domain.Order, error) {
		if err := decrementStock(ctx, tx, decrements); err != nil {
			return nil, err
		}
		return m.insertOrder(ctx, tx, customer, items)
	})
}

func (m *MySQLAdapter) AdjustProductQuantities(ctx context.Context, decrements domain.StockDecrements) error {
	_, err := m.inTx(ctx, func(tx *sql.Tx) (*domain.Order, error) {
		return nil, decrementStock(ctx, tx, decrements)
	})
	return err
}

func (m *MySQLAdapter) CancelOrder(ctx context.Context, orderID string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		domain.OrderStatusCancelled, m.now(), orderID,
	)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o := domain.Order{ID: id}
	err := m.db.QueryRowContext(ctx, `
		SELECT customer_id, status, created_at, updated_at FROM orders WHERE id = ?`, id,
	).Scan(&o.CustomerID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, quantity, price FROM order_items WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return &o, rows.Err()
}

func (m *MySQLAdapter) inTx(ctx context.Context, fn func(tx *sql.Tx) (*domain.Order, error)) (*domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	order, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return order, nil
}

func (m *MySQLAdapter) insertOrder(ctx context.Context, tx *sql.Tx, customer domain.Customer, items []domain.OrderLineItem) (*domain.Order, error) {
	now := m.now()
	order := &domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		Items:      append([]domain.OrderLineItem(nil), items...),
		Status:     domain.OrderStatusPlaced,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.CustomerID, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity, price)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, i, item.ProductID, item.Quantity, item.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}

	return order, nil
}

// decrementStock runs one conditional UPDATE per product in id order. Every
// product is attempted so the error names all of the short ones; the caller
// rolls the transaction back on any failure.
func decrementStock(ctx context.Context, tx *sql.Tx, decrements domain.StockDecrements) error {
	if err := decrements.Check(); err != nil {
		return err
	}
	var exhausted []string
	for _, id := range decrements.ProductIDs() {
		qty := decrements[id]
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - ?, version = version + 1, updated_at = NOW()
			WHERE id = ? AND stock >= ?`,
			qty, id, qty,
		)
		if err != nil {
			return fmt.Errorf("update stock %s: %w", id, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			exhausted = append(exhausted, id)
		}
	}
	if len(exhausted) > 0 {
		return &domain.StockExhaustedError{ProductIDs: exhausted}
	}
	return nil
}

var (
	_ port.CustomerRepository           = (*MySQLAdapter)(nil)
	_ port.ProductRepository            = (*MySQLAdapter)(nil)
	_ port.TransactionalOrderRepository = (*MySQLAdapter)(nil)
	_ port.InventoryRepository          = (*MySQLAdapter)(nil)
	_ port.OrderCanceller               = (*MySQLAdapter)(nil)
)
