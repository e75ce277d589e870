package store

import (
	"context"
	"database/sql"
	"fmt"

	"shop-service/internal/models"
)

// StockConflictError is returned when a conditional stock decrement
// inside the checkout transaction affects no rows, i.e. another
// checkout consumed the stock first.
type StockConflictError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// CreateOrderTx persists an order with its lines and decrements stock
// for every line, all in one transaction. The decrement is conditional
// (stock_quantity >= quantity re-checked by the UPDATE itself), so two
// concurrent checkouts on the same product cannot drive stock negative:
// the loser gets a StockConflictError and the whole transaction rolls
// back, leaving no order row and no stock mutation behind.
//
// On success order.ID and order.CreatedAt are filled in, as are the
// line IDs, preserving the given line order.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, lines []models.OrderLine) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkout tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (user_id, subtotal, tax_amount, total_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		order.UserID, order.Subtotal, order.TaxAmount, order.TotalAmount, order.Status)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range lines {
		line := &lines[i]
		line.OrderID = order.ID

		err = tx.GetContext(ctx, &line.ID, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			line.OrderID, line.ProductID, line.Quantity, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, updated_at = NOW()
			WHERE id = $2 AND stock_quantity >= $1`,
			line.Quantity, line.ProductID)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if affected == 0 {
			var available int
			if err := tx.GetContext(ctx, &available,
				"SELECT stock_quantity FROM products WHERE id = $1", line.ProductID); err != nil {
				available = 0
			}
			return &StockConflictError{
				ProductID: line.ProductID,
				Available: available,
				Requested: line.Quantity,
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout tx: %w", err)
	}
	return nil
}

// GetOrdersByUser retrieves a user's orders, newest first
func (s *Store) GetOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderByID retrieves an order scoped to its owner
func (s *Store) GetOrderByID(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2", orderID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderLines retrieves all lines for an order in insertion order
func (s *Store) GetOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM order_lines WHERE order_id = $1 ORDER BY id", orderID)
	return lines, err
}
