package service

import (
	"errors"
	"fmt"
)

// Cart and checkout failures the caller can act on. None of these are
// fatal; handlers translate them into responses.
var (
	// ErrOutOfStock: the product has zero units available at add-time
	ErrOutOfStock = errors.New("product is out of stock")

	// ErrStockLimitReached: the cart already holds every available unit
	ErrStockLimitReached = errors.New("maximum stock quantity already in cart")

	// ErrProductNotFound: a cart line references a product that no
	// longer exists; fatal for checkout, pruned for display
	ErrProductNotFound = errors.New("product not found")

	// ErrEmptyCart: checkout attempted on an empty cart
	ErrEmptyCart = errors.New("cart is empty")

	// ErrCommitFailed wraps storage failures during the atomic commit;
	// the caller should retry the whole checkout from validation
	ErrCommitFailed = errors.New("checkout commit failed")
)

// InsufficientStockError reports a requested quantity above the live
// stock, either at set-quantity time or during checkout validation.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}
