package service

import (
	"context"
	"errors"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/pricing"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductReader is the read-only catalog access the cart and checkout
// services need. Missing products are reported by wrapping
// store.ErrNotFound.
type ProductReader interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// CartStorage is the session-keyed cart substrate. The limit passed to
// AddItem is enforced atomically by the storage.
type CartStorage interface {
	AddItem(ctx context.Context, sessionID string, productID int64, limit int) (int64, bool, error)
	SetItem(ctx context.Context, sessionID string, productID int64, qty int) error
	RemoveItem(ctx context.Context, sessionID string, productID int64) error
	ClearCart(ctx context.Context, sessionID string) error
	GetCart(ctx context.Context, sessionID string) ([]models.CartLine, error)
}

// CartService owns the session cart business rules: stock-capped adds,
// quantity updates, lazy pruning of deleted products, and totals.
type CartService struct {
	storage  CartStorage
	products ProductReader
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(storage CartStorage, products ProductReader) *CartService {
	return &CartService{
		storage:  storage,
		products: products,
		logger:   util.GetLogger(),
	}
}

// Add puts one more unit of productID into the session's cart. The
// cart quantity is capped at the live stock; the cap is a UX guard, the
// authoritative check happens again at checkout. Returns the cart's
// total item count.
func (s *CartService) Add(ctx context.Context, sessionID string, productID int64) (int, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	product, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
		}
		return 0, err
	}

	if !product.InStock() {
		return 0, fmt.Errorf("product %d: %w", productID, ErrOutOfStock)
	}

	_, ok, err := s.storage.AddItem(ctx, sessionID, productID, product.StockQuantity)
	if err != nil {
		return 0, fmt.Errorf("failed to add to cart: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, ErrStockLimitReached)
	}

	util.CartOpsTotal.WithLabelValues("add").Inc()

	lines, err := s.storage.GetCart(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to read cart: %w", err)
	}
	return itemCount(lines), nil
}

// Remove deletes the product's entry from the cart, no-op when absent,
// and returns the recomputed totals.
func (s *CartService) Remove(ctx context.Context, sessionID string, productID int64) (models.CartTotals, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Remove")
	defer span.End()

	if err := s.storage.RemoveItem(ctx, sessionID, productID); err != nil {
		return models.CartTotals{}, fmt.Errorf("failed to remove from cart: %w", err)
	}

	util.CartOpsTotal.WithLabelValues("remove").Inc()

	_, totals, err := s.Contents(ctx, sessionID)
	return totals, err
}

// SetQuantity sets the product's quantity exactly. A quantity of zero
// or less behaves as Remove.
func (s *CartService) SetQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (models.CartTotals, error) {
	ctx, span := util.StartSpan(ctx, "CartService.SetQuantity")
	defer span.End()

	if quantity <= 0 {
		return s.Remove(ctx, sessionID, productID)
	}

	product, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.CartTotals{}, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
		}
		return models.CartTotals{}, err
	}

	if quantity > product.StockQuantity {
		return models.CartTotals{}, &InsufficientStockError{
			ProductID: productID,
			Available: product.StockQuantity,
			Requested: quantity,
		}
	}

	if err := s.storage.SetItem(ctx, sessionID, productID, quantity); err != nil {
		return models.CartTotals{}, fmt.Errorf("failed to update cart: %w", err)
	}

	util.CartOpsTotal.WithLabelValues("set_quantity").Inc()

	_, totals, err := s.Contents(ctx, sessionID)
	return totals, err
}

// Clear empties the cart unconditionally
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	if err := s.storage.ClearCart(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartOpsTotal.WithLabelValues("clear").Inc()
	return nil
}

// Snapshot returns the cart's lines in insertion order. Lines whose
// product has been deleted are pruned from the store and dropped from
// the result.
func (s *CartService) Snapshot(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Snapshot")
	defer span.End()

	lines, err := s.storage.GetCart(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if len(lines) == 0 {
		return []models.CartLine{}, nil
	}

	existing, err := s.lookupProducts(ctx, lines)
	if err != nil {
		return nil, err
	}

	kept := make([]models.CartLine, 0, len(lines))
	for _, line := range lines {
		if _, ok := existing[line.ProductID]; !ok {
			if err := s.storage.RemoveItem(ctx, sessionID, line.ProductID); err != nil {
				s.logger.Warn("Failed to prune deleted product from cart",
					zap.String("session_id", sessionID),
					zap.Int64("product_id", line.ProductID),
					zap.Error(err))
			}
			continue
		}
		kept = append(kept, line)
	}
	return kept, nil
}

// Contents returns the pruned snapshot together with its totals
func (s *CartService) Contents(ctx context.Context, sessionID string) ([]models.CartLine, models.CartTotals, error) {
	lines, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, models.CartTotals{}, err
	}

	products, err := s.lookupProducts(ctx, lines)
	if err != nil {
		return nil, models.CartTotals{}, err
	}

	totals := pricing.ComputeTotals(lines, func(productID int64) (decimal.Decimal, bool) {
		p, ok := products[productID]
		if !ok {
			return decimal.Zero, false
		}
		return p.Price, true
	})

	return lines, models.CartTotals{
		ItemCount:  itemCount(lines),
		Subtotal:   totals.Subtotal,
		TaxAmount:  totals.TaxAmount,
		GrandTotal: totals.GrandTotal,
	}, nil
}

func (s *CartService) lookupProducts(ctx context.Context, lines []models.CartLine) (map[int64]models.Product, error) {
	if len(lines) == 0 {
		return map[int64]models.Product{}, nil
	}

	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart products: %w", err)
	}

	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

func itemCount(lines []models.CartLine) int {
	var total int
	for _, line := range lines {
		total += line.Quantity
	}
	return total
}
