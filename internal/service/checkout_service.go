package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/pricing"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartAccess is the slice of the cart the checkout needs: a snapshot to
// validate and a clear after a successful commit.
type CartAccess interface {
	Snapshot(ctx context.Context, sessionID string) ([]models.CartLine, error)
	Clear(ctx context.Context, sessionID string) error
}

// OrderCommitter performs the atomic order-plus-stock-decrement commit
type OrderCommitter interface {
	CreateOrderTx(ctx context.Context, order *models.Order, lines []models.OrderLine) error
}

// OrderEventPublisher publishes post-commit order events
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// CheckoutService converts a session cart into a persisted order.
// A checkout attempt is terminal on first success or first failure; no
// partial state is observable from outside.
type CheckoutService struct {
	carts     CartAccess
	products  ProductReader
	orders    OrderCommitter
	publisher OrderEventPublisher
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. publisher may be
// nil when event publishing is disabled.
func NewCheckoutService(
	carts CartAccess,
	products ProductReader,
	orders OrderCommitter,
	publisher OrderEventPublisher,
) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		products:  products,
		orders:    orders,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Checkout validates the session's cart against live stock, commits
// the order atomically, clears the cart and returns the created order
// with its lines.
//
// Validation re-reads every product here; cart-add-time checks are a
// UX convenience, not the authority. The commit itself re-checks stock
// once more via conditional decrements inside the transaction, so two
// attempts that both pass this validation still cannot oversell.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, sessionID string) (*models.Order, []models.OrderLine, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	snapshot, err := s.carts.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if len(snapshot) == 0 {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, nil, ErrEmptyCart
	}

	lines, err := s.validateLines(ctx, snapshot)
	if err != nil {
		return nil, nil, err
	}

	totals := pricing.ComputeTotals(snapshot, func(productID int64) (decimal.Decimal, bool) {
		for _, line := range lines {
			if line.ProductID == productID {
				return line.UnitPrice, true
			}
		}
		return decimal.Zero, false
	})

	order := &models.Order{
		UserID:      userID,
		Subtotal:    totals.Subtotal,
		TaxAmount:   totals.TaxAmount,
		TotalAmount: totals.GrandTotal,
		Status:      models.OrderStatusPending,
	}

	start := time.Now()
	err = s.orders.CreateOrderTx(ctx, order, lines)
	util.CheckoutCommitLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		var conflict *store.StockConflictError
		if errors.As(err, &conflict) {
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, nil, &InsufficientStockError{
				ProductID: conflict.ProductID,
				Available: conflict.Available,
				Requested: conflict.Requested,
			}
		}
		util.CheckoutFailedTotal.WithLabelValues("commit_error").Inc()
		return nil, nil, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		// the order is committed; an expiring cart key is the lesser evil
		s.logger.Error("Failed to clear cart after checkout",
			zap.String("session_id", sessionID),
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	s.publishOrderPlaced(ctx, order, lines)

	return order, lines, nil
}

// validateLines fetches every product, checks quantities against live
// stock and snapshots unit prices. Any failure aborts the attempt.
func (s *CheckoutService) validateLines(ctx context.Context, snapshot []models.CartLine) ([]models.OrderLine, error) {
	lines := make([]models.OrderLine, 0, len(snapshot))

	for _, entry := range snapshot {
		product, err := s.products.GetProductByID(ctx, entry.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				util.CheckoutFailedTotal.WithLabelValues("product_not_found").Inc()
				return nil, fmt.Errorf("product %d: %w", entry.ProductID, ErrProductNotFound)
			}
			return nil, err
		}

		if entry.Quantity > product.StockQuantity {
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, &InsufficientStockError{
				ProductID: entry.ProductID,
				Available: product.StockQuantity,
				Requested: entry.Quantity,
			}
		}

		lines = append(lines, models.OrderLine{
			ProductID: entry.ProductID,
			Quantity:  entry.Quantity,
			UnitPrice: product.Price,
		})
	}
	return lines, nil
}

func (s *CheckoutService) publishOrderPlaced(ctx context.Context, order *models.Order, lines []models.OrderLine) {
	if s.publisher == nil {
		return
	}

	items := make([]models.OrderLineData, len(lines))
	for i, line := range lines {
		items[i] = models.OrderLineData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}

	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}
