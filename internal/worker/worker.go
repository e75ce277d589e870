package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"shop-service/internal/broker"
	"shop-service/internal/models"
	"shop-service/internal/service"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/google/uuid"
)

// StockWorker consumes OrderPlaced events and publishes StockDepleted
// follow-ups for every product the order drained to zero. Runs outside
// the request path; depletion is detected from the post-commit stock.
type StockWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	products     service.ProductReader
	publisher    *broker.EventPublisher
}

// NewStockWorker creates a new stock worker
func NewStockWorker(
	consumer *broker.Consumer,
	products service.ProductReader,
	publisher *broker.EventPublisher,
) *StockWorker {
	w := &StockWorker{
		consumer:  consumer,
		products:  products,
		publisher: publisher,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockWorker) Start(ctx context.Context) error {
	log.Println("Starting stock worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockWorker) Stop() error {
	log.Println("Stopping stock worker...")
	return w.consumer.Close()
}

func (w *StockWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	for _, item := range event.Items {
		product, err := w.products.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}

		if product.InStock() {
			continue
		}

		util.StockDepletedTotal.Inc()
		log.Printf("Stock depleted: product=%d (%s), order=%d",
			product.ID, product.Name, event.OrderID)

		depleted := &models.StockDepletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockDepleted,
				Timestamp: time.Now(),
			},
			ProductID:   product.ID,
			ProductName: product.Name,
			OrderID:     event.OrderID,
		}

		if err := w.publisher.PublishStockDepleted(ctx, depleted); err != nil {
			log.Printf("Failed to publish StockDepleted event: %v", err)
		}
	}
	return nil
}
