package worker

import (
	"context"
	"log"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ProjectionWorker consumes order events and refreshes the redis catalog
// projection for the affected products. Events are deduplicated through the
// processed-event log so redeliveries are harmless.
type ProjectionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	catalog      *service.CatalogService
	eventLog     repository.EventLog
	logger       *zap.Logger
}

// NewProjectionWorker creates a new projection worker
func NewProjectionWorker(
	consumer *broker.Consumer,
	catalog *service.CatalogService,
	eventLog repository.EventLog,
) *ProjectionWorker {
	w := &ProjectionWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		catalog:      catalog,
		eventLog:     eventLog,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler.OnOrderCancelled(w.handleOrderCancelled)

	return w
}

// Start starts the worker
func (w *ProjectionWorker) Start(ctx context.Context) error {
	log.Println("Starting projection worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProjectionWorker) Stop() error {
	log.Println("Stopping projection worker...")
	return w.consumer.Close()
}

func (w *ProjectionWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return w.refresh(ctx, event.EventID, event.EventType, lineProductIDs(event.Lines))
}

func (w *ProjectionWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	// Without restock the cancellation did not move stock, but refreshing is
	// still cheap and keeps the projection honest.
	return w.refresh(ctx, event.EventID, event.EventType, lineProductIDs(event.Lines))
}

func (w *ProjectionWorker) refresh(ctx context.Context, eventID, eventType string, productIDs []int64) error {
	processed, err := w.eventLog.IsEventProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", eventID))
		return nil
	}

	if err := w.catalog.RefreshProjection(ctx, productIDs); err != nil {
		return err
	}

	return w.eventLog.MarkEventProcessed(ctx, eventID, eventType)
}

func lineProductIDs(lines []models.OrderLineData) []int64 {
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}
