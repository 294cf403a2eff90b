package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CancelOrder cancels a user's own order. Only PENDING and CONFIRMED orders
// can be cancelled; whether stock returns to inventory is an explicit
// configuration choice, applied in the same transaction as the status flip.
func (s *OrderService) CancelOrder(ctx context.Context, userID int64, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	if userID <= 0 {
		return nil, ErrUnauthenticated
	}

	var (
		cancelled *models.Order
		lines     []models.OrderLine
	)

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		// Orders are scoped to their owner; an order belonging to someone
		// else looks like it does not exist.
		if order.UserID != userID {
			return repository.ErrNotFound
		}

		if !models.Cancellable(order.Status) {
			return &InvalidTransitionError{
				OrderID: orderID,
				From:    order.Status,
				To:      models.StatusCancelled,
			}
		}

		if err := s.orders.UpdateStatus(ctx, orderID, models.StatusCancelled); err != nil {
			return err
		}

		lines, err = s.orders.GetLines(ctx, orderID)
		if err != nil {
			return err
		}

		if s.checkout.RestockOnCancel {
			for _, line := range lines {
				if err := s.products.AdjustStock(ctx, line.ProductID, line.Quantity); err != nil {
					return fmt.Errorf("failed to restock product %d: %w", line.ProductID, err)
				}
			}
		}

		order.Status = models.StatusCancelled
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID),
		zap.Bool("restocked", s.checkout.RestockOnCancel))

	s.publishOrderCancelled(ctx, cancelled, lines)

	return cancelled, nil
}

// UpdateStatus performs an admin transition of an order's status, rejecting
// anything outside the allowed transition table.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, to models.Status) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !models.ValidStatus(to) {
		return nil, &InvalidTransitionError{OrderID: orderID, To: to}
	}

	var (
		updated *models.Order
		from    models.Status
	)

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		from = order.Status
		if !models.CanTransition(from, to) {
			return &InvalidTransitionError{OrderID: orderID, From: from, To: to}
		}

		if err := s.orders.UpdateStatus(ctx, orderID, to); err != nil {
			return err
		}

		order.Status = to
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	if s.events != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID: orderID,
			From:    from,
			To:      to,
		}
		if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}

	return updated, nil
}

// GetOrderForUser retrieves one of the user's orders with its lines.
func (s *OrderService) GetOrderForUser(ctx context.Context, userID int64, orderID string) (*models.Order, []models.OrderLine, error) {
	if userID <= 0 {
		return nil, nil, ErrUnauthenticated
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.UserID != userID {
		return nil, nil, repository.ErrNotFound
	}

	lines, err := s.orders.GetLines(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, lines, nil
}

// ListOrdersForUser retrieves the user's orders, newest first.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID int64) ([]models.Order, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	return s.orders.ListByUser(ctx, userID)
}

func (s *OrderService) publishOrderCancelled(ctx context.Context, order *models.Order, lines []models.OrderLine) {
	if s.events == nil {
		return
	}

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID:   order.ID,
		UserID:    order.UserID,
		Restocked: s.checkout.RestockOnCancel,
		Lines:     toLineData(lines),
	}

	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}
