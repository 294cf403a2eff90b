package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repository"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher is the slice of the broker the order workflow needs.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// OrderService owns the order placement workflow and the order lifecycle.
type OrderService struct {
	products repository.ProductRepository
	carts    repository.CartRepository
	orders   repository.OrderRepository
	tx       repository.TxManager
	events   EventPublisher
	rules    pricing.Rules
	checkout config.CheckoutConfig
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	products repository.ProductRepository,
	carts repository.CartRepository,
	orders repository.OrderRepository,
	tx repository.TxManager,
	events EventPublisher,
	rules pricing.Rules,
	checkout config.CheckoutConfig,
) *OrderService {
	if checkout.MaxAttempts < 1 {
		checkout.MaxAttempts = 1
	}
	return &OrderService{
		products: products,
		carts:    carts,
		orders:   orders,
		tx:       tx,
		events:   events,
		rules:    rules,
		checkout: checkout,
		logger:   util.GetLogger(),
	}
}

// PlaceOrderRequest carries the checkout inputs that are not already in the
// user's cart. Prices are never accepted from the caller.
type PlaceOrderRequest struct {
	ShippingAddress models.Address `json:"shipping_address" binding:"required"`
	BillingAddress  models.Address `json:"billing_address" binding:"required"`
	PaymentMethod   string         `json:"payment_method" binding:"required"`
	Notes           string         `json:"notes"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
}

// PlaceOrder converts the user's cart into a durable order. The stock
// re-read, pricing, order insert, stock decrement and cart clearing run in
// one atomic unit; a write conflict retries the whole unit with fresh reads.
func (s *OrderService) PlaceOrder(ctx context.Context, userID int64, req *PlaceOrderRequest) (*models.Order, []models.OrderLine, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if userID <= 0 {
		util.CheckoutFailedTotal.WithLabelValues("unauthenticated").Inc()
		return nil, nil, ErrUnauthenticated
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout request",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			lines, err := s.orders.GetLines(ctx, existing.ID)
			if err != nil {
				return nil, nil, err
			}
			return existing, lines, nil
		}
	}

	cartLines, err := s.carts.List(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cartLines) == 0 {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, nil, ErrEmptyCart
	}

	var (
		order      *models.Order
		orderLines []models.OrderLine
		lastErr    error
	)

	for attempt := 1; attempt <= s.checkout.MaxAttempts; attempt++ {
		order, orderLines, lastErr = s.placeOrderTx(ctx, userID, cartLines, req)
		if lastErr == nil {
			break
		}

		// Domain errors are final; only write conflicts are worth retrying,
		// with stock re-read on the next attempt.
		if !errors.Is(lastErr, repository.ErrConflict) {
			s.countCheckoutFailure(lastErr)
			return nil, nil, lastErr
		}

		util.CheckoutConflictRetries.Inc()
		s.logger.Warn("Checkout transaction conflict, retrying",
			zap.Int64("user_id", userID),
			zap.Int("attempt", attempt))
	}

	if lastErr != nil {
		util.CheckoutFailedTotal.WithLabelValues("conflict_retries_exhausted").Inc()
		return nil, nil, &OrderCreationFailedError{Attempts: s.checkout.MaxAttempts, Err: lastErr}
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total", order.Total))

	s.publishOrderPlaced(ctx, order, orderLines)

	return order, orderLines, nil
}

// placeOrderTx runs one checkout attempt as a single atomic unit.
func (s *OrderService) placeOrderTx(ctx context.Context, userID int64, cartLines []models.CartLine, req *PlaceOrderRequest) (*models.Order, []models.OrderLine, error) {
	var (
		order      *models.Order
		orderLines []models.OrderLine
	)

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		productIDs := make([]int64, len(cartLines))
		for i, line := range cartLines {
			productIDs[i] = line.ProductID
		}

		// Fresh locked read: the stock observed here is the stock the
		// decrement below applies to, so concurrent checkouts cannot both
		// observe the same units.
		locked, err := s.products.GetByIDsForUpdate(ctx, productIDs)
		if err != nil {
			return fmt.Errorf("failed to read products: %w", err)
		}

		byID := make(map[int64]*models.Product, len(locked))
		for i := range locked {
			byID[locked[i].ID] = &locked[i]
		}

		for _, line := range cartLines {
			product, ok := byID[line.ProductID]
			if !ok {
				return &ProductUnavailableError{ProductID: line.ProductID}
			}
			if line.Quantity > product.Stock {
				return &InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: product.Stock,
				}
			}
		}

		priceInputs := make([]pricing.LineInput, len(cartLines))
		orderLines = make([]models.OrderLine, len(cartLines))
		for i, line := range cartLines {
			product := byID[line.ProductID]
			priceInputs[i] = pricing.LineInput{UnitPrice: product.Price, Quantity: line.Quantity}
			orderLines[i] = models.OrderLine{
				ProductID:   product.ID,
				ProductSKU:  product.SKU,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   product.Price,
				LineTotal:   pricing.LineTotal(product.Price, line.Quantity),
			}
		}

		quote := pricing.Calculate(priceInputs, s.rules)

		order = &models.Order{
			ID:              newOrderID(),
			UserID:          userID,
			Status:          models.StatusPending,
			Subtotal:        quote.Subtotal,
			Tax:             quote.Tax,
			Shipping:        quote.Shipping,
			Total:           quote.Total,
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			PaymentMethod:   req.PaymentMethod,
			Notes:           req.Notes,
			IdempotencyKey:  req.IdempotencyKey,
		}

		if err := s.orders.Create(ctx, order, orderLines); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, line := range cartLines {
			if err := s.products.AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
				return fmt.Errorf("failed to decrement stock for product %d: %w", line.ProductID, err)
			}
		}

		if err := s.carts.ClearLines(ctx, userID, productIDs); err != nil {
			return fmt.Errorf("failed to clear cart lines: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return order, orderLines, nil
}

func (s *OrderService) countCheckoutFailure(err error) {
	var unavailable *ProductUnavailableError
	var stock *InsufficientStockError
	switch {
	case errors.As(err, &unavailable):
		util.CheckoutFailedTotal.WithLabelValues("product_unavailable").Inc()
	case errors.As(err, &stock):
		util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
	default:
		util.CheckoutFailedTotal.WithLabelValues("storage_error").Inc()
	}
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order, lines []models.OrderLine) {
	if s.events == nil {
		return
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Lines:   toLineData(lines),
	}

	// Publishing is best effort: the order is already durable.
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

func toLineData(lines []models.OrderLine) []models.OrderLineData {
	data := make([]models.OrderLineData, len(lines))
	for i, l := range lines {
		data[i] = models.OrderLineData{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	return data
}

// newOrderID builds an opaque, URL-safe order token. Not a sequential
// integer, so order volume cannot be inferred from identifiers.
func newOrderID() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102150405"), uuid.New().String()[:8])
}
