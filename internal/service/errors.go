package service

import (
	"errors"
	"fmt"

	"storefront/internal/models"
)

// Precondition sentinels. Both abort a checkout before any write.
var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrUnauthenticated = errors.New("caller is not authenticated")
)

// ProductUnavailableError reports a cart line whose product no longer exists
// or is inactive.
type ProductUnavailableError struct {
	ProductID int64
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %d is unavailable", e.ProductID)
}

// InsufficientStockError reports a line whose requested quantity exceeds the
// product's current stock. Available lets the caller offer to clamp the
// quantity instead of failing outright.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError reports a rejected order status transition.
type InvalidTransitionError struct {
	OrderID string
	From    models.Status
	To      models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// OrderCreationFailedError reports a checkout that exhausted its transaction
// retries. Nothing was committed; the caller may retry the whole call.
type OrderCreationFailedError struct {
	Attempts int
	Err      error
}

func (e *OrderCreationFailedError) Error() string {
	return fmt.Sprintf("order creation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *OrderCreationFailedError) Unwrap() error {
	return e.Err
}
