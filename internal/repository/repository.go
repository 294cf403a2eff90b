// Package repository defines the persistence boundary the order workflow
// writes through. The Postgres implementation lives in internal/store; an
// in-memory implementation backs the service tests.
package repository

import (
	"context"
	"errors"

	"storefront/internal/models"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a transaction loses a write race (serialization
// failure, deadlock victim). The checkout workflow retries on it.
var ErrConflict = errors.New("write conflict")

// ProductRepository reads the catalog. Stock is mutated only through
// AdjustStock inside a transaction owned by the order workflow.
type ProductRepository interface {
	GetActiveByID(ctx context.Context, id int64) (*models.Product, error)
	GetActiveByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	// GetByIDsForUpdate locks the product rows for the remainder of the
	// surrounding transaction. Must be called inside TxManager.WithTx.
	GetByIDsForUpdate(ctx context.Context, ids []int64) ([]models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
	// AdjustStock adds delta (negative to decrement) to a product's stock.
	// Implementations must refuse to let stock go negative.
	AdjustStock(ctx context.Context, productID int64, delta int) error
}

// CartRepository manages one user's cart lines. Implementations must never
// touch another user's lines.
type CartRepository interface {
	UpsertLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error)
	RemoveLine(ctx context.Context, userID, productID int64) error
	ClearLines(ctx context.Context, userID int64, productIDs []int64) error
	List(ctx context.Context, userID int64) ([]models.CartLine, error)
}

// OrderRepository persists orders and their snapshot lines.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order, lines []models.OrderLine) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetLines(ctx context.Context, orderID string) ([]models.OrderLine, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status models.Status) error
}

// EventLog records consumed event IDs for idempotent event handling.
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// TxManager runs fn inside a single atomic unit. Repository calls made with
// the context passed to fn join that unit; if fn returns an error everything
// rolls back.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
