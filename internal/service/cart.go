package service

import (
	"context"
	"errors"

	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ErrInvalidQuantity rejects cart mutations with a quantity below one.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// CartService is the cart aggregate: the per-user set of (product, quantity)
// lines that checkout later converts into an order.
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts repository.CartRepository, products repository.ProductRepository) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		logger:   util.GetLogger(),
	}
}

// UpsertLine adds a product to the user's cart. Adding a product already in
// the cart raises its quantity instead of creating a duplicate line.
func (s *CartService) UpsertLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	// Inactive or unknown products never enter a cart. Stock is not checked
	// here: it is only authoritative inside the checkout transaction.
	if _, err := s.products.GetActiveByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ProductUnavailableError{ProductID: productID}
		}
		return nil, err
	}

	line, err := s.carts.UpsertLine(ctx, userID, productID, quantity)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Cart line upserted",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", line.Quantity))
	return line, nil
}

// RemoveLine removes a product from the user's cart
func (s *CartService) RemoveLine(ctx context.Context, userID, productID int64) error {
	if userID <= 0 {
		return ErrUnauthenticated
	}
	return s.carts.RemoveLine(ctx, userID, productID)
}

// List returns the user's cart lines
func (s *CartService) List(ctx context.Context, userID int64) ([]models.CartLine, error) {
	if userID <= 0 {
		return nil, ErrUnauthenticated
	}
	return s.carts.List(ctx, userID)
}
