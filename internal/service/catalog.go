package service

import (
	"context"
	"errors"

	"storefront/internal/models"
	"storefront/internal/repository"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ProjectionCache is the read-through cache in front of the catalog. It has
// no authority: misses and errors fall through to the database.
type ProjectionCache interface {
	GetProduct(ctx context.Context, productID int64) (*models.Product, error)
	SetProduct(ctx context.Context, product *models.Product) error
	SetProducts(ctx context.Context, products []models.Product) error
	InvalidateProducts(ctx context.Context, productIDs []int64) error
}

// CatalogService is the read-only catalog reader. It never mutates stock;
// stock writes happen only inside the order workflow's transaction.
type CatalogService struct {
	products repository.ProductRepository
	cache    ProjectionCache
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(products repository.ProductRepository, cache ProjectionCache) *CatalogService {
	return &CatalogService{
		products: products,
		cache:    cache,
		logger:   util.GetLogger(),
	}
}

// GetActiveProduct returns one active product, serving from the projection
// cache when possible.
func (s *CatalogService) GetActiveProduct(ctx context.Context, productID int64) (*models.Product, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProduct(ctx, productID)
		if err != nil {
			s.logger.Warn("Projection cache read failed, falling back to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		} else if cached != nil && cached.Active {
			util.CatalogCacheHits.WithLabelValues("hit").Inc()
			return cached, nil
		}
		util.CatalogCacheHits.WithLabelValues("miss").Inc()
	}

	product, err := s.products.GetActiveByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ProductUnavailableError{ProductID: productID}
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, product); err != nil {
			s.logger.Warn("Failed to populate projection cache", zap.Error(err))
		}
	}

	return product, nil
}

// ListProducts returns all active products straight from the database.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.products.List(ctx)
}

// RefreshProjection re-reads the given products from the database and
// rewrites their cache entries. The projection worker calls this after order
// events so cached stock trails the durable truth only briefly.
func (s *CatalogService) RefreshProjection(ctx context.Context, productIDs []int64) error {
	if s.cache == nil || len(productIDs) == 0 {
		return nil
	}

	products, err := s.products.GetActiveByIDs(ctx, productIDs)
	if err != nil {
		return err
	}

	if err := s.cache.SetProducts(ctx, products); err != nil {
		return err
	}

	// Products that vanished or went inactive since the event must not stay
	// cached with stale data.
	fresh := make(map[int64]bool, len(products))
	for i := range products {
		fresh[products[i].ID] = true
	}
	var stale []int64
	for _, id := range productIDs {
		if !fresh[id] {
			stale = append(stale, id)
		}
	}
	return s.cache.InvalidateProducts(ctx, stale)
}
