package service

import (
	"context"
	"sync"
	"testing"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRules = pricing.Rules{
	TaxRateBps:            1000, // 10%
	FreeShippingThreshold: 10000,
	FlatShippingFee:       999,
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu        sync.Mutex
	placed    []*models.OrderPlacedEvent
	cancelled []*models.OrderCancelledEvent
	changed   []*models.OrderStatusChangedEvent
}

func (r *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, e)
	return nil
}

func (r *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, e)
	return nil
}

func (r *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, e)
	return nil
}

type testEnv struct {
	store  *repository.MemoryStore
	carts  *repository.MemoryCarts
	orders *OrderService
	events *recordingPublisher
}

func newTestEnv(t *testing.T, restock bool) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	carts := repository.NewMemoryCarts(store)
	events := &recordingPublisher{}
	orders := NewOrderService(store, carts, store, repository.NewMemoryTx(store), events,
		testRules, config.CheckoutConfig{MaxAttempts: 3, RestockOnCancel: restock})
	return &testEnv{store: store, carts: carts, orders: orders, events: events}
}

func checkoutReq() *PlaceOrderRequest {
	return &PlaceOrderRequest{
		ShippingAddress: models.Address{Name: "Jo", Street: "1 Main St", City: "Omaha", Zip: "68101", Country: "US"},
		BillingAddress:  models.Address{Name: "Jo", Street: "1 Main St", City: "Omaha", Zip: "68101", Country: "US"},
		PaymentMethod:   "card",
	}
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 10000, Stock: 5})
	env.store.SeedProduct(models.Product{ID: 2, SKU: "B-1", Name: "Gadget", Active: true, Price: 500, Stock: 3})

	_, err := env.carts.UpsertLine(ctx, 7, 1, 2)
	require.NoError(t, err)
	_, err = env.carts.UpsertLine(ctx, 7, 2, 1)
	require.NoError(t, err)
	// another user's cart must come through the checkout untouched
	_, err = env.carts.UpsertLine(ctx, 8, 2, 1)
	require.NoError(t, err)

	order, lines, err := env.orders.PlaceOrder(ctx, 7, checkoutReq())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, int64(20500), order.Subtotal)
	assert.Equal(t, int64(2050), order.Tax)
	assert.Equal(t, int64(0), order.Shipping) // over threshold
	assert.Equal(t, int64(22550), order.Total)
	assert.Len(t, lines, 2)
	assert.Equal(t, "A-1", lines[0].ProductSKU)
	assert.Equal(t, int64(20000), lines[0].LineTotal)

	p1, err := env.store.GetActiveByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, p1.Stock)
	p2, err := env.store.GetActiveByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p2.Stock)

	cart, err := env.carts.List(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, cart)

	otherCart, err := env.carts.List(ctx, 8)
	require.NoError(t, err)
	assert.Len(t, otherCart, 1)

	require.Len(t, env.events.placed, 1)
	assert.Equal(t, order.ID, env.events.placed[0].OrderID)
}

func TestPlaceOrderFreeShippingBoundary(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	// subtotal lands exactly on the threshold: shipping must be free
	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 5000, Stock: 10})
	_, err := env.carts.UpsertLine(ctx, 7, 1, 2)
	require.NoError(t, err)

	order, _, err := env.orders.PlaceOrder(ctx, 7, checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, int64(10000), order.Subtotal)
	assert.Equal(t, int64(0), order.Shipping)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	env := newTestEnv(t, true)

	_, _, err := env.orders.PlaceOrder(context.Background(), 7, checkoutReq())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrderUnauthenticated(t *testing.T) {
	env := newTestEnv(t, true)

	_, _, err := env.orders.PlaceOrder(context.Background(), 0, checkoutReq())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestPlaceOrderInactiveProduct(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: false, Price: 100, Stock: 5})
	_, err := env.carts.UpsertLine(ctx, 7, 1, 1)
	require.NoError(t, err)

	_, _, err = env.orders.PlaceOrder(ctx, 7, checkoutReq())

	var unavailable *ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, int64(1), unavailable.ProductID)

	orders, err := env.orders.ListOrdersForUser(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 10000, Stock: 1})
	_, err := env.carts.UpsertLine(ctx, 7, 1, 2)
	require.NoError(t, err)

	_, _, err = env.orders.PlaceOrder(ctx, 7, checkoutReq())

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(1), stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	// nothing happened: no order, stock unchanged, cart intact
	orders, err := env.orders.ListOrdersForUser(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, orders)

	p, err := env.store.GetActiveByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)

	cart, err := env.carts.List(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, cart, 1)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 100, Stock: 1})

	_, err := env.carts.UpsertLine(ctx, 1, 1, 1)
	require.NoError(t, err)
	_, err = env.carts.UpsertLine(ctx, 2, 1, 1)
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, userID := range []int64{1, 2} {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_, _, err := env.orders.PlaceOrder(ctx, uid, checkoutReq())
			results <- err
		}(userID)
	}
	wg.Wait()
	close(results)

	var successes, stockFailures int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 0, stockErr.Available)
		stockFailures++
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, stockFailures)

	p, err := env.store.GetActiveByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestOrderLinePricesAreSnapshots(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 10000, Stock: 5})
	_, err := env.carts.UpsertLine(ctx, 7, 1, 1)
	require.NoError(t, err)

	order, _, err := env.orders.PlaceOrder(ctx, 7, checkoutReq())
	require.NoError(t, err)

	// catalog price doubles after the purchase
	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 20000, Stock: 4})

	stored, lines, err := env.orders.GetOrderForUser(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), lines[0].UnitPrice)
	assert.Equal(t, order.Total, stored.Total)
}

func TestPlaceOrderIdempotencyKey(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 100, Stock: 5})
	_, err := env.carts.UpsertLine(ctx, 7, 1, 2)
	require.NoError(t, err)

	req := checkoutReq()
	req.IdempotencyKey = "key-123"

	first, _, err := env.orders.PlaceOrder(ctx, 7, req)
	require.NoError(t, err)

	// retry after e.g. a lost response: same order back, no second decrement
	second, _, err := env.orders.PlaceOrder(ctx, 7, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	p, err := env.store.GetActiveByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
}

// flakyTx fails the first n attempts with a write conflict, then delegates.
type flakyTx struct {
	inner    repository.TxManager
	failures int
}

func (f *flakyTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.failures > 0 {
		f.failures--
		return repository.ErrConflict
	}
	return f.inner.WithTx(ctx, fn)
}

func TestPlaceOrderRetriesOnConflict(t *testing.T) {
	store := repository.NewMemoryStore()
	carts := repository.NewMemoryCarts(store)
	ctx := context.Background()

	store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 100, Stock: 5})
	_, err := carts.UpsertLine(ctx, 7, 1, 1)
	require.NoError(t, err)

	tx := &flakyTx{inner: repository.NewMemoryTx(store), failures: 2}
	orders := NewOrderService(store, carts, store, tx, nil, testRules,
		config.CheckoutConfig{MaxAttempts: 3, RestockOnCancel: true})

	order, _, err := orders.PlaceOrder(ctx, 7, checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
}

func TestPlaceOrderConflictRetriesExhausted(t *testing.T) {
	store := repository.NewMemoryStore()
	carts := repository.NewMemoryCarts(store)
	ctx := context.Background()

	store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 100, Stock: 5})
	_, err := carts.UpsertLine(ctx, 7, 1, 1)
	require.NoError(t, err)

	tx := &flakyTx{inner: repository.NewMemoryTx(store), failures: 10}
	orders := NewOrderService(store, carts, store, tx, nil, testRules,
		config.CheckoutConfig{MaxAttempts: 3, RestockOnCancel: true})

	_, _, err = orders.PlaceOrder(ctx, 7, checkoutReq())

	var creationErr *OrderCreationFailedError
	require.ErrorAs(t, err, &creationErr)
	assert.Equal(t, 3, creationErr.Attempts)

	// nothing committed
	p, err := store.GetActiveByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}
