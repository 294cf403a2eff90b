package service

import (
	"context"
	"testing"

	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeTestOrder(t *testing.T, env *testEnv, userID int64) *models.Order {
	t.Helper()
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 1000, Stock: 10})
	_, err := env.carts.UpsertLine(ctx, userID, 1, 3)
	require.NoError(t, err)

	order, _, err := env.orders.PlaceOrder(ctx, userID, checkoutReq())
	require.NoError(t, err)
	return order
}

func TestCancelOrderRestocks(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	order := placeTestOrder(t, env, 7)

	p, err := env.store.GetActiveByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 7, p.Stock)

	cancelled, err := env.orders.CancelOrder(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	p, err = env.store.GetActiveByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)

	require.Len(t, env.events.cancelled, 1)
	assert.True(t, env.events.cancelled[0].Restocked)
}

func TestCancelOrderWithoutRestock(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	order := placeTestOrder(t, env, 7)

	_, err := env.orders.CancelOrder(ctx, 7, order.ID)
	require.NoError(t, err)

	// status changed, inventory untouched
	p, err := env.store.GetActiveByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
}

func TestCancelOrderFromConfirmed(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	order := placeTestOrder(t, env, 7)

	_, err := env.orders.UpdateStatus(ctx, order.ID, models.StatusConfirmed)
	require.NoError(t, err)

	cancelled, err := env.orders.CancelOrder(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
}

func TestCancelOrderAfterShipmentRejected(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	order := placeTestOrder(t, env, 7)

	for _, status := range []models.Status{models.StatusConfirmed, models.StatusProcessing, models.StatusShipped} {
		_, err := env.orders.UpdateStatus(ctx, order.ID, status)
		require.NoError(t, err)
	}

	_, err := env.orders.CancelOrder(ctx, 7, order.ID)

	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.StatusShipped, transitionErr.From)
	assert.Equal(t, models.StatusCancelled, transitionErr.To)
}

func TestCancelOrderTwiceRejected(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	order := placeTestOrder(t, env, 7)

	_, err := env.orders.CancelOrder(ctx, 7, order.ID)
	require.NoError(t, err)

	_, err = env.orders.CancelOrder(ctx, 7, order.ID)
	var transitionErr *InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)
}

func TestCancelOrderOwnedByAnotherUser(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	order := placeTestOrder(t, env, 7)

	_, err := env.orders.CancelOrder(ctx, 99, order.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.Status // transitions applied before the attempt
		to      models.Status
		allowed bool
	}{
		{"pending to confirmed", nil, models.StatusConfirmed, true},
		{"pending to processing skips confirmation", nil, models.StatusProcessing, false},
		{"pending to delivered", nil, models.StatusDelivered, false},
		{"confirmed to processing", []models.Status{models.StatusConfirmed}, models.StatusProcessing, true},
		{"processing to shipped", []models.Status{models.StatusConfirmed, models.StatusProcessing}, models.StatusShipped, true},
		{"shipped to delivered", []models.Status{models.StatusConfirmed, models.StatusProcessing, models.StatusShipped}, models.StatusDelivered, true},
		{"shipped backwards to processing", []models.Status{models.StatusConfirmed, models.StatusProcessing, models.StatusShipped}, models.StatusProcessing, false},
		{"delivered to refunded", []models.Status{models.StatusConfirmed, models.StatusProcessing, models.StatusShipped, models.StatusDelivered}, models.StatusRefunded, true},
		{"delivered to cancelled", []models.Status{models.StatusConfirmed, models.StatusProcessing, models.StatusShipped, models.StatusDelivered}, models.StatusCancelled, false},
		{"cancelled to refunded", []models.Status{models.StatusCancelled}, models.StatusRefunded, true},
		{"cancelled back to pending", []models.Status{models.StatusCancelled}, models.StatusPending, false},
		{"refunded is terminal", []models.Status{models.StatusCancelled, models.StatusRefunded}, models.StatusPending, false},
		{"unknown status", nil, models.Status("LOST"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			ctx := context.Background()
			order := placeTestOrder(t, env, 7)

			for _, status := range tt.path {
				_, err := env.orders.UpdateStatus(ctx, order.ID, status)
				require.NoError(t, err)
			}

			updated, err := env.orders.UpdateStatus(ctx, order.ID, tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, updated.Status)
			} else {
				var transitionErr *InvalidTransitionError
				assert.ErrorAs(t, err, &transitionErr)
			}
		})
	}
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	env := newTestEnv(t, true)

	_, err := env.orders.UpdateStatus(context.Background(), "ORD-missing", models.StatusConfirmed)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListOrdersForUserScoped(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 1000, Stock: 10})
	for _, userID := range []int64{7, 8} {
		_, err := env.carts.UpsertLine(ctx, userID, 1, 1)
		require.NoError(t, err)
		_, _, err = env.orders.PlaceOrder(ctx, userID, checkoutReq())
		require.NoError(t, err)
	}

	orders, err := env.orders.ListOrdersForUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(7), orders[0].UserID)
}

func TestOrderIDsAreOpaque(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.store.SeedProduct(models.Product{ID: 1, SKU: "A-1", Name: "Widget", Active: true, Price: 1000, Stock: 10})

	seen := make(map[string]bool)
	for _, userID := range []int64{1, 2, 3} {
		_, err := env.carts.UpsertLine(ctx, userID, 1, 1)
		require.NoError(t, err)
		order, _, err := env.orders.PlaceOrder(ctx, userID, checkoutReq())
		require.NoError(t, err)

		assert.Regexp(t, `^ORD-\d{14}-[0-9a-f]{8}$`, order.ID)
		assert.False(t, seen[order.ID])
		seen[order.ID] = true
	}
}
