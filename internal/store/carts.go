package store

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/jmoiron/sqlx"
)

// Carts implements the cart repository over the shared Store. All statements
// are scoped by user_id; one user can never touch another user's lines.
type Carts struct {
	store *Store
}

// NewCarts creates the cart repository
func NewCarts(store *Store) *Carts {
	return &Carts{store: store}
}

var _ repository.CartRepository = (*Carts)(nil)

// UpsertLine adds quantity to the user's line for a product, creating the
// line if absent. One line per (user, product) is enforced by the unique key.
func (c *Carts) UpsertLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	query := `
		INSERT INTO cart_lines (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING user_id, product_id, quantity, updated_at`

	var line models.CartLine
	err := sqlx.GetContext(ctx, c.store.q(ctx), &line, query, userID, productID, quantity)
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// RemoveLine deletes one line from the user's cart
func (c *Carts) RemoveLine(ctx context.Context, userID, productID int64) error {
	res, err := c.store.q(ctx).ExecContext(ctx,
		"DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ClearLines deletes the given products from the user's cart, leaving any
// other lines untouched.
func (c *Carts) ClearLines(ctx context.Context, userID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		"DELETE FROM cart_lines WHERE user_id = ? AND product_id IN (?)", userID, productIDs)
	if err != nil {
		return err
	}
	query = c.store.db.Rebind(query)

	_, err = c.store.q(ctx).ExecContext(ctx, query, args...)
	return err
}

// List retrieves the user's cart lines
func (c *Carts) List(ctx context.Context, userID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := sqlx.SelectContext(ctx, c.store.q(ctx), &lines,
		"SELECT * FROM cart_lines WHERE user_id = $1 ORDER BY product_id", userID)
	return lines, err
}
