package store

import (
	"context"
	"database/sql"
	"time"

	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/jmoiron/sqlx"
)

// orderRow flattens the address snapshots into columns for sqlx mapping.
type orderRow struct {
	ID             string         `db:"id"`
	UserID         int64          `db:"user_id"`
	Status         models.Status  `db:"status"`
	Subtotal       int64          `db:"subtotal"`
	Tax            int64          `db:"tax"`
	Shipping       int64          `db:"shipping"`
	Total          int64          `db:"total"`
	ShipName       string         `db:"ship_name"`
	ShipStreet     string         `db:"ship_street"`
	ShipCity       string         `db:"ship_city"`
	ShipZip        string         `db:"ship_zip"`
	ShipCountry    string         `db:"ship_country"`
	BillName       string         `db:"bill_name"`
	BillStreet     string         `db:"bill_street"`
	BillCity       string         `db:"bill_city"`
	BillZip        string         `db:"bill_zip"`
	BillCountry    string         `db:"bill_country"`
	PaymentMethod  string         `db:"payment_method"`
	Notes          string         `db:"notes"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *orderRow) toModel() *models.Order {
	return &models.Order{
		ID:       r.ID,
		UserID:   r.UserID,
		Status:   r.Status,
		Subtotal: r.Subtotal,
		Tax:      r.Tax,
		Shipping: r.Shipping,
		Total:    r.Total,
		ShippingAddress: models.Address{
			Name: r.ShipName, Street: r.ShipStreet, City: r.ShipCity,
			Zip: r.ShipZip, Country: r.ShipCountry,
		},
		BillingAddress: models.Address{
			Name: r.BillName, Street: r.BillStreet, City: r.BillCity,
			Zip: r.BillZip, Country: r.BillCountry,
		},
		PaymentMethod:  r.PaymentMethod,
		Notes:          r.Notes,
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// Create inserts an order and its snapshot lines. Callers run it inside
// WithTx together with the stock decrement and cart clearing.
func (s *Store) Create(ctx context.Context, order *models.Order, lines []models.OrderLine) error {
	query := `
		INSERT INTO orders (
			id, user_id, status, subtotal, tax, shipping, total,
			ship_name, ship_street, ship_city, ship_zip, ship_country,
			bill_name, bill_street, bill_city, bill_zip, bill_country,
			payment_method, notes, idempotency_key
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, NULLIF($20, '')
		)
		RETURNING created_at, updated_at`

	row := s.q(ctx).QueryRowxContext(ctx, query,
		order.ID, order.UserID, order.Status,
		order.Subtotal, order.Tax, order.Shipping, order.Total,
		order.ShippingAddress.Name, order.ShippingAddress.Street, order.ShippingAddress.City,
		order.ShippingAddress.Zip, order.ShippingAddress.Country,
		order.BillingAddress.Name, order.BillingAddress.Street, order.BillingAddress.City,
		order.BillingAddress.Zip, order.BillingAddress.Country,
		order.PaymentMethod, order.Notes, order.IdempotencyKey)
	if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return err
	}

	lineQuery := `
		INSERT INTO order_lines (order_id, product_id, product_sku, product_name, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	for i := range lines {
		lines[i].OrderID = order.ID
		l := &lines[i]
		if err := s.q(ctx).QueryRowxContext(ctx, lineQuery,
			l.OrderID, l.ProductID, l.ProductSKU, l.ProductName,
			l.Quantity, l.UnitPrice, l.LineTotal).Scan(&l.ID); err != nil {
			return err
		}
	}

	return nil
}

// GetByID retrieves an order by its token
func (s *Store) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, s.q(ctx), &row, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// GetByIdempotencyKey retrieves an order previously placed with the same key
func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, s.q(ctx), &row,
		"SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// GetLines retrieves all snapshot lines for an order
func (s *Store) GetLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := sqlx.SelectContext(ctx, s.q(ctx), &lines,
		"SELECT * FROM order_lines WHERE order_id = $1 ORDER BY id", orderID)
	return lines, err
}

// ListByUser retrieves a user's orders, newest first
func (s *Store) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var rows []orderRow
	err := sqlx.SelectContext(ctx, s.q(ctx), &rows,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, len(rows))
	for i := range rows {
		orders[i] = *rows[i].toModel()
	}
	return orders, nil
}

// UpdateStatus updates an order's status
func (s *Store) UpdateStatus(ctx context.Context, orderID string, status models.Status) error {
	res, err := s.q(ctx).ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
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
