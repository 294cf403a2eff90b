package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/models"
	"storefront/internal/repository"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store is the Postgres-backed persistence layer. It implements the product,
// order and event-log repositories plus the TxManager; cart operations live on
// the Carts wrapper in carts.go.
type Store struct {
	db *sqlx.DB
}

var (
	_ repository.ProductRepository = (*Store)(nil)
	_ repository.OrderRepository   = (*Store)(nil)
	_ repository.EventLog          = (*Store)(nil)
	_ repository.TxManager         = (*Store)(nil)
)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type txCtxKey struct{}

// q returns the transaction bound to ctx if there is one, otherwise the pool.
// Every query in this package goes through it so repository calls made inside
// WithTx automatically join the transaction.
func (s *Store) q(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txCtxKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a single serializable transaction. Serialization
// failures and deadlocks surface as repository.ErrConflict so the caller can
// retry the whole unit.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txCtxKey{}, tx)); err != nil {
		return mapConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return mapConflict(err)
	}
	return nil
}

// mapConflict translates Postgres concurrency failures to ErrConflict.
// 40001 = serialization_failure, 40P01 = deadlock_detected.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", repository.ErrConflict, err)
		}
	}
	return err
}

// GetActiveByID retrieves an active product by ID
func (s *Store) GetActiveByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.q(ctx), &product,
		"SELECT * FROM products WHERE id = $1 AND active", id)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetActiveByIDs retrieves multiple active products by IDs
func (s *Store) GetActiveByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) AND active", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = sqlx.SelectContext(ctx, s.q(ctx), &products, query, args...)
	return products, err
}

// GetByIDsForUpdate locks the product rows for the rest of the transaction so
// the stock check and the decrement form one atomic read-modify-write. Rows
// are locked in ID order to avoid lock-order deadlocks between checkouts.
func (s *Store) GetByIDsForUpdate(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	query, args, err := sqlx.In(
		"SELECT * FROM products WHERE id IN (?) AND active ORDER BY id FOR UPDATE", sorted)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = sqlx.SelectContext(ctx, s.q(ctx), &products, query, args...)
	return products, err
}

// List retrieves all active products
func (s *Store) List(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := sqlx.SelectContext(ctx, s.q(ctx), &products,
		"SELECT * FROM products WHERE active ORDER BY id")
	return products, err
}

// AdjustStock adds delta to a product's stock. The WHERE guard keeps stock
// from ever going negative even if a caller skipped the locked re-read.
func (s *Store) AdjustStock(ctx context.Context, productID int64, delta int) error {
	res, err := s.q(ctx).ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2 AND stock + $1 >= 0",
		delta, productID)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrConflict
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.q(ctx), &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
