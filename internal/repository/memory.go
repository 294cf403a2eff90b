package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"
)

// MemoryStore is an in-memory implementation of every repository interface.
// It backs the service tests and local development without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	nextLineID int64
	products   map[int64]models.Product
	carts      map[int64]map[int64]models.CartLine // userID -> productID -> line
	orders     map[string]models.Order
	orderLines map[string][]models.OrderLine
	processed  map[string]models.ProcessedEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextLineID: 1,
		products:   make(map[int64]models.Product),
		carts:      make(map[int64]map[int64]models.CartLine),
		orders:     make(map[string]models.Order),
		orderLines: make(map[string][]models.OrderLine),
		processed:  make(map[string]models.ProcessedEvent),
	}
}

var (
	_ ProductRepository = (*MemoryStore)(nil)
	_ OrderRepository   = (*MemoryStore)(nil)
	_ EventLog          = (*MemoryStore)(nil)
)

// transaction marker: inside WithTx the store lock is already held, so
// individual operations skip their own locking.
type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (m *MemoryStore) rlock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *MemoryStore) wlock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// SeedProduct inserts or replaces a product. Test helper.
func (m *MemoryStore) SeedProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MemoryStore) GetActiveByID(ctx context.Context, id int64) (*models.Product, error) {
	defer m.rlock(ctx)()
	p, ok := m.products[id]
	if !ok || !p.Active {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (m *MemoryStore) GetActiveByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	defer m.rlock(ctx)()
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetByIDsForUpdate returns active products regardless of lock semantics: the
// memory TxManager holds a global write lock, which subsumes row locking.
func (m *MemoryStore) GetByIDsForUpdate(ctx context.Context, ids []int64) ([]models.Product, error) {
	return m.GetActiveByIDs(ctx, ids)
}

func (m *MemoryStore) List(ctx context.Context) ([]models.Product, error) {
	defer m.rlock(ctx)()
	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) AdjustStock(ctx context.Context, productID int64, delta int) error {
	defer m.wlock(ctx)()
	p, ok := m.products[productID]
	if !ok {
		return ErrNotFound
	}
	if p.Stock+delta < 0 {
		return ErrConflict
	}
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	m.products[productID] = p
	return nil
}

// MemoryCarts implements CartRepository over the shared MemoryStore. A
// wrapper type keeps its List from clashing with the product List.
type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

var _ CartRepository = (*MemoryCarts)(nil)

func (mc *MemoryCarts) UpsertLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	m := mc.store
	defer m.wlock(ctx)()
	cart, ok := m.carts[userID]
	if !ok {
		cart = make(map[int64]models.CartLine)
		m.carts[userID] = cart
	}
	line := cart[productID]
	line.UserID = userID
	line.ProductID = productID
	line.Quantity += quantity
	line.UpdatedAt = time.Now().UTC()
	cart[productID] = line
	cp := line
	return &cp, nil
}

func (mc *MemoryCarts) RemoveLine(ctx context.Context, userID, productID int64) error {
	m := mc.store
	defer m.wlock(ctx)()
	cart, ok := m.carts[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := cart[productID]; !ok {
		return ErrNotFound
	}
	delete(cart, productID)
	return nil
}

func (mc *MemoryCarts) ClearLines(ctx context.Context, userID int64, productIDs []int64) error {
	m := mc.store
	defer m.wlock(ctx)()
	cart, ok := m.carts[userID]
	if !ok {
		return nil
	}
	for _, id := range productIDs {
		delete(cart, id)
	}
	return nil
}

func (mc *MemoryCarts) List(ctx context.Context, userID int64) ([]models.CartLine, error) {
	m := mc.store
	defer m.rlock(ctx)()
	cart := m.carts[userID]
	out := make([]models.CartLine, 0, len(cart))
	for _, line := range cart {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, order *models.Order, lines []models.OrderLine) error {
	defer m.wlock(ctx)()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	stored := make([]models.OrderLine, len(lines))
	for i, l := range lines {
		l.ID = m.nextLineID
		m.nextLineID++
		l.OrderID = order.ID
		stored[i] = l
	}
	m.orders[order.ID] = *order
	m.orderLines[order.ID] = stored
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	defer m.rlock(ctx)()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	return &cp, nil
}

func (m *MemoryStore) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	defer m.rlock(ctx)()
	for _, o := range m.orders {
		if o.IdempotencyKey != "" && o.IdempotencyKey == key {
			cp := o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	defer m.rlock(ctx)()
	lines, ok := m.orderLines[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.OrderLine, len(lines))
	copy(out, lines)
	return out, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	defer m.rlock(ctx)()
	out := make([]models.Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, orderID string, status models.Status) error {
	defer m.wlock(ctx)()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	defer m.rlock(ctx)()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	defer m.wlock(ctx)()
	m.processed[eventID] = models.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now().UTC(),
	}
	return nil
}

// MemoryTx emulates a transaction with the store's write lock, so a checkout
// sees and mutates a consistent snapshot.
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

var _ TxManager = (*MemoryTx)(nil)

func (tx *MemoryTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}
