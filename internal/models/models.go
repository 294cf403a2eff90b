package models

import "time"

// Product represents a catalog product. Price is in minor units (cents) and
// stock never goes negative; both are authoritative only in the database.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartLine is one (product, quantity) pair in a user's cart. A user has at
// most one line per product; adding the same product again raises the quantity.
type CartLine struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Address is a postal address snapshotted onto an order at placement time.
// Later edits to the user's saved addresses never alter a placed order.
type Address struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Order is a placed order. ID is an opaque token, not a sequential integer.
// The monetary breakdown is fixed at placement and never recomputed.
type Order struct {
	ID              string    `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Status          Status    `db:"status" json:"status"`
	Subtotal        int64     `db:"subtotal" json:"subtotal"`
	Tax             int64     `db:"tax" json:"tax"`
	Shipping        int64     `db:"shipping" json:"shipping"`
	Total           int64     `db:"total" json:"total"`
	ShippingAddress Address   `db:"-" json:"shipping_address"`
	BillingAddress  Address   `db:"-" json:"billing_address"`
	PaymentMethod   string    `db:"payment_method" json:"payment_method"`
	Notes           string    `db:"notes" json:"notes,omitempty"`
	IdempotencyKey  string    `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrderLine is one purchased line. Name, SKU and UnitPrice are snapshots taken
// at placement: catalog changes must never reprice a historical order.
type OrderLine struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     string `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductSKU  string `db:"product_sku" json:"product_sku"`
	ProductName string `db:"product_name" json:"product_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
	LineTotal   int64  `db:"line_total" json:"line_total"`
}

// ProcessedEvent records consumed event IDs so the projection worker stays
// idempotent across redeliveries.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
