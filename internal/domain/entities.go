package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityMeta carries the audit and lifecycle fields shared by domain
// entities. Behaviors mutate only this struct; entity payload fields are
// untouched by the pipeline.
type EntityMeta struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	CreatedBy string     `json:"created_by,omitempty"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
	Version   int        `json:"version"`
}

// OrderStatus is the order lifecycle on the manufacturing floor.
type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "draft"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProduction OrderStatus = "in_production"
	OrderStatusFitted     OrderStatus = "fitted"
	OrderStatusInvoiced   OrderStatus = "invoiced"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type Order struct {
	ID         uuid.UUID   `json:"id"`
	CustomerID uuid.UUID   `json:"customer_id"`
	FitterID   *uuid.UUID  `json:"fitter_id,omitempty"`
	Reference  string      `json:"reference"`
	Status     OrderStatus `json:"status"`
	TotalCents int64       `json:"total_cents"`
	Currency   string      `json:"currency"`
	Meta       EntityMeta  `json:"meta"`
}

type OrderLine struct {
	ID        uuid.UUID  `json:"id"`
	OrderID   uuid.UUID  `json:"order_id"`
	ProductID uuid.UUID  `json:"product_id"`
	Quantity  int        `json:"quantity"`
	UnitCents int64      `json:"unit_cents"`
	Meta      EntityMeta `json:"meta"`
}

type Customer struct {
	ID    uuid.UUID  `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Phone string     `json:"phone,omitempty"`
	Meta  EntityMeta `json:"meta"`
}

type Product struct {
	ID         uuid.UUID  `json:"id"`
	SKU        string     `json:"sku"`
	Name       string     `json:"name"`
	SupplierID *uuid.UUID `json:"supplier_id,omitempty"`
	PriceCents int64      `json:"price_cents"`
	Meta       EntityMeta `json:"meta"`
}
