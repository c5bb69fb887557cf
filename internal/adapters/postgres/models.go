package postgres

import (
	"time"

	"github.com/google/uuid"
)

type jobModel struct {
	JobID          uuid.UUID  `gorm:"column:job_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind           string     `gorm:"column:kind"`
	Payload        string     `gorm:"column:payload"`
	Priority       int        `gorm:"column:priority"`
	Attempts       int        `gorm:"column:attempts"`
	MaxAttempts    int        `gorm:"column:max_attempts"`
	Backoff        string     `gorm:"column:backoff"`
	BackoffMS      int64      `gorm:"column:backoff_ms"`
	DedupeKey      *string    `gorm:"column:dedupe_key"`
	AvailableAt    time.Time  `gorm:"column:available_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
	LastError      string     `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
}

func (jobModel) TableName() string { return "invalidation_jobs" }

type viewStateModel struct {
	ViewName        string     `gorm:"column:view_name;primaryKey"`
	MinIntervalMS   int64      `gorm:"column:min_interval_ms"`
	LastRefreshedAt *time.Time `gorm:"column:last_refreshed_at"`
	RefreshCount    int64      `gorm:"column:refresh_count"`
}

func (viewStateModel) TableName() string { return "cache_view_state" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	ResponseCode   *int      `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string { return "admin_idempotency_keys" }

type customerModel struct {
	CustomerID uuid.UUID  `gorm:"column:customer_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string     `gorm:"column:name"`
	Email      string     `gorm:"column:email"`
	Phone      string     `gorm:"column:phone"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
	CreatedBy  string     `gorm:"column:created_by"`
	UpdatedBy  string     `gorm:"column:updated_by"`
	DeletedAt  *time.Time `gorm:"column:deleted_at"`
	DeletedBy  string     `gorm:"column:deleted_by"`
	Version    int        `gorm:"column:version"`
}

func (customerModel) TableName() string { return "customers" }

type productModel struct {
	ProductID  uuid.UUID  `gorm:"column:product_id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU        string     `gorm:"column:sku"`
	Name       string     `gorm:"column:name"`
	SupplierID *uuid.UUID `gorm:"column:supplier_id"`
	PriceCents int64      `gorm:"column:price_cents"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
	CreatedBy  string     `gorm:"column:created_by"`
	UpdatedBy  string     `gorm:"column:updated_by"`
	DeletedAt  *time.Time `gorm:"column:deleted_at"`
	DeletedBy  string     `gorm:"column:deleted_by"`
	Version    int        `gorm:"column:version"`
}

func (productModel) TableName() string { return "products" }

type orderModel struct {
	OrderID    uuid.UUID  `gorm:"column:order_id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID  `gorm:"column:customer_id"`
	FitterID   *uuid.UUID `gorm:"column:fitter_id"`
	Reference  string     `gorm:"column:reference"`
	Status     string     `gorm:"column:status"`
	TotalCents int64      `gorm:"column:total_cents"`
	Currency   string     `gorm:"column:currency"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
	CreatedBy  string     `gorm:"column:created_by"`
	UpdatedBy  string     `gorm:"column:updated_by"`
	DeletedAt  *time.Time `gorm:"column:deleted_at"`
	DeletedBy  string     `gorm:"column:deleted_by"`
	Version    int        `gorm:"column:version"`
}

func (orderModel) TableName() string { return "orders" }
