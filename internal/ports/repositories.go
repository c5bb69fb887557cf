package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/millbrook/orderdesk/internal/domain"
)

// ViewRefresher is the storage layer's materialized-view primitive.
// RefreshIfDue is idempotent and safe to call when no refresh is due; it
// reports whether a refresh actually ran so bursts collapse to one.
type ViewRefresher interface {
	RefreshIfDue(ctx context.Context, view string, now time.Time) (bool, error)
}

type OrderRepository interface {
	Create(ctx context.Context, row domain.Order) error
	Update(ctx context.Context, row domain.Order) error
	Get(ctx context.Context, id uuid.UUID) (domain.Order, error)
	SoftDelete(ctx context.Context, row domain.Order) error
}

type CustomerRepository interface {
	Create(ctx context.Context, row domain.Customer) error
	Update(ctx context.Context, row domain.Customer) error
	Get(ctx context.Context, id uuid.UUID) (domain.Customer, error)
	SoftDelete(ctx context.Context, row domain.Customer) error
}

type ProductRepository interface {
	Create(ctx context.Context, row domain.Product) error
	Update(ctx context.Context, row domain.Product) error
	Get(ctx context.Context, id uuid.UUID) (domain.Product, error)
	SoftDelete(ctx context.Context, row domain.Product) error
}

// IdempotencyRecord stores the replayable outcome of a destructive admin call.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}
