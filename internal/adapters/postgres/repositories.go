package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

type Repositories struct {
	Queue       ports.JobQueue
	Views       ports.ViewRefresher
	Orders      ports.OrderRepository
	Customers   ports.CustomerRepository
	Products    ports.ProductRepository
	Idempotency ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Queue:       &queueRepository{db: db},
		Views:       &viewRepository{db: db},
		Orders:      &orderRepository{db: db},
		Customers:   &customerRepository{db: db},
		Products:    &productRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
	}
}

type orderRepository struct {
	db *gorm.DB
}

func (r *orderRepository) Create(ctx context.Context, row domain.Order) error {
	return r.db.WithContext(ctx).Create(orderToModel(row)).Error
}

func (r *orderRepository) Update(ctx context.Context, row domain.Order) error {
	// Optimistic locking: the write only lands if nobody bumped the version
	// since this copy was read.
	res := r.db.WithContext(ctx).
		Model(&orderModel{}).
		Where("order_id = ?", row.ID).
		Where("deleted_at IS NULL").
		Where("version = ?", row.Meta.Version-1).
		Updates(orderToModel(row))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionMismatch
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	var row orderModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", id).
		Where("deleted_at IS NULL").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, err
	}
	return orderFromModel(row), nil
}

func (r *orderRepository) SoftDelete(ctx context.Context, row domain.Order) error {
	res := r.db.WithContext(ctx).
		Model(&orderModel{}).
		Where("order_id = ?", row.ID).
		Where("deleted_at IS NULL").
		Updates(map[string]any{
			"deleted_at": row.Meta.DeletedAt,
			"deleted_by": row.Meta.DeletedBy,
			"updated_at": row.Meta.UpdatedAt,
			"updated_by": row.Meta.UpdatedBy,
			"version":    row.Meta.Version,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type customerRepository struct {
	db *gorm.DB
}

func (r *customerRepository) Create(ctx context.Context, row domain.Customer) error {
	return r.db.WithContext(ctx).Create(customerToModel(row)).Error
}

func (r *customerRepository) Update(ctx context.Context, row domain.Customer) error {
	res := r.db.WithContext(ctx).
		Model(&customerModel{}).
		Where("customer_id = ?", row.ID).
		Where("deleted_at IS NULL").
		Where("version = ?", row.Meta.Version-1).
		Updates(customerToModel(row))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionMismatch
	}
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	var row customerModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", id).
		Where("deleted_at IS NULL").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Customer{}, domain.ErrNotFound
		}
		return domain.Customer{}, err
	}
	return customerFromModel(row), nil
}

func (r *customerRepository) SoftDelete(ctx context.Context, row domain.Customer) error {
	res := r.db.WithContext(ctx).
		Model(&customerModel{}).
		Where("customer_id = ?", row.ID).
		Where("deleted_at IS NULL").
		Updates(map[string]any{
			"deleted_at": row.Meta.DeletedAt,
			"deleted_by": row.Meta.DeletedBy,
			"updated_at": row.Meta.UpdatedAt,
			"updated_by": row.Meta.UpdatedBy,
			"version":    row.Meta.Version,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type productRepository struct {
	db *gorm.DB
}

func (r *productRepository) Create(ctx context.Context, row domain.Product) error {
	return r.db.WithContext(ctx).Create(productToModel(row)).Error
}

func (r *productRepository) Update(ctx context.Context, row domain.Product) error {
	res := r.db.WithContext(ctx).
		Model(&productModel{}).
		Where("product_id = ?", row.ID).
		Where("deleted_at IS NULL").
		Where("version = ?", row.Meta.Version-1).
		Updates(productToModel(row))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionMismatch
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	var row productModel
	err := r.db.WithContext(ctx).
		Where("product_id = ?", id).
		Where("deleted_at IS NULL").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Product{}, domain.ErrNotFound
		}
		return domain.Product{}, err
	}
	return productFromModel(row), nil
}

func (r *productRepository) SoftDelete(ctx context.Context, row domain.Product) error {
	res := r.db.WithContext(ctx).
		Model(&productModel{}).
		Where("product_id = ?", row.ID).
		Where("deleted_at IS NULL").
		Updates(map[string]any{
			"deleted_at": row.Meta.DeletedAt,
			"deleted_by": row.Meta.DeletedBy,
			"updated_at": row.Meta.UpdatedAt,
			"updated_by": row.Meta.UpdatedBy,
			"version":    row.Meta.Version,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type idempotencyRepository struct {
	db *gorm.DB
}

func (r *idempotencyRepository) Get(ctx context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Where("expires_at > ?", now).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rec := &ports.IdempotencyRecord{
		Key:         row.IdempotencyKey,
		RequestHash: row.RequestHash,
		ExpiresAt:   row.ExpiresAt,
	}
	if row.ResponseCode != nil {
		rec.ResponseCode = *row.ResponseCode
	}
	if row.ResponseBody != nil {
		rec.ResponseBody = []byte(*row.ResponseBody)
	}
	return rec, nil
}

func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error {
	rec := idempotencyModel{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		CreatedAt:      time.Now().UTC(),
		ExpiresAt:      expiresAt,
	}
	err := r.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	body := string(responseBody)
	return r.db.WithContext(ctx).
		Model(&idempotencyModel{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"response_code": responseCode,
			"response_body": body,
		}).Error
}

func orderToModel(row domain.Order) *orderModel {
	return &orderModel{
		OrderID:    row.ID,
		CustomerID: row.CustomerID,
		FitterID:   row.FitterID,
		Reference:  row.Reference,
		Status:     string(row.Status),
		TotalCents: row.TotalCents,
		Currency:   row.Currency,
		CreatedAt:  row.Meta.CreatedAt,
		UpdatedAt:  row.Meta.UpdatedAt,
		CreatedBy:  row.Meta.CreatedBy,
		UpdatedBy:  row.Meta.UpdatedBy,
		DeletedAt:  row.Meta.DeletedAt,
		DeletedBy:  row.Meta.DeletedBy,
		Version:    row.Meta.Version,
	}
}

func orderFromModel(row orderModel) domain.Order {
	return domain.Order{
		ID:         row.OrderID,
		CustomerID: row.CustomerID,
		FitterID:   row.FitterID,
		Reference:  row.Reference,
		Status:     domain.OrderStatus(row.Status),
		TotalCents: row.TotalCents,
		Currency:   row.Currency,
		Meta:       metaFromColumns(row.CreatedAt, row.UpdatedAt, row.CreatedBy, row.UpdatedBy, row.DeletedAt, row.DeletedBy, row.Version),
	}
}

func customerToModel(row domain.Customer) *customerModel {
	return &customerModel{
		CustomerID: row.ID,
		Name:       row.Name,
		Email:      row.Email,
		Phone:      row.Phone,
		CreatedAt:  row.Meta.CreatedAt,
		UpdatedAt:  row.Meta.UpdatedAt,
		CreatedBy:  row.Meta.CreatedBy,
		UpdatedBy:  row.Meta.UpdatedBy,
		DeletedAt:  row.Meta.DeletedAt,
		DeletedBy:  row.Meta.DeletedBy,
		Version:    row.Meta.Version,
	}
}

func customerFromModel(row customerModel) domain.Customer {
	return domain.Customer{
		ID:    row.CustomerID,
		Name:  row.Name,
		Email: row.Email,
		Phone: row.Phone,
		Meta:  metaFromColumns(row.CreatedAt, row.UpdatedAt, row.CreatedBy, row.UpdatedBy, row.DeletedAt, row.DeletedBy, row.Version),
	}
}

func productToModel(row domain.Product) *productModel {
	return &productModel{
		ProductID:  row.ID,
		SKU:        row.SKU,
		Name:       row.Name,
		SupplierID: row.SupplierID,
		PriceCents: row.PriceCents,
		CreatedAt:  row.Meta.CreatedAt,
		UpdatedAt:  row.Meta.UpdatedAt,
		CreatedBy:  row.Meta.CreatedBy,
		UpdatedBy:  row.Meta.UpdatedBy,
		DeletedAt:  row.Meta.DeletedAt,
		DeletedBy:  row.Meta.DeletedBy,
		Version:    row.Meta.Version,
	}
}

func productFromModel(row productModel) domain.Product {
	return domain.Product{
		ID:         row.ProductID,
		SKU:        row.SKU,
		Name:       row.Name,
		SupplierID: row.SupplierID,
		PriceCents: row.PriceCents,
		Meta:       metaFromColumns(row.CreatedAt, row.UpdatedAt, row.CreatedBy, row.UpdatedBy, row.DeletedAt, row.DeletedBy, row.Version),
	}
}

func metaFromColumns(createdAt, updatedAt time.Time, createdBy, updatedBy string, deletedAt *time.Time, deletedBy string, version int) domain.EntityMeta {
	return domain.EntityMeta{
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		CreatedBy: createdBy,
		UpdatedBy: updatedBy,
		DeletedAt: deletedAt,
		DeletedBy: deletedBy,
		Version:   version,
	}
}
