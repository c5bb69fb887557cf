package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

// CreateOrder persists a new order, runs its behavior pipeline and fans out
// invalidation. Publish and invalidate failures never fail the write.
func (s *Service) CreateOrder(ctx context.Context, actor Actor, order domain.Order) (domain.Order, error) {
	if order.CustomerID == uuid.Nil {
		return domain.Order{}, fmt.Errorf("%w: order requires a customer", domain.ErrInvalidInput)
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusDraft
	}
	domain.ApplyBehaviors("order", &order.Meta, s.behaviorContext(actor, domain.OpCreate))

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.afterWrite(ctx, actor, "order", order.ID.String(), domain.OpCreate, orderRelated(order))
	return order, nil
}

// UpdateOrder saves an order under optimistic locking. The caller passes the
// entity as loaded; a concurrent writer surfaces as ErrVersionMismatch.
func (s *Service) UpdateOrder(ctx context.Context, actor Actor, order domain.Order) (domain.Order, error) {
	if order.ID == uuid.Nil {
		return domain.Order{}, fmt.Errorf("%w: order id is required", domain.ErrInvalidInput)
	}
	domain.ApplyBehaviors("order", &order.Meta, s.behaviorContext(actor, domain.OpUpdate))

	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	s.afterWrite(ctx, actor, "order", order.ID.String(), domain.OpUpdate, orderRelated(order))
	return order, nil
}

// DeleteOrder soft-deletes an order.
func (s *Service) DeleteOrder(ctx context.Context, actor Actor, id uuid.UUID) error {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	domain.ApplyBehaviors("order", &order.Meta, s.behaviorContext(actor, domain.OpDelete))

	if err := s.orders.SoftDelete(ctx, order); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	s.afterWrite(ctx, actor, "order", order.ID.String(), domain.OpDelete, orderRelated(order))
	return nil
}

// GetOrder reads through the cache.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	key := fmt.Sprintf("order:%s", id)
	return Cached(ctx, s, "orders.get", key, domain.TierSearchOrder.TTL(), func(ctx context.Context) (domain.Order, error) {
		return s.orders.Get(ctx, id)
	})
}

func (s *Service) CreateCustomer(ctx context.Context, actor Actor, customer domain.Customer) (domain.Customer, error) {
	if customer.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer requires a name", domain.ErrInvalidInput)
	}
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	domain.ApplyBehaviors("customer", &customer.Meta, s.behaviorContext(actor, domain.OpCreate))

	if err := s.customers.Create(ctx, customer); err != nil {
		return domain.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	s.afterWrite(ctx, actor, "customer", customer.ID.String(), domain.OpCreate, nil)
	return customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, actor Actor, customer domain.Customer) (domain.Customer, error) {
	if customer.ID == uuid.Nil {
		return domain.Customer{}, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}
	domain.ApplyBehaviors("customer", &customer.Meta, s.behaviorContext(actor, domain.OpUpdate))

	if err := s.customers.Update(ctx, customer); err != nil {
		return domain.Customer{}, fmt.Errorf("update customer: %w", err)
	}
	s.afterWrite(ctx, actor, "customer", customer.ID.String(), domain.OpUpdate, nil)
	return customer, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, actor Actor, id uuid.UUID) error {
	customer, err := s.customers.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}
	domain.ApplyBehaviors("customer", &customer.Meta, s.behaviorContext(actor, domain.OpDelete))

	if err := s.customers.SoftDelete(ctx, customer); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	s.afterWrite(ctx, actor, "customer", customer.ID.String(), domain.OpDelete, nil)
	return nil
}

func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	key := fmt.Sprintf("customer:%s", id)
	return Cached(ctx, s, "customers.get", key, domain.TierReference.TTL(), func(ctx context.Context) (domain.Customer, error) {
		return s.customers.Get(ctx, id)
	})
}

func (s *Service) CreateProduct(ctx context.Context, actor Actor, product domain.Product) (domain.Product, error) {
	if product.SKU == "" {
		return domain.Product{}, fmt.Errorf("%w: product requires a sku", domain.ErrInvalidInput)
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	domain.ApplyBehaviors("product", &product.Meta, s.behaviorContext(actor, domain.OpCreate))

	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	s.afterWrite(ctx, actor, "product", product.ID.String(), domain.OpCreate, productRelated(product))
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, actor Actor, product domain.Product) (domain.Product, error) {
	if product.ID == uuid.Nil {
		return domain.Product{}, fmt.Errorf("%w: product id is required", domain.ErrInvalidInput)
	}
	domain.ApplyBehaviors("product", &product.Meta, s.behaviorContext(actor, domain.OpUpdate))

	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	s.afterWrite(ctx, actor, "product", product.ID.String(), domain.OpUpdate, productRelated(product))
	return product, nil
}

func (s *Service) DeleteProduct(ctx context.Context, actor Actor, id uuid.UUID) error {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load product: %w", err)
	}
	domain.ApplyBehaviors("product", &product.Meta, s.behaviorContext(actor, domain.OpDelete))

	if err := s.products.SoftDelete(ctx, product); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.afterWrite(ctx, actor, "product", product.ID.String(), domain.OpDelete, productRelated(product))
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	key := fmt.Sprintf("product:%s", id)
	return Cached(ctx, s, "products.get", key, domain.TierReference.TTL(), func(ctx context.Context) (domain.Product, error) {
		return s.products.Get(ctx, id)
	})
}

func (s *Service) behaviorContext(actor Actor, op domain.Operation) domain.BehaviorContext {
	return domain.BehaviorContext{
		ActorID: actor.SubjectID,
		Now:     s.nowFn(),
		Op:      op,
	}
}

// afterWrite runs the post-commit side effects of a domain write: cache
// invalidation inline, change event publication to the broker. Neither may
// fail the already committed write, so both only log on error.
func (s *Service) afterWrite(ctx context.Context, actor Actor, entityType, entityID string, op domain.Operation, related []domain.EntityRef) {
	s.Invalidate(ctx, domain.InvalidationContext{
		EntityType:      entityType,
		EntityID:        entityID,
		Operation:       op,
		ActorID:         actor.SubjectID,
		RelatedEntities: related,
	})

	if s.publisher == nil {
		return
	}
	event := ports.ChangeEvent{
		EventID:         uuid.NewString(),
		EntityType:      entityType,
		EntityID:        entityID,
		Operation:       op,
		ActorID:         actor.SubjectID,
		RelatedEntities: related,
		OccurredAt:      s.nowFn(),
	}
	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.publisher.PublishChange(publishCtx, event); err != nil {
		s.logger.WarnContext(ctx, "change event not published",
			"operation", "publish_change",
			"outcome", "failure",
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// orderRelated lists the aggregates an order write ripples into.
func orderRelated(order domain.Order) []domain.EntityRef {
	related := []domain.EntityRef{{Type: "customer", ID: order.CustomerID.String()}}
	if order.FitterID != nil {
		related = append(related, domain.EntityRef{Type: "fitter", ID: order.FitterID.String()})
	}
	return related
}

func productRelated(product domain.Product) []domain.EntityRef {
	if product.SupplierID == nil {
		return nil
	}
	return []domain.EntityRef{{Type: "supplier", ID: product.SupplierID.String()}}
}
