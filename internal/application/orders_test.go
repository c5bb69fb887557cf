package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/millbrook/orderdesk/internal/application"
	"github.com/millbrook/orderdesk/internal/domain"
)

func TestCreateOrderRunsBehaviorsAndInvalidates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1"}

	customerID := uuid.New()
	f.store.put("customer:"+customerID.String()+":orders", "cached aggregate")
	f.store.put("order:list:recent", "cached list")

	order, err := f.service.CreateOrder(ctx, actor, domain.Order{
		CustomerID: customerID,
		Reference:  "SO-1001",
		TotalCents: 125000,
		Currency:   "GBP",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if order.ID == uuid.Nil {
		t.Fatalf("id not assigned")
	}
	if order.Status != domain.OrderStatusDraft {
		t.Fatalf("status = %q, want draft", order.Status)
	}
	if order.Meta.Version != 1 || order.Meta.CreatedBy != "admin-1" {
		t.Fatalf("behavior pipeline skipped: %+v", order.Meta)
	}

	if f.store.has("order:list:recent") {
		t.Fatalf("order list cache must be invalidated")
	}
	if f.store.has("customer:" + customerID.String() + ":orders") {
		t.Fatalf("customer aggregate cache must be invalidated")
	}
	if got := f.queue.pendingWithDedupe("refresh:order_analytics_view"); got != 1 {
		t.Fatalf("order view refresh not scheduled, got %d", got)
	}
	if got := f.queue.pendingWithDedupe("refresh:customer_ltv_view"); got != 1 {
		t.Fatalf("customer view refresh not scheduled, got %d", got)
	}

	events := f.publisher.published()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	if events[0].EntityType != "order" || events[0].Operation != domain.OpCreate {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestCreateOrderRequiresCustomer(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.service.CreateOrder(context.Background(), application.Actor{}, domain.Order{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateOrderOptimisticLocking(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1"}

	order, err := f.service.CreateOrder(ctx, actor, domain.Order{CustomerID: uuid.New()})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	order.Status = domain.OrderStatusConfirmed
	updated, err := f.service.UpdateOrder(ctx, actor, order)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Meta.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Meta.Version)
	}

	// Re-submitting the stale copy must lose against the concurrent update.
	order.Status = domain.OrderStatusCancelled
	_, err = f.service.UpdateOrder(ctx, actor, order)
	if !errors.Is(err, domain.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDeleteOrderSoftDeletes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1"}

	order, err := f.service.CreateOrder(ctx, actor, domain.Order{CustomerID: uuid.New()})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := f.service.DeleteOrder(ctx, actor, order.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := f.service.GetOrder(ctx, order.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted order still readable: %v", err)
	}
}

func TestGetOrderReadsThrough(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1"}

	created, err := f.service.CreateOrder(ctx, actor, domain.Order{CustomerID: uuid.New(), Reference: "SO-2001"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	before := f.orders.getCount()
	first, err := f.service.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("first get failed: %v", err)
	}
	second, err := f.service.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}

	if first.Reference != "SO-2001" || second.Reference != "SO-2001" {
		t.Fatalf("unexpected payload: %+v / %+v", first, second)
	}
	if f.orders.getCount() != before+1 {
		t.Fatalf("second read must come from cache, repo gets = %d", f.orders.getCount()-before)
	}
}

func TestUpdateOrderInvalidatesItsCachedRead(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1"}

	order, err := f.service.CreateOrder(ctx, actor, domain.Order{CustomerID: uuid.New(), Reference: "SO-3001"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.service.GetOrder(ctx, order.ID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	order.Reference = "SO-3001-R1"
	if _, err := f.service.UpdateOrder(ctx, actor, order); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := f.service.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get after update failed: %v", err)
	}
	if got.Reference != "SO-3001-R1" {
		t.Fatalf("stale read after update: %q", got.Reference)
	}
}

func TestCustomerAndProductLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	actor := application.Actor{SubjectID: "admin-1"}

	customer, err := f.service.CreateCustomer(ctx, actor, domain.Customer{Name: "Acme Golf", Email: "ops@acme.test"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	got, err := f.service.GetCustomer(ctx, customer.ID)
	if err != nil || got.Name != "Acme Golf" {
		t.Fatalf("get customer: %v / %+v", err, got)
	}

	supplierID := uuid.New()
	product, err := f.service.CreateProduct(ctx, actor, domain.Product{SKU: "DRV-X1", Name: "Driver X1", SupplierID: &supplierID})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if got := f.queue.pendingWithDedupe("refresh:supplier_performance_view"); got != 1 {
		t.Fatalf("supplier view refresh not scheduled from product write, got %d", got)
	}

	if err := f.service.DeleteProduct(ctx, actor, product.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if _, err := f.service.GetProduct(ctx, product.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted product still readable: %v", err)
	}

	if err := f.service.DeleteCustomer(ctx, actor, customer.ID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}
	if _, err := f.service.GetCustomer(ctx, customer.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted customer still readable: %v", err)
	}
}
