package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/millbrook/orderdesk/internal/application"
	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

type fixture struct {
	service     *application.Service
	store       *fakeStore
	queue       *fakeQueue
	views       *fakeViews
	publisher   *fakePublisher
	orders      *fakeOrders
	customers   *fakeCustomers
	products    *fakeProducts
	idempotency *fakeIdempotency
	clock       *fakeClock
}

// fakeClock is the fixture's service clock; advance moves it forward so
// time-window behavior (dedup, retention, GC) is testable.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture() *fixture {
	return newFixtureWithConfig(application.Config{Enabled: true})
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	f := &fixture{
		store:       newFakeStore(),
		queue:       newFakeQueue(),
		views:       &fakeViews{refreshed: make(map[string]int)},
		publisher:   &fakePublisher{},
		orders:      &fakeOrders{rows: make(map[uuid.UUID]domain.Order)},
		customers:   &fakeCustomers{rows: make(map[uuid.UUID]domain.Customer)},
		products:    &fakeProducts{rows: make(map[uuid.UUID]domain.Product)},
		idempotency: &fakeIdempotency{records: make(map[string]*ports.IdempotencyRecord)},
		clock:       &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
	}
	f.service = application.NewService(application.Dependencies{
		Config:      cfg,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:       f.store,
		Queue:       f.queue,
		Views:       f.views,
		Publisher:   f.publisher,
		Orders:      f.orders,
		Customers:   f.customers,
		Products:    f.products,
		Idempotency: f.idempotency,
		Now:         f.clock.Now,
	})
	return f
}

// drain executes every non-completed job through the service executor,
// ignoring availability delays. It stands in for the queue worker loop.
func (f *fixture) drain(ctx context.Context) error {
	for _, job := range f.queue.pendingJobs() {
		if err := f.service.ExecuteJob(ctx, job.Kind, job.Payload); err != nil {
			return err
		}
		f.queue.complete(job.JobID)
	}
	return nil
}

type storeEntry struct {
	value     []byte
	expiresAt time.Time
}

// fakeStore is an in-memory CacheStore with optional injected failures:
// every failEveryN-th operation silently degrades like the Redis adapter.
type fakeStore struct {
	mu         sync.Mutex
	entries    map[string]storeEntry
	clearCalls int
	pingErr    error
	memUsed    int64
	failEveryN int
	opCount    int64
	failures   atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]storeEntry)}
}

func (s *fakeStore) degraded() bool {
	if s.failEveryN <= 0 {
		return false
	}
	s.opCount++
	if s.opCount%int64(s.failEveryN) == 0 {
		s.failures.Add(1)
		return true
	}
	return false
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded() {
		return nil, false
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded() {
		return
	}
	entry := storeEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
}

func (s *fakeStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded() {
		return
	}
	delete(s.entries, key)
}

func (s *fakeStore) DeletePattern(_ context.Context, pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key := range s.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted
}

func (s *fakeStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]storeEntry)
	s.clearCalls++
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) MemoryUsedBytes(context.Context) (int64, error) { return s.memUsed, nil }

func (s *fakeStore) KeyCount(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

func (s *fakeStore) FailureCount() int64 { return s.failures.Load() }

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *fakeStore) put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = storeEntry{value: []byte(value)}
}

type fakeJob struct {
	record    ports.JobRecord
	spec      ports.JobSpec
	status    domain.JobStatus
	dedupeKey string
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*fakeJob
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{}
}

func (q *fakeQueue) Enqueue(_ context.Context, spec ports.JobSpec) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if spec.DedupeKey != "" {
		for _, job := range q.jobs {
			if job.dedupeKey == spec.DedupeKey && job.status == domain.JobStatusPending {
				return nil
			}
		}
	}
	q.jobs = append(q.jobs, &fakeJob{
		record: ports.JobRecord{
			JobID:        uuid.New(),
			Kind:         spec.Kind,
			Payload:      append([]byte(nil), spec.Payload...),
			Priority:     spec.Priority,
			MaxAttempts:  spec.MaxAttempts,
			Backoff:      spec.Backoff,
			BackoffDelay: spec.BackoffDelay,
			AvailableAt:  time.Now().Add(spec.Delay),
		},
		spec:      spec,
		status:    domain.JobStatusPending,
		dedupeKey: spec.DedupeKey,
	})
	return nil
}

func (q *fakeQueue) Claim(_ context.Context, limit int, claimToken string, _ time.Time, now time.Time) ([]ports.JobRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []ports.JobRecord
	for _, job := range q.jobs {
		if len(out) >= limit {
			break
		}
		if job.status == domain.JobStatusPending && !job.record.AvailableAt.After(now) {
			job.status = domain.JobStatusClaimed
			out = append(out, job.record)
		}
	}
	return out, nil
}

func (q *fakeQueue) MarkCompleted(_ context.Context, jobID uuid.UUID, _ string, _ time.Time) error {
	return q.setStatus(jobID, domain.JobStatusCompleted)
}

func (q *fakeQueue) MarkFailed(_ context.Context, jobID uuid.UUID, _ string, reason string, retryAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.record.JobID == jobID {
			job.status = domain.JobStatusPending
			job.record.Attempts++
			job.record.LastError = reason
			job.record.AvailableAt = retryAt
			return nil
		}
	}
	return fmt.Errorf("job %s not found", jobID)
}

func (q *fakeQueue) MarkDeadLettered(_ context.Context, jobID uuid.UUID, _ string, _ string, _ time.Time) error {
	return q.setStatus(jobID, domain.JobStatusDeadLettered)
}

func (q *fakeQueue) setStatus(jobID uuid.UUID, status domain.JobStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.record.JobID == jobID {
			job.status = status
			return nil
		}
	}
	return fmt.Errorf("job %s not found", jobID)
}

func (q *fakeQueue) Stats(context.Context) (domain.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var stats domain.QueueStats
	for _, job := range q.jobs {
		switch job.status {
		case domain.JobStatusPending:
			stats.Pending++
		case domain.JobStatusClaimed:
			stats.Claimed++
		case domain.JobStatusDeadLettered:
			stats.DeadLettered++
		}
	}
	return stats, nil
}

func (q *fakeQueue) pendingJobs() []ports.JobRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []ports.JobRecord
	for _, job := range q.jobs {
		if job.status == domain.JobStatusPending {
			out = append(out, job.record)
		}
	}
	return out
}

func (q *fakeQueue) complete(jobID uuid.UUID) {
	_ = q.setStatus(jobID, domain.JobStatusCompleted)
}

func (q *fakeQueue) pendingWithDedupe(dedupeKey string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, job := range q.jobs {
		if job.dedupeKey == dedupeKey && job.status == domain.JobStatusPending {
			count++
		}
	}
	return count
}

func (q *fakeQueue) pendingOfKind(kind domain.JobKind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, job := range q.jobs {
		if job.record.Kind == kind && job.status == domain.JobStatusPending {
			count++
		}
	}
	return count
}

type fakeViews struct {
	mu        sync.Mutex
	refreshed map[string]int
	err       error
}

func (v *fakeViews) RefreshIfDue(_ context.Context, view string, _ time.Time) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return false, v.err
	}
	v.refreshed[view]++
	return true, nil
}

func (v *fakeViews) count(view string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refreshed[view]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []ports.ChangeEvent
	err    error
}

func (p *fakePublisher) PublishChange(_ context.Context, event ports.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []ports.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.ChangeEvent(nil), p.events...)
}

type fakeOrders struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Order
	gets int
}

func (r *fakeOrders) Create(_ context.Context, row domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[row.ID]; ok {
		return domain.ErrConflict
	}
	r.rows[row.ID] = row
	return nil
}

func (r *fakeOrders) Update(_ context.Context, row domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[row.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Meta.Version != row.Meta.Version-1 {
		return domain.ErrVersionMismatch
	}
	r.rows[row.ID] = row
	return nil
}

func (r *fakeOrders) Get(_ context.Context, id uuid.UUID) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	row, ok := r.rows[id]
	if !ok || row.Meta.DeletedAt != nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *fakeOrders) SoftDelete(_ context.Context, row domain.Order) error {
	return r.Update(context.Background(), row)
}

func (r *fakeOrders) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

type fakeCustomers struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Customer
}

func (r *fakeCustomers) Create(_ context.Context, row domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[row.ID]; ok {
		return domain.ErrConflict
	}
	r.rows[row.ID] = row
	return nil
}

func (r *fakeCustomers) Update(_ context.Context, row domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[row.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Meta.Version != row.Meta.Version-1 {
		return domain.ErrVersionMismatch
	}
	r.rows[row.ID] = row
	return nil
}

func (r *fakeCustomers) Get(_ context.Context, id uuid.UUID) (domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Meta.DeletedAt != nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *fakeCustomers) SoftDelete(_ context.Context, row domain.Customer) error {
	return r.Update(context.Background(), row)
}

type fakeProducts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Product
}

func (r *fakeProducts) Create(_ context.Context, row domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[row.ID]; ok {
		return domain.ErrConflict
	}
	r.rows[row.ID] = row
	return nil
}

func (r *fakeProducts) Update(_ context.Context, row domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[row.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Meta.Version != row.Meta.Version-1 {
		return domain.ErrVersionMismatch
	}
	r.rows[row.ID] = row
	return nil
}

func (r *fakeProducts) Get(_ context.Context, id uuid.UUID) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Meta.DeletedAt != nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *fakeProducts) SoftDelete(_ context.Context, row domain.Product) error {
	return r.Update(context.Background(), row)
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]*ports.IdempotencyRecord
}

func (r *fakeIdempotency) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[key]
	if !ok || now.After(record.ExpiresAt) {
		return nil, domain.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *fakeIdempotency) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[key]; ok {
		return domain.ErrConflict
	}
	r.records[key] = &ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (r *fakeIdempotency) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	record.ResponseCode = responseCode
	record.ResponseBody = append([]byte(nil), responseBody...)
	return nil
}
