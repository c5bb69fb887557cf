package application

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

type Config struct {
	ServiceName string
	Version     string

	// Enabled gates every cache interaction; when false the service passes
	// reads straight to loaders and skips invalidation entirely.
	Enabled bool

	DefaultTTL     time.Duration
	TargetHitRate  float64
	MinOperations  int64
	IdempotencyTTL time.Duration

	DeferredDelay        time.Duration
	DeferredMaxAttempts  int
	DeferredBackoffDelay time.Duration

	WarmupGraceDelay       time.Duration
	WarmupInterval         time.Duration
	WarmupBatchSize        int
	WarmupBatchDelay       time.Duration
	LightWarmupInterval    time.Duration
	LightWarmupMinPriority int

	SweepInterval time.Duration
}

// Actor identifies the authenticated admin caller.
type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

// WarmupJob proactively populates one cache key from a loader. Names are
// unique within the registry; priority orders execution.
type WarmupJob struct {
	Name     string
	CacheKey string
	Tier     domain.Tier
	Priority int
	Loader   func(ctx context.Context) (any, error)
}

type Service struct {
	cfg    Config
	logger *slog.Logger

	store       ports.CacheStore
	queue       ports.JobQueue
	views       ports.ViewRefresher
	publisher   ports.EventPublisher
	orders      ports.OrderRepository
	customers   ports.CustomerRepository
	products    ports.ProductRepository
	idempotency ports.IdempotencyRepository

	metricsMu sync.Mutex
	hits      int64
	misses    int64
	endpoints map[string]*domain.PerformanceMetric
	alerts    []domain.Alert

	warmupMu       sync.Mutex
	warmupJobs     map[string]WarmupJob
	warmupActive   atomic.Bool
	warmupFailures atomic.Int64

	startedAt time.Time
	nowFn     func() time.Time
}

type Dependencies struct {
	Config Config
	Logger *slog.Logger

	Store       ports.CacheStore
	Queue       ports.JobQueue
	Views       ports.ViewRefresher
	Publisher   ports.EventPublisher
	Orders      ports.OrderRepository
	Customers   ports.CustomerRepository
	Products    ports.ProductRepository
	Idempotency ports.IdempotencyRepository

	// Now overrides the service clock; leave nil outside tests.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "orderdesk-cache"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = domain.TierDefault.TTL()
	}
	if cfg.TargetHitRate <= 0 || cfg.TargetHitRate > 1 {
		cfg.TargetHitRate = 0.8
	}
	if cfg.MinOperations <= 0 {
		cfg.MinOperations = 100
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.DeferredDelay <= 0 {
		cfg.DeferredDelay = 100 * time.Millisecond
	}
	if cfg.DeferredMaxAttempts <= 0 {
		cfg.DeferredMaxAttempts = 3
	}
	if cfg.DeferredBackoffDelay <= 0 {
		cfg.DeferredBackoffDelay = 2 * time.Second
	}
	if cfg.WarmupGraceDelay <= 0 {
		cfg.WarmupGraceDelay = 5 * time.Second
	}
	if cfg.WarmupInterval <= 0 {
		cfg.WarmupInterval = 30 * time.Minute
	}
	if cfg.WarmupBatchSize <= 0 {
		cfg.WarmupBatchSize = 3
	}
	if cfg.WarmupBatchDelay <= 0 {
		cfg.WarmupBatchDelay = 200 * time.Millisecond
	}
	if cfg.LightWarmupInterval <= 0 {
		cfg.LightWarmupInterval = 10 * time.Minute
	}
	if cfg.LightWarmupMinPriority <= 0 {
		cfg.LightWarmupMinPriority = 7
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	now := nowFn()
	return &Service{
		cfg:         cfg,
		logger:      logger.With("module", "application", "layer", "application"),
		store:       deps.Store,
		queue:       deps.Queue,
		views:       deps.Views,
		publisher:   deps.Publisher,
		orders:      deps.Orders,
		customers:   deps.Customers,
		products:    deps.Products,
		idempotency: deps.Idempotency,
		endpoints:   make(map[string]*domain.PerformanceMetric),
		warmupJobs:  make(map[string]WarmupJob),
		startedAt:   now,
		nowFn:       nowFn,
	}
}
