package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/millbrook/orderdesk/internal/adapters/cache"
	eventadapter "github.com/millbrook/orderdesk/internal/adapters/events"
	grpcadapter "github.com/millbrook/orderdesk/internal/adapters/grpc"
	httpadapter "github.com/millbrook/orderdesk/internal/adapters/http"
	"github.com/millbrook/orderdesk/internal/adapters/postgres"
	queueadapter "github.com/millbrook/orderdesk/internal/adapters/queue"
	"github.com/millbrook/orderdesk/internal/adapters/security"
	"github.com/millbrook/orderdesk/internal/application"
	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

type Runtime struct {
	cfg          Config
	logger       *slog.Logger
	service      *application.Service
	httpServer   *http.Server
	grpcServer   *grpc.Server
	grpcLis      net.Listener
	queueWorker  *queueadapter.Worker
	changeWorker *eventadapter.ChangeWorker
	cleanupFn    func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping orderdesk cache service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	cleanup := func(context.Context) { _ = sqlDB.Close() }

	// Redis is preferred; an unreachable Redis falls back to the bounded
	// in-process store so the service still answers with degraded caching.
	var store ports.CacheStore = cacheadapter.NewMemoryStore(cfg.MemoryMaxKeys)
	if cfg.CacheEnabled && cfg.RedisURL != "" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis config invalid, using in-memory cache", "error", err)
		} else if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			logger.Warn("redis unreachable, using in-memory cache", "error", pingErr)
			_ = redisClient.Close()
		} else {
			store = cacheadapter.NewRedisStore(redisClient, cfg.CacheNamespace, cfg.CacheOpTimeout, logger)
			prev := cleanup
			cleanup = func(ctx context.Context) {
				_ = redisClient.Close()
				prev(ctx)
			}
		}
	}

	verifier, err := security.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			cleanup(ctx)
			return nil, fmt.Errorf("init jwt verifier: %w", err)
		}
		logger.Warn("using ephemeral JWT secret for local/dev runtime")
		verifier, _, err = security.NewEphemeralJWTVerifier()
		if err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("init ephemeral jwt verifier: %w", err)
		}
	}

	var publisher ports.EventPublisher
	var consumer ports.EventConsumer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		kafkaConsumer, err := eventadapter.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaTopic)
		if err != nil {
			cleanup(ctx)
			return nil, fmt.Errorf("init kafka consumer: %w", err)
		}
		publisher = kafkaPublisher
		consumer = kafkaConsumer
		prev := cleanup
		cleanup = func(ctx context.Context) {
			_ = kafkaPublisher.Close()
			_ = kafkaConsumer.Close()
			prev(ctx)
		}
	}

	repos := postgres.NewRepositories(db)
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:            cfg.ServiceID,
			Enabled:                cfg.CacheEnabled,
			DefaultTTL:             cfg.DefaultTTL,
			TargetHitRate:          cfg.TargetHitRate,
			MinOperations:          cfg.MinOperations,
			IdempotencyTTL:         cfg.IdempotencyTTL,
			DeferredDelay:          cfg.DeferredDelay,
			DeferredMaxAttempts:    cfg.DeferredMaxAttempts,
			DeferredBackoffDelay:   cfg.DeferredBackoffDelay,
			WarmupGraceDelay:       cfg.WarmupGraceDelay,
			WarmupInterval:         cfg.WarmupInterval,
			WarmupBatchSize:        cfg.WarmupBatchSize,
			WarmupBatchDelay:       cfg.WarmupBatchDelay,
			LightWarmupInterval:    cfg.LightWarmupInterval,
			LightWarmupMinPriority: cfg.LightWarmupMinPriority,
			SweepInterval:          cfg.SweepInterval,
		},
		Logger:      logger,
		Store:       store,
		Queue:       repos.Queue,
		Views:       repos.Views,
		Publisher:   publisher,
		Orders:      repos.Orders,
		Customers:   repos.Customers,
		Products:    repos.Products,
		Idempotency: repos.Idempotency,
	})
	registerWarmupJobs(svc)

	handler := httpadapter.NewHandler(svc, verifier)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewCacheInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	queueWorker := queueadapter.NewWorker(
		logger,
		repos.Queue,
		svc,
		cfg.QueuePollInterval,
		cfg.QueueBatchSize,
		cfg.QueueClaimTTL,
	)

	var changeWorker *eventadapter.ChangeWorker
	if consumer != nil {
		changeWorker = eventadapter.NewChangeWorker(logger, consumer, svc, cfg.QueuePollInterval, cfg.QueueBatchSize)
	}

	return &Runtime{
		cfg:          cfg,
		logger:       logger,
		service:      svc,
		httpServer:   httpServer,
		grpcServer:   grpcServer,
		grpcLis:      lis,
		queueWorker:  queueWorker,
		changeWorker: changeWorker,
		cleanupFn:    cleanup,
	}, nil
}

// registerWarmupJobs primes the reference tier. Larger deployments register
// further jobs against their own hot keys before starting the scheduler.
func registerWarmupJobs(svc *application.Service) {
	_ = svc.RegisterWarmupJob(application.WarmupJob{
		Name:     "reference-order-statuses",
		CacheKey: "reference:order-statuses",
		Tier:     domain.TierReference,
		Priority: 9,
		Loader: func(context.Context) (any, error) {
			return []domain.OrderStatus{
				domain.OrderStatusDraft,
				domain.OrderStatusConfirmed,
				domain.OrderStatusProduction,
				domain.OrderStatusFitted,
				domain.OrderStatusInvoiced,
				domain.OrderStatusCancelled,
			}, nil
		},
	})
	_ = svc.RegisterWarmupJob(application.WarmupJob{
		Name:     "reference-entity-types",
		CacheKey: "reference:entity-types",
		Tier:     domain.TierReference,
		Priority: 8,
		Loader: func(context.Context) (any, error) {
			return domain.KnownEntityTypes(), nil
		},
	})
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go r.service.RunSweeper(ctx)

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.service.RunWarmupScheduler(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.service.RunSweeper(ctx)
	}()

	if r.changeWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.changeWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("change worker stopped", "error", err)
			}
		}()
	}

	r.logger.Info("invalidation queue worker started")
	err := r.queueWorker.Run(ctx)
	wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}
