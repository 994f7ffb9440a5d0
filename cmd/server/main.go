package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/musicschool/ledger/internal/application/reconciliation"
	"github.com/musicschool/ledger/internal/infrastructure/auth"
	"github.com/musicschool/ledger/internal/infrastructure/cache"
	"github.com/musicschool/ledger/internal/infrastructure/config"
	"github.com/musicschool/ledger/internal/infrastructure/event"
	"github.com/musicschool/ledger/internal/infrastructure/lock"
	"github.com/musicschool/ledger/internal/infrastructure/logger"
	"github.com/musicschool/ledger/internal/infrastructure/persistence"
	"github.com/musicschool/ledger/internal/infrastructure/scheduler"
	"github.com/musicschool/ledger/internal/infrastructure/telemetry"
	"github.com/musicschool/ledger/internal/interfaces/http/handler"
	"github.com/musicschool/ledger/internal/interfaces/http/middleware"
	"github.com/musicschool/ledger/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting student ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, cfg.Telemetry.ServiceName)
	profiler, err := telemetry.NewProfiler(cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Database.LogLevel), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, cfg.Telemetry, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	var dbMetrics *telemetry.DBMetrics
	if meterProvider.IsEnabled() {
		dbMetrics, err = telemetry.RegisterDBMetrics(db.DB, meter, cfg.Telemetry.DBSlowQueryThresh)
		if err != nil {
			log.Fatal("Failed to register database metrics", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	healthChecks := map[string]handler.Pinger{
		"database": db.Ping,
	}

	// Redis backs the idempotency store and the cross-instance student lock
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	var locker reconciliation.StudentLocker
	switch cfg.Locking.Backend {
	case "redis":
		locker = lock.NewRedisLocker(redisClient, lock.RedisLockerConfig{
			AcquireTimeout: cfg.Locking.AcquireTimeout,
			LeaseTTL:       cfg.Locking.LeaseTTL,
			RetryInterval:  cfg.Locking.RetryInterval,
		}, log)
	default:
		locker = lock.NewMemoryLocker(cfg.Locking.AcquireTimeout)
	}

	storeFactory := cache.NewIdempotencyStoreFactory(nil,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.App.IsProduction()),
	)
	if redisClient != nil {
		storeFactory = cache.NewIdempotencyStoreFactory(redisClient, cache.WithLogger(log))
	}
	idempotencyStore, err := storeFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		_ = idempotencyStore.Close()
	}()

	// Event bus: every domain event lands in the audit log
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewAuditLogHandler(log))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Application service
	coordinator := reconciliation.NewCoordinator(
		persistence.NewGormTransactionScope(db.DB),
		persistence.NewRepositories(db.DB),
		locker,
	)
	coordinator.SetEventPublisher(eventBus)
	coordinator.SetLogger(log)
	if meterProvider.IsEnabled() {
		ledgerMetrics, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{Meter: meter})
		if err != nil {
			log.Fatal("Failed to create ledger metrics", zap.Error(err))
		}
		coordinator.SetMetrics(ledgerMetrics)
	}

	// Overdue sweep
	sweeper, err := scheduler.NewOverdueSweeper(coordinator, cfg.Scheduler, log)
	if err != nil {
		log.Fatal("Failed to create overdue sweeper", zap.Error(err))
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start overdue sweeper", zap.Error(err))
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	jwtService := auth.NewJWTService(cfg.JWT)
	if !jwtService.Enabled() {
		log.Warn("JWT secret not configured, trusting the X-User-ID header")
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}

	engine, err := router.New(router.Config{
		Coordinator:    coordinator,
		Logger:         log,
		JWT:            jwtService,
		Idempotency:    idempotencyStore,
		IdempotencyTTL: cfg.HTTP.IdempotencyTTL,
		Meter:          meter,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
		},
		CORS:           cors,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		HealthChecks:   healthChecks,
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Warn("Overdue sweeper did not stop cleanly", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not stop cleanly", zap.Error(err))
	}
	if dbMetrics != nil {
		_ = dbMetrics.Stop()
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler did not stop cleanly", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	_ = loggerProvider.Shutdown(shutdownCtx)
}
