package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/handler"
	"github.com/endlessblink/Gear-Pool/internal/infrastructure/logger"
	"github.com/endlessblink/Gear-Pool/internal/infrastructure/redis"
	"github.com/endlessblink/Gear-Pool/internal/notify"
	"github.com/endlessblink/Gear-Pool/internal/observability/metrics"
	"github.com/endlessblink/Gear-Pool/internal/observability/tracing"
	"github.com/endlessblink/Gear-Pool/internal/repository"
	"github.com/endlessblink/Gear-Pool/internal/repository/memory"
	"github.com/endlessblink/Gear-Pool/internal/security"
	"github.com/endlessblink/Gear-Pool/internal/security/audit"
	"github.com/endlessblink/Gear-Pool/internal/security/auth"
	"github.com/endlessblink/Gear-Pool/internal/security/middleware"
	"github.com/endlessblink/Gear-Pool/internal/security/ratelimit"
	"github.com/endlessblink/Gear-Pool/internal/service"
	"github.com/endlessblink/Gear-Pool/internal/worker"
	"github.com/endlessblink/Gear-Pool/pkg/config"
	"github.com/endlessblink/Gear-Pool/pkg/database"
)

var _ notify.Queue = (*repository.NotificationQueue)(nil)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger and tracing
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting Gear-Pool server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "gearpool", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Open the store
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	// 4. Redis backs the notification queue and token denylist when configured
	var (
		queue       notify.Queue         = notify.NewMemoryQueue()
		revocations auth.RevocationStore = auth.NewMemoryRevocationStore()
		health                           = map[string]handler.Pinger{"store": store}
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		queue = repository.NewNotificationQueue(redisClient, log)
		revocations = repository.NewTokenDenylist(redisClient)
		health["redis"] = redisClient
	} else {
		log.Warn("REDIS_URL not set: notifications and token revocations are kept in memory")
	}

	// 5. Initialize security components
	authz := security.NewAuthorizationService(log)
	auditLogger := audit.NewLogger(log)
	auditFeed := audit.NewFeed()
	defer auditFeed.Close()
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "gearpool")
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)

	// 6. Initialize services
	dispatcher := notify.NewDispatcher(queue, log)
	audits := service.NewAuditService(store, auditLogger, auditFeed, authz, log)
	tenants := service.NewTenantContext(store, authz, audits, log)
	authService := service.NewAuthService(store, tokenManager, revocations, cfg.JWTTTL, authz, audits, log)
	catalog := service.NewCatalogService(store, authz, audits, log)
	engine := service.NewReservationEngine(store, authz, audits, log)
	workflow := service.NewWorkflowService(store, audits, dispatcher, log)

	if cfg.Bootstrap.Enabled() {
		if err := bootstrap(ctx, cfg.Bootstrap, store, tenants, authService, log); err != nil {
			log.Error("bootstrap failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 7. Setup HTTP routes and middleware:
	// request ID -> CORS -> input checks -> tracing -> JWT -> rate limit -> audit -> metrics.
	// Metrics sit next to the mux so they can read the matched route pattern.
	mux := handler.NewRouter(handler.Deps{
		Tenants:        tenants,
		Auth:           authService,
		Catalog:        catalog,
		Engine:         engine,
		Workflow:       workflow,
		Audits:         audits,
		AuditLog:       auditLogger,
		Health:         health,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
	})
	rootHandler := middleware.Chain(mux,
		middleware.RequestID(log),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.SanitizeInputs(log),
		middleware.ValidateJSONContentType(log),
		func(h http.Handler) http.Handler { return tracing.Handler(h, "gearpool") },
		middleware.JWTMiddleware(tokenManager, revocations, auditLogger, log),
		middleware.RateLimitMiddleware(rateLimiter, log),
		middleware.AuditMiddleware(auditLogger),
		metrics.HTTPMetricsMiddleware,
	)

	// 8. Start background workers
	var sender notify.Sender = notify.NewLogSender(log)
	if cfg.SMTP.Enabled() {
		sender = notify.NewSMTPSender(cfg.SMTP)
	}
	notifyWorker := notify.NewWorker(queue, sender, cfg.NotifyMaxAttempts, cfg.NotifyPollInterval, log)
	overdueWorker := worker.NewOverdueWorker(store, workflow, log, cfg.OverdueScanInterval)
	go notifyWorker.Start(ctx)
	go overdueWorker.Start(ctx)

	// 9. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageDriver),
		slog.Bool("redis", redisClient != nil),
		slog.Bool("smtp", cfg.SMTP.Enabled()),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop workers
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// openStore returns the configured store, migrating Postgres on the way.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.Store, error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage: data is lost on restart")
		return memory.NewStore(), nil
	}
	pool, err := database.NewConnectionPool(ctx, database.DefaultConfig(cfg.DSN()), log)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, pool.GetDB()); err != nil {
		pool.Close()
		return nil, err
	}
	return repository.NewPostgresStore(pool.GetDB(), log), nil
}

// bootstrap creates the configured tenant and its first admin when missing.
func bootstrap(ctx context.Context, b config.BootstrapConfig, store domain.Store, tenants *service.TenantContext, authService *service.AuthService, log *slog.Logger) error {
	_, err := tenants.Tenant(ctx, b.TenantID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := tenants.CreateTenant(ctx, &domain.Tenant{ID: b.TenantID, Name: b.TenantName, Slug: b.TenantID}); err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		log.Info("bootstrap tenant created", slog.String("tenant_id", b.TenantID))
	case err != nil:
		return err
	}

	if _, err := store.Users().GetByEmail(ctx, b.AdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	scope := domain.SystemScope(b.TenantID, domain.DefaultTenantSettings())
	if _, err := authService.CreateUser(ctx, scope, service.CreateUserRequest{
		Email:       b.AdminEmail,
		DisplayName: "Administrator",
		Password:    b.AdminPassword,
		Role:        domain.RoleAdmin,
	}); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info("bootstrap admin created", slog.String("tenant_id", b.TenantID))
	return nil
}
