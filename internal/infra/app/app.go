package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/config"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/database"
	kafkainfra "github.com/randevubu/randevubu.server-sub004/internal/infra/kafka"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/logger"
	redisinfra "github.com/randevubu/randevubu.server-sub004/internal/infra/redis"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/security"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/telemetry"
	postgresrepo "github.com/randevubu/randevubu.server-sub004/internal/repository/postgres"
	redisrepo "github.com/randevubu/randevubu.server-sub004/internal/repository/redis"
	"github.com/randevubu/randevubu.server-sub004/internal/transport/http/routes"
	"github.com/randevubu/randevubu.server-sub004/internal/usecase"
)

// Application wires configuration, storage, messaging, and transport into
// one runnable process.
type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	tokens  *usecase.TokenService
	tracing *telemetry.TracerProvider
}

// New builds the application graph. Secret misconfiguration fails here,
// before the process starts serving.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracing *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	signer, err := security.NewSessionSigner(security.SignerConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessTTL:     cfg.JWT.AccessTokenTTL,
		RefreshTTL:    cfg.JWT.RefreshTokenTTL,
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init session signer: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	permissionCache := redisrepo.NewPermissionCache(redisClient.Client(), cfg.RBAC.CacheKeyPrefix, cfg.RBAC.CacheTTL)

	var rateLimits port.RateLimitStore
	if cfg.RateLimit.Enabled {
		// Idle keys survive twice the widest window before expiring.
		ttl := cfg.RateLimit.RefreshWindow
		if cfg.RateLimit.GrantWindow > ttl {
			ttl = cfg.RateLimit.GrantWindow
		}
		rateLimits = redisrepo.NewRateLimitStore(redisClient.Client(), cfg.RateLimit.KeyPrefix, 2*ttl)
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	tokenService := usecase.NewTokenService(cfg, signer, repos.Tokens, repos.Users, repos.Audit, eventPublisher, log)
	permissionResolver := usecase.NewPermissionResolver(repos.Roles, repos.Permissions, permissionCache, log)
	reconcileService := usecase.NewReconcileService(cfg, permissionResolver, tokenService, eventPublisher, log)

	engine, err := routes.Register(routes.Dependencies{
		Config:     cfg,
		Logger:     log,
		Database:   pool,
		Cache:      redisClient,
		RateLimits: rateLimits,
		Services: routes.ServiceSet{
			Tokens:      tokenService,
			Permissions: permissionResolver,
			Reconcile:   reconcileService,
			Roles:       repos.Roles,
		},
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("register routes: %w", err)
	}

	return &Application{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		pool:    pool,
		redis:   redisClient,
		tokens:  tokenService,
		tracing: tracing,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully. A background ticker sweeps expired refresh records.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracing != nil {
			if err := a.tracing.Shutdown(context.Background()); err != nil {
				a.logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}
	}()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go a.runTokenCleanup(cleanupCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting session API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// runTokenCleanup periodically deletes expired refresh records.
func (a *Application) runTokenCleanup(ctx context.Context) {
	interval := a.cfg.Session.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := a.tokens.CleanupExpiredTokens(sweepCtx); err != nil {
				a.logger.Warn("expired token sweep failed", zap.Error(err))
			}
			cancel()
		}
	}
}
