package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu.server-sub004/internal/core/port"
	"github.com/randevubu/randevubu.server-sub004/internal/infra/config"
	"github.com/randevubu/randevubu.server-sub004/internal/transport/http/handlers"
	"github.com/randevubu/randevubu.server-sub004/internal/transport/http/middleware"
	"github.com/randevubu/randevubu.server-sub004/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Tokens      *usecase.TokenService
	Permissions *usecase.PermissionResolver
	Reconcile   *usecase.ReconcileService
	Roles       port.RoleRepository
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config     *config.AppConfig
	Logger     *zap.Logger
	Services   ServiceSet
	Database   DatabaseChecker
	Cache      CacheChecker
	RateLimits port.RateLimitStore
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(deps.Config.App.Name))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS([]string{"*"}))

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Namespace: deps.Config.Telemetry.MetricsNamespace,
	})
	if err != nil {
		return nil, err
	}
	r.Use(metrics.Handler())

	authMiddleware := middleware.RequireAuth(deps.Services.Tokens)

	// With a nil store or non-positive limits the rules are inert, so a
	// disabled limiter costs nothing on the hot path.
	limiter := middleware.NewRateLimiter(deps.RateLimits, deps.Logger)
	refreshLimit := limiter.Limit(middleware.RateLimitRule{
		Name:   "auth_refresh",
		Limit:  deps.Config.RateLimit.RefreshLimit,
		Window: deps.Config.RateLimit.RefreshWindow,
	})
	grantLimit := limiter.Limit(middleware.RateLimitRule{
		Name:   "role_grant",
		Limit:  deps.Config.RateLimit.GrantLimit,
		Window: deps.Config.RateLimit.GrantWindow,
	})

	checks := make(map[string]handlers.ReadinessCheck, 2)
	if deps.Database != nil {
		checks["database"] = deps.Database.Ping
	}
	if deps.Cache != nil {
		checks["redis"] = deps.Cache.HealthCheck
	}
	healthHandler := handlers.NewHealthHandler(checks)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Tokens, deps.Logger)

		authGroup := api.Group("/auth")
		authGroup.POST("/refresh", refreshLimit, authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/logout/all", authMiddleware, authHandler.LogoutAll)
		authGroup.POST("/logout/device", authMiddleware, authHandler.LogoutDevice)

		permissionHandler := handlers.NewPermissionHandler(deps.Services.Permissions, deps.Logger)
		api.GET("/me/permissions", authMiddleware, permissionHandler.Mine)

		roleHandler := handlers.NewRoleHandler(deps.Services.Roles, deps.Services.Reconcile, deps.Logger)
		api.POST("/users/:userId/roles", grantLimit, authMiddleware,
			middleware.RequirePermission(deps.Services.Permissions, "role", "grant"),
			roleHandler.Grant)
	}

	return r, nil
}
