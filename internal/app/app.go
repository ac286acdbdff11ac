package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/paylink/reconciler/cmd/server/docs" // swagger docs
	"github.com/paylink/reconciler/internal/infra/config"
	apperrors "github.com/paylink/reconciler/internal/utils/errors"
	"github.com/paylink/reconciler/internal/utils/middleware"
)

const idempotencyTTL = 24 * time.Hour

// Application is implemented by App.
type Application interface {
	Router() *gin.Engine
	Stop()
}

var _ Application = (*App)(nil)

// App represents the application.
type App struct {
	config    *config.Config
	deps      *Dependencies
	router    *gin.Engine
	zapLogger *zap.Logger
	redis     goredis.UniversalClient

	cleanup func()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	deps, cleanup, err := InitializeDependencies(cfg)
	if err != nil {
		return nil, fmt.Errorf("init dependencies: %w", err)
	}

	app := &App{
		config:    cfg,
		deps:      deps,
		zapLogger: deps.ZapLogger,
		redis:     deps.Redis,
		cleanup:   cleanup,
	}

	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	// Set Gin mode based on environment
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.zapLogger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.zapLogger))
	if a.config.Metrics.Enabled {
		r.Use(middleware.Metrics(a.deps.Metrics))
	}
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(a.config.Server.AllowedOrigins)))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if a.config.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Swagger documentation endpoint
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	r.NoRoute(func(c *gin.Context) {
		appErr := apperrors.RouteNotFound(c.Request.Method, c.Request.URL.Path)
		c.JSON(appErr.StatusCode, appErr.ToResponse(middleware.GetRequestID(c)))
	})

	return r
}

// registerRoutes registers all HTTP routes.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")

	// Provider callbacks carry no operator credentials.
	a.deps.WebhookHandler.RegisterRoutes(v1)

	validator := a.deps.TokenValidator
	idempotent := middleware.Idempotency(a.redis, idempotencyTTL)

	protected := v1.Group("")
	protected.Use(middleware.RequireAuth(validator))
	protected.Use(idempotent)
	a.deps.PaymentHandler.RegisterRoutes(protected)

	operator := v1.Group("")
	operator.Use(middleware.RequireAuth(validator))
	operator.Use(middleware.RequireRole(validator, a.config.Auth.OperatorRole))
	operator.Use(idempotent)
	a.deps.RefundHandler.RegisterRoutes(operator)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	// Sync zap logger
	if a.zapLogger != nil {
		_ = a.zapLogger.Sync()
	}

	// Close Redis connection
	if a.redis != nil {
		_ = a.redis.Close()
	}

	// Close database connection
	if a.cleanup != nil {
		a.cleanup()
	}
}
