package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/textile/backend/internal/infrastructure/auth"
	"github.com/textile/backend/internal/infrastructure/config"
	"github.com/textile/backend/internal/infrastructure/logger"
	"github.com/textile/backend/internal/interfaces/http/handler"
	"github.com/textile/backend/internal/interfaces/http/middleware"
)

// multipartOverhead is allowed on top of the upload size for form framing
const multipartOverhead = 1 << 20

// Handlers groups the API handlers
type Handlers struct {
	Invoices *handler.InvoiceHandler
	Counters *handler.CounterHandler
	Imports  *handler.ImportHandler
	Health   *handler.HealthHandler
}

// APIConfig controls the middleware chain
type APIConfig struct {
	HTTP          config.HTTPConfig
	MaxUploadSize int64
	ServiceName   string

	// Validator enables bearer-token authentication when set
	Validator     middleware.TokenValidator
	UploadLimiter *middleware.RateLimiter

	Tracing        bool
	TracerProvider trace.TracerProvider
	Meter          metric.Meter
	Profiling      bool

	Logger *zap.Logger
}

// NewEngine builds the gin engine serving the back-office API
func NewEngine(cfg APIConfig, h Handlers) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName:    cfg.ServiceName,
			Enabled:        cfg.Tracing,
			TracerProvider: cfg.TracerProvider,
		}),
		logger.GinMiddleware(log),
		middleware.Secure(),
		middleware.CORS(cfg.HTTP.CORSAllowOrigins),
	)
	if cfg.Meter != nil {
		metrics, err := middleware.HTTPMetrics(cfg.Meter)
		if err != nil {
			return nil, err
		}
		engine.Use(metrics)
	}
	if cfg.Profiling {
		engine.Use(middleware.Profiling())
	}

	engine.GET("/health", h.Health.Health)

	var apiMiddleware []gin.HandlerFunc
	adminOnly := []gin.HandlerFunc{}
	if cfg.Validator != nil {
		apiMiddleware = append(apiMiddleware, middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			Validator: cfg.Validator,
			// EventSource cannot send an Authorization header
			AllowQueryToken: true,
			Logger:          log,
		}))
		adminOnly = append(adminOnly, middleware.RequireRole(auth.RoleAdmin))
	}
	apiMiddleware = append(apiMiddleware, middleware.SpanEnricher())

	r := NewRouter(engine, WithAPIVersion("v1"), WithAPIMiddleware(apiMiddleware...))
	r.Register(invoiceRoutes(h.Invoices, cfg.HTTP.MaxBodySize, adminOnly))
	r.Register(counterRoutes(h.Counters, cfg.HTTP.MaxBodySize))
	r.Register(importRoutes(h.Imports, cfg.MaxUploadSize+multipartOverhead, cfg.UploadLimiter))
	for _, rt := range r.Setup() {
		log.Debug("Route mounted",
			zap.String("group", rt.Group),
			zap.String("method", rt.Method),
			zap.String("path", rt.Path),
		)
	}

	return engine, nil
}

func invoiceRoutes(h *handler.InvoiceHandler, maxBody int64, adminOnly []gin.HandlerFunc) *DomainGroup {
	g := NewDomainGroup("invoices", "/workflows/:workflow/invoices").Use(middleware.BodyLimit(maxBody))
	g.POST("", h.Create).
		GET("", h.List).
		GET("/watch", h.Watch).
		GET("/:number", h.Get).
		GET("/:number/pdf", h.PDF).
		PATCH("/:number/status", h.UpdateStatus).
		POST("/:number/relink", h.Relink).
		DELETE("/:number", append(adminOnly, h.Delete)...)
	return g
}

func counterRoutes(h *handler.CounterHandler, maxBody int64) *DomainGroup {
	return NewDomainGroup("counters", "/counters").
		Use(middleware.BodyLimit(maxBody)).
		POST("/:namespace/reserve", h.Reserve)
}

func importRoutes(h *handler.ImportHandler, maxBody int64, limiter *middleware.RateLimiter) *DomainGroup {
	g := NewDomainGroup("imports", "/imports").Use(middleware.BodyLimit(maxBody))
	if limiter != nil {
		g.Use(middleware.RateLimit(limiter))
	}
	return g.POST("", h.Upload)
}
