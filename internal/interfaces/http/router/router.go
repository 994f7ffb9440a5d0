// Package router assembles the gin engine: middleware chain and /api/v1 routes.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/musicschool/ledger/internal/application/reconciliation"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/auth"
	"github.com/musicschool/ledger/internal/infrastructure/logger"
	"github.com/musicschool/ledger/internal/interfaces/http/dto"
	"github.com/musicschool/ledger/internal/interfaces/http/handler"
	"github.com/musicschool/ledger/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const healthPath = "/health"

// Config holds everything the HTTP surface depends on
type Config struct {
	Coordinator *reconciliation.Coordinator
	Logger      *zap.Logger
	JWT         *auth.JWTService

	// Optional
	Idempotency    shared.IdempotencyStore
	IdempotencyTTL time.Duration
	Meter          metric.Meter
	Tracing        middleware.TracingConfig
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
	HealthChecks   map[string]handler.Pinger
}

// RouteRegistrar registers a group of routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// New builds the engine. The middleware order is: recovery, request id,
// tracing, access log, CORS and security headers, body limit, metrics;
// then on /api/v1 authentication, span enrichment and idempotency.
func New(cfg Config) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	metrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(cfg.Logger),
		middleware.RequestID(),
		middleware.Tracing(cfg.Tracing),
		logger.GinMiddleware(cfg.Logger),
		middleware.CORS(cfg.CORS),
		middleware.Secure(),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	engine.Use(metrics)

	engine.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, dto.ErrCodeRouteNotFound, "Route not found")
	})
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed,
			dto.NewErrorResponse(dto.ErrCodeBadRequest, "Method not allowed", middleware.GetRequestID(c)))
	})

	system := handler.NewSystemHandler(cfg.HealthChecks)
	engine.GET(healthPath, system.Health)

	api := engine.Group("/api/v1")
	api.GET(healthPath, system.Health)

	secured := api.Group("",
		middleware.Authenticate(middleware.AuthConfig{JWT: cfg.JWT, Logger: cfg.Logger}),
		middleware.SpanEnricher(),
	)
	if cfg.Idempotency != nil {
		secured.Use(middleware.Idempotency(cfg.Idempotency, cfg.IdempotencyTTL, cfg.Logger))
	}

	for _, registrar := range []RouteRegistrar{
		correctionRoutes{handler.NewCorrectionHandler(cfg.Coordinator)},
		invoiceRoutes{handler.NewInvoiceHandler(cfg.Coordinator)},
		accountRoutes{handler.NewAccountHandler(cfg.Coordinator)},
	} {
		registrar.RegisterRoutes(secured)
	}
	return engine, nil
}

type correctionRoutes struct{ h *handler.CorrectionHandler }

func (r correctionRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	students := rg.Group("/students/:studentId/corrections")
	students.POST("", r.h.Create)
	students.GET("", r.h.ListByStudent)
	students.GET("/summary", r.h.Summary)

	corrections := rg.Group("/corrections/:id")
	corrections.GET("", r.h.Get)
	corrections.POST("/reverse", r.h.Reverse)
	corrections.POST("/apply", r.h.Apply)

	rg.POST("/applications/:id/decouple", r.h.Decouple)
}

type invoiceRoutes struct{ h *handler.InvoiceHandler }

func (r invoiceRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	students := rg.Group("/students/:studentId/invoices")
	students.POST("", r.h.Create)
	students.GET("", r.h.ListByStudent)

	invoices := rg.Group("/invoices/:id")
	invoices.GET("", r.h.Get)
	invoices.POST("/send", r.h.Send)
	invoices.POST("/recalculate", r.h.Recalculate)
	invoices.POST("/payments", r.h.RecordPayment)
	invoices.POST("/cancel", r.h.Cancel)
	invoices.POST("/credit-invoices", r.h.CreateCreditInvoice)
	invoices.POST("/confirm", r.h.ConfirmCreditInvoice)
	invoices.POST("/apply-credit", r.h.ApplyCreditInvoices)
	invoices.GET("/verify", r.h.Verify)
}

type accountRoutes struct{ h *handler.AccountHandler }

func (r accountRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	students := rg.Group("/students/:studentId")
	students.GET("/transactions", r.h.Transactions)
	students.GET("/balance", r.h.Balance)
}
