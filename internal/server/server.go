package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/printdesk/internal/audit"
	auditdomain "github.com/smallbiznis/printdesk/internal/audit/domain"
	"github.com/smallbiznis/printdesk/internal/auth"
	authdomain "github.com/smallbiznis/printdesk/internal/auth/domain"
	"github.com/smallbiznis/printdesk/internal/authorization"
	"github.com/smallbiznis/printdesk/internal/config"
	"github.com/smallbiznis/printdesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/printdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/printdesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/printdesk/internal/observability/tracing"
	"github.com/smallbiznis/printdesk/internal/order"
	orderdomain "github.com/smallbiznis/printdesk/internal/order/domain"
	"github.com/smallbiznis/printdesk/internal/payment"
	paymentdomain "github.com/smallbiznis/printdesk/internal/payment/domain"
	"github.com/smallbiznis/printdesk/internal/pricing"
	"github.com/smallbiznis/printdesk/internal/providers"
	"github.com/smallbiznis/printdesk/internal/ratelimit"
	"github.com/smallbiznis/printdesk/internal/receipt"
	"github.com/smallbiznis/printdesk/internal/shop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	auth.Module,
	authorization.Module,
	shop.Module,
	pricing.Module,
	order.Module,
	ratelimit.Module,
	payment.Module,
	providers.Module,
	receipt.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	tokens          authdomain.TokenVerifier
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	orderSvc        orderdomain.Service
	intentSvc       paymentdomain.IntentService
	webhookSvc      paymentdomain.WebhookService
	receiptSvc      *receipt.Service
	checkoutLimiter *ratelimit.CheckoutLimiter
	obsMetrics      *obsmetrics.Metrics
	origins         map[string]struct{}
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Tokens          authdomain.TokenVerifier
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrderSvc        orderdomain.Service
	IntentSvc       paymentdomain.IntentService
	WebhookSvc      paymentdomain.WebhookService
	ReceiptSvc      *receipt.Service
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		tokens:          p.Tokens,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		orderSvc:        p.OrderSvc,
		intentSvc:       p.IntentSvc,
		webhookSvc:      p.WebhookSvc,
		receiptSvc:      p.ReceiptSvc,
		checkoutLimiter: p.CheckoutLimiter,
		obsMetrics:      p.ObsMetrics,
		origins:         originSet(p.Cfg.AllowedOrigins),
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.RequestTimeout())
	api.Use(s.AuthRequired())

	api.POST("/quotes", s.OriginRequired(), s.CreateQuote)

	// -------- Orders --------
	api.POST("/orders", s.OriginRequired(), s.CreateOrder)
	api.GET("/orders/:id", s.GetOrder)
	api.GET("/orders/:id/history", s.ListOrderHistory)
	api.GET("/orders/:id/receipt", s.GetOrderReceipt)

	// -------- Payments --------
	api.POST("/payments/intents", s.OriginRequired(), s.CheckoutRateLimit(), s.CreatePaymentIntent)
	api.POST("/payments/verify", s.OriginRequired(), s.VerifyPayment)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.RequestTimeout(), s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.RequestTimeout())
	admin.Use(s.AuthRequired())
	admin.Use(s.StaffRequired())

	admin.POST("/orders/:id/transition", s.TransitionOrder)
	admin.GET("/orders/:id/audit", s.ListOrderAudit)
}
