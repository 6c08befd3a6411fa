package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/pkg/metrics"
	"example.com/funnel-payments/services/payment/internal/middleware"
)

// ServiceName — имя сервиса в метриках и трассах.
const ServiceName = "payment-service"

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// Router — конфигурация роутера.
type Router struct {
	engine         *gin.Engine
	payments       *PaymentHandler
	webhooks       *WebhookHandler
	reminders      *ReminderHandler
	authMW         *middleware.AuthMiddleware
	rateLimitMW    *middleware.RateLimitMiddleware
	readinessCheck ReadinessChecker
}

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	Initiator      PaymentInitiator
	Reconciler     PaymentReconciler
	Tracker        EventTracker
	Reminders      ReminderRunner
	AuthMW         *middleware.AuthMiddleware
	RateLimitMW    *middleware.RateLimitMiddleware // nil — без rate limiting
	CORS           middleware.CORSConfig
	ReadinessCheck ReadinessChecker // опциональная проверка готовности для /readyz
	Debug          bool             // Режим отладки Gin
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := RegisterValidators(); err != nil {
		logger.Error().Err(err).Msg("Ошибка регистрации валидаторов")
	}

	corsCfg := cfg.CORS
	if len(corsCfg.AllowedOrigins) == 0 {
		corsCfg = middleware.DefaultCORSConfig()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(corsCfg))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(otelgin.Middleware(ServiceName))
	engine.Use(metrics.GinMetricsMiddleware(ServiceName))
	engine.Use(middleware.RequestContext())

	r := &Router{
		engine:         engine,
		payments:       NewPaymentHandler(cfg.Initiator, cfg.Reconciler, cfg.Tracker),
		webhooks:       NewWebhookHandler(cfg.Reconciler),
		reminders:      NewReminderHandler(cfg.Reminders),
		authMW:         cfg.AuthMW,
		rateLimitMW:    cfg.RateLimitMW,
		readinessCheck: cfg.ReadinessCheck,
	}

	r.setupRoutes()
	return r
}

// setupRoutes настраивает все маршруты API.
func (r *Router) setupRoutes() {
	// Health endpoints (без rate limiting и auth)
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/healthz", r.livenessCheck)
	r.engine.GET("/readyz", r.readinessCheckHandler)

	// === Вебхуки провайдеров (без auth, всегда 200) ===
	webhooks := r.engine.Group("/webhooks")
	{
		webhooks.POST("/pix-gateway", r.webhooks.PixGateway)
		webhooks.POST("/mercadopago", r.webhooks.MercadoPago)
	}

	// === API v1 (bearer) ===
	v1 := r.engine.Group("/api/v1")
	v1.Use(r.authMW.Handle())
	if r.rateLimitMW != nil {
		v1.Use(r.rateLimitMW.Handle())
	}
	{
		v1.POST("/payments", r.payments.CreatePayment)
		v1.POST("/mercadopago/payments", r.payments.MercadoPago)
		v1.POST("/tracking", r.payments.TrackEvent)
	}

	// === Внутренние триггеры (service_role) ===
	internal := r.engine.Group("/internal")
	internal.Use(r.authMW.Handle(), r.authMW.RequireServiceRole())
	{
		internal.POST("/reminders/sweep", r.reminders.Sweep)
	}
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// healthCheck — проверка работоспособности сервиса (legacy).
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": ServiceName,
	})
}

// livenessCheck — liveness probe: сервер отвечает, значит процесс жив.
func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheckHandler — readiness probe: MySQL и Redis доступны.
func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.readinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.readinessCheck(ctx); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Readiness check не пройден")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
