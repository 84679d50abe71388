package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creatorlane/billing-service/internal/api/rest/handlers"
	"github.com/creatorlane/billing-service/internal/middleware"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// Handlers набор обработчиков, монтируемых в роутер
type Handlers struct {
	Subscription   *handlers.SubscriptionHandler
	Webhook        *handlers.WebhookHandler
	Stats          *handlers.StatsHandler
	Reconciliation *handlers.ReconciliationHandler
	Health         *handlers.HealthHandler
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(h Handlers, authMW *middleware.JWTMiddleware, registry *prometheus.Registry, log *logger.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", h.Health.HealthCheck)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Вебхуки аутентифицируются подписью, не токеном
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", h.Webhook.HandleStripeWebhook)
	}

	v1 := r.Group("/api/v1")
	{
		subscriptions := v1.Group("/subscriptions")
		subscriptions.Use(authMW.RequireAuth())
		{
			subscriptions.POST("", h.Subscription.CreateSubscription)
			subscriptions.GET("", h.Subscription.ListSubscriptions)
			subscriptions.GET("/:id", h.Subscription.GetSubscription)
			subscriptions.PUT("/:id", h.Subscription.UpdateSubscription)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/stats",
				authMW.RequireAuth(middleware.ScopeBillingAdmin),
				h.Stats.GetStats)
			admin.GET("/reconcile/history",
				authMW.RequireAuth(middleware.ScopeBillingAdmin),
				h.Reconciliation.ListAudits)
			admin.POST("/reconcile",
				authMW.RequireAuth(middleware.ScopeBillingAdmin, middleware.ScopeBillingScheduler),
				h.Reconciliation.TriggerReconciliation)
		}
	}

	log.Infow("API routes successfully configured")
	return r
}
