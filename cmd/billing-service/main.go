package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/creatorlane/billing-service/config"
	"github.com/creatorlane/billing-service/internal/api/rest"
	"github.com/creatorlane/billing-service/internal/api/rest/handlers"
	"github.com/creatorlane/billing-service/internal/db"
	"github.com/creatorlane/billing-service/internal/integration/stripe"
	"github.com/creatorlane/billing-service/internal/kafka"
	"github.com/creatorlane/billing-service/internal/metrics"
	"github.com/creatorlane/billing-service/internal/middleware"
	"github.com/creatorlane/billing-service/internal/repository"
	"github.com/creatorlane/billing-service/internal/service"
	"github.com/creatorlane/billing-service/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.New(logger.ParseLevel(cfg.Logging.Level))
	log.Infow("Billing service starting up...")

	if cfg.Auth.JWTSecret == "" {
		log.Warnw("JWT secret is not set, authenticated endpoints will reject all tokens")
	}
	if cfg.Stripe.APIKey == "" {
		log.Warnw("Stripe API key is not set")
	}

	if os.Getenv("APP_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Применяем миграции и подключаемся к базе данных
	if err := db.RunMigrations(cfg.Database.MigrationsURL, cfg.Database.DSN, log); err != nil {
		log.Fatalw("Failed to run migrations", "error", err)
	}

	dbClient, err := db.NewClient(cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Errorw("Error closing database connection", "error", err)
		}
	}()

	// Репозитории, при наличии Redis чтения подписок кешируются
	baseSubscriptionRepo := repository.NewPostgresSubscriptionRepository(dbClient.DB(), log)
	var subscriptionRepo repository.SubscriptionRepository = baseSubscriptionRepo
	var cacheInvalidator service.SubscriptionCacheInvalidator

	if cfg.Redis.Enabled {
		redisCache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		} else {
			cachedRepo := repository.NewCachedSubscriptionRepository(baseSubscriptionRepo, redisCache, log)
			subscriptionRepo = cachedRepo
			cacheInvalidator = cachedRepo
			defer func() {
				if err := redisCache.Close(); err != nil {
					log.Errorw("Error closing Redis connection", "error", err)
				}
			}()
		}
	}

	tierRepo := repository.NewPostgresTierRepository(dbClient.DB(), log)
	eventRepo := repository.NewPostgresWebhookEventRepository(dbClient.DB(), log)
	auditRepo := repository.NewPostgresSyncAuditRepository(dbClient.DB(), log)

	// Kafka producer, без брокеров события жизненного цикла не публикуются
	var producer kafka.SubscriptionProducer = kafka.NewNoOpProducer()
	if cfg.Kafka.Enabled {
		saramaProducer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		} else {
			producer = kafka.NewKafkaSubscriptionProducer(saramaProducer, log)
		}
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Errorw("Error closing Kafka producer", "error", err)
		}
	}()

	// Метрики Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	billingMetrics := metrics.NewBillingMetrics(registry, log)

	// Клиент Stripe и шлюз подписок
	stripeClient := stripe.NewClient(stripe.Config{
		APIKey:     cfg.Stripe.APIKey,
		WebhookKey: cfg.Stripe.WebhookSecret,
	}, log)
	gateway := stripe.NewGateway(stripeClient)
	verifier := stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret, log)

	// Сервисы
	subscriptionSvc := service.NewSubscriptionService(
		subscriptionRepo, tierRepo, gateway, producer, billingMetrics,
		cfg.Billing.PlatformFeeRate, log)
	webhookSvc := service.NewWebhookService(subscriptionRepo, eventRepo, cacheInvalidator, producer, billingMetrics, log)
	reconciliationSvc := service.NewReconciliationService(subscriptionRepo, auditRepo, gateway, billingMetrics, log)
	statsSvc := service.NewStatsService(subscriptionRepo, log)

	// HTTP слой
	validator := &middleware.DefaultTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)}
	authMW := middleware.NewJWTMiddleware(validator, log)

	router := rest.SetupRouter(rest.Handlers{
		Subscription:   handlers.NewSubscriptionHandler(subscriptionSvc, log),
		Webhook:        handlers.NewWebhookHandler(verifier, webhookSvc, log),
		Stats:          handlers.NewStatsHandler(statsSvc, log),
		Reconciliation: handlers.NewReconciliationHandler(reconciliationSvc, log),
		Health:         handlers.NewHealthHandler(dbClient.DB()),
	}, authMW, registry, log)

	server := rest.NewServer(router, cfg, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// Периодическая сверка леджера с процессором
	go runReconciliationLoop(ctx, reconciliationSvc, cfg.Billing.ReconciliationInterval, log)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}

	log.Infow("Billing service stopped")
}

// runReconciliationLoop запускает сверку по таймеру до отмены контекста
func runReconciliationLoop(ctx context.Context, svc service.ReconciliationService, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		log.Infow("Reconciliation loop disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infow("Reconciliation loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			log.Infow("Reconciliation loop stopped")
			return
		case <-ticker.C:
			if _, err := svc.Run(ctx); err != nil {
				log.Errorw("Scheduled reconciliation failed", "error", err)
			}
		}
	}
}
