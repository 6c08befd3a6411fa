// Payment Service — приём PIX платежей для подписок, маркетплейса и воронок.
// HTTP API создаёт платежи и принимает вебхуки провайдеров, OutboxWorker
// публикует смены статуса в payment.events, consumer трекинга передаёт их в UTMify.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"example.com/funnel-payments/pkg/config"
	dbpkg "example.com/funnel-payments/pkg/db"
	"example.com/funnel-payments/pkg/healthcheck"
	"example.com/funnel-payments/pkg/jwt"
	"example.com/funnel-payments/pkg/kafka"
	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/pkg/metrics"
	"example.com/funnel-payments/pkg/outbox"
	"example.com/funnel-payments/pkg/tracing"
	"example.com/funnel-payments/services/payment/internal/client/mercadopago"
	"example.com/funnel-payments/services/payment/internal/client/pixgateway"
	"example.com/funnel-payments/services/payment/internal/client/telegram"
	"example.com/funnel-payments/services/payment/internal/client/utmify"
	"example.com/funnel-payments/services/payment/internal/handler"
	"example.com/funnel-payments/services/payment/internal/middleware"
	"example.com/funnel-payments/services/payment/internal/repository"
	"example.com/funnel-payments/services/payment/internal/service"
	"example.com/funnel-payments/services/payment/migrations"
)

// trackingMaxRetries — повторы обработки события трекинга перед отправкой в DLQ.
const trackingMaxRetries = 3

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Pretty: cfg.App.LogPretty,
	})

	log := logger.With().Str("service", handler.ServiceName).Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Str("addr", cfg.HTTP.Addr()).
		Msg("Запуск Payment Service")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    handler.ServiceName,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Environment:    cfg.App.Env,
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	if cfg.App.MigrateOnStart {
		if err := dbpkg.MigrateUp(migrations.FS, ".", cfg.MySQL.MigrateURL()); err != nil {
			log.Fatal().Err(err).Msg("Ошибка применения миграций")
		}
	}

	db, err := dbpkg.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	rdb, err := dbpkg.ConnectRedis(context.Background(), cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к Redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Redis")
		}
	}()
	log.Info().Msg("Подключение к Redis установлено")

	checks := []healthcheck.Check{
		healthcheck.MySQL(db),
		healthcheck.Redis(rdb),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		checks = append(checks, healthcheck.Kafka(cfg.Kafka.Brokers))
	}
	readinessCheck := healthcheck.Composite(checks...)

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	var metricsWg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			handler.ServiceName,
			metrics.WithReadinessCheck(metrics.ReadinessChecker(readinessCheck)),
		)
		metricsWg.Add(1)
		go func() {
			defer metricsWg.Done()
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Инициализация бизнес-логики ===

	paymentRepo := repository.NewPaymentRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	entitlementRepo := repository.NewEntitlementRepository(db)
	integrationRepo := repository.NewIntegrationRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	trackingRepo := repository.NewTrackingRepository(db)

	gatewayClient := pixgateway.New(pixgateway.Config{
		BaseURL:     cfg.PixGateway.BaseURL,
		SecretKey:   cfg.PixGateway.SecretKey,
		PostbackURL: cfg.PixGateway.PostbackURL,
		Timeout:     cfg.PixGateway.Timeout,
	}, nil)
	mercadoPagoClient := mercadopago.New(mercadopago.Config{
		BaseURL: cfg.MercadoPago.BaseURL,
		Timeout: cfg.MercadoPago.Timeout,
	}, nil)
	telegramClient := telegram.New(telegram.Config{
		APIURL:  cfg.Telegram.APIURL,
		Timeout: cfg.Telegram.Timeout,
	}, nil)
	utmifyClient := utmify.New(utmify.Config{
		BaseURL: cfg.Utmify.BaseURL,
		Timeout: cfg.Utmify.Timeout,
	})

	dispatcher := service.NewDispatcher(catalogRepo, entitlementRepo, telegramClient)

	initiationService := service.NewInitiationService(
		paymentRepo,
		catalogRepo,
		integrationRepo,
		gatewayClient,
		mercadoPagoClient,
		dispatcher,
		service.NewRedisIdempotency(rdb),
		service.InitiationConfig{
			InventoryHoldTTL:           cfg.Inventory.HoldTTL,
			MercadoPagoNotificationURL: cfg.MercadoPago.NotificationURL,
		},
	)
	reconciliationService := service.NewReconciliationService(
		paymentRepo,
		catalogRepo,
		integrationRepo,
		mercadoPagoClient,
		dispatcher,
	)
	reminderSweeper := service.NewReminderSweeper(reminderRepo, catalogRepo, telegramClient, service.ReminderConfig{
		DefaultMinutes: cfg.Reminder.DefaultMinutes,
		BatchSize:      cfg.Reminder.BatchSize,
	})
	trackingRelay := service.NewTrackingRelay(paymentRepo, integrationRepo, trackingRepo, utmifyClient, service.TrackingConfig{
		Platform: cfg.Utmify.Platform,
		IsTest:   cfg.Utmify.IsTest,
	})

	// === HTTP ===

	jwtManager, err := jwt.NewManager(jwt.Config{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания JWT Manager")
	}

	var rateLimitMW *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimitMW = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			Redis:  rdb,
			Limit:  cfg.RateLimit.RequestsLimit,
			Window: cfg.RateLimit.Window,
		})
	}

	router := handler.NewRouter(handler.RouterConfig{
		Initiator:      initiationService,
		Reconciler:     reconciliationService,
		Tracker:        trackingRelay,
		Reminders:      reminderSweeper,
		AuthMW:         middleware.NewAuthMiddleware(jwtManager),
		RateLimitMW:    rateLimitMW,
		ReadinessCheck: handler.ReadinessChecker(readinessCheck),
		Debug:          cfg.IsDevelopment(),
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workersWg sync.WaitGroup // ожидание фоновых воркеров при shutdown

	// runWorker запускает фоновую задачу с recover.
	runWorker := func(name string, fn func()) {
		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("worker", name).Msg("Паника в фоновом воркере")
				}
			}()
			fn()
		}()
	}

	// === Kafka: outbox → payment.events → UTMify ===

	var kafkaProducer *kafka.Producer
	var trackingConsumer *kafka.Consumer

	if len(cfg.Kafka.Brokers) > 0 {
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Инициализация Kafka")

		if err := kafka.EnsureTopics(cfg.Kafka.Brokers, kafka.DefaultTopics()); err != nil {
			log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
		}

		kafkaCfg := kafka.Config{Brokers: cfg.Kafka.Brokers, ConsumerGroup: cfg.Kafka.ConsumerGroup}

		kafkaProducer, err = kafka.NewProducer(kafkaCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
		}

		trackingConsumer, err = kafka.NewConsumer(kafkaCfg, kafka.TopicPaymentEvents, cfg.Kafka.ConsumerGroup)
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Kafka Consumer")
		}
		trackingConsumer.SetDLQProducer(kafkaProducer)

		outboxWorker := outbox.NewWorker(outbox.NewRepository(db), kafkaProducer, outbox.DefaultWorkerConfig())
		runWorker("outbox", func() { outboxWorker.Run(ctx) })

		runWorker("tracking", func() {
			log.Info().Msg("Запуск consumer трекинга")
			err := trackingConsumer.ConsumeWithRetry(ctx, trackingRelay.HandleEvent, trackingMaxRetries)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Ошибка consumer трекинга")
			}
		})

		log.Info().Msg("Outbox Worker и consumer трекинга запущены")
	} else {
		log.Warn().Msg("Kafka не настроена — события трекинга не публикуются")
	}

	// === Напоминания по расписанию ===

	if cfg.Reminder.SweepInterval > 0 {
		runWorker("reminders", func() { reminderSweeper.Run(ctx, cfg.Reminder.SweepInterval) })
	}

	// === Запуск HTTP сервера ===

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP сервер запущен")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Ошибка HTTP сервера")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Сначала перестаём принимать запросы, затем останавливаем воркеры
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}

	cancel()
	workersWg.Wait()

	if trackingConsumer != nil {
		if err := trackingConsumer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Consumer")
		}
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
		}
	}

	if err := dbpkg.CloseMySQL(db); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия MySQL")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
		metricsWg.Wait()
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Payment Service остановлен")
}
