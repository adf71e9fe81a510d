package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"payment-engine/internal/config"
	"payment-engine/internal/events"
	"payment-engine/internal/gateway"
	"payment-engine/internal/handlers"
	"payment-engine/internal/locks"
	"payment-engine/internal/middleware"
	"payment-engine/internal/models"
	"payment-engine/internal/repository"
	"payment-engine/internal/services"
	"payment-engine/internal/workers"
)

func main() {
	// Load .env in development; missing file is fine
	_ = godotenv.Load()

	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	db, err := connectDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.LedgerAccount{},
		&models.LedgerEntry{},
		&models.PaymentOrder{},
		&models.FundHold{},
		&models.Payout{},
		&models.Refund{},
		&models.Subscription{},
		&models.ConnectedAccount{},
		&models.WebhookEvent{},
		&models.ReconciliationRun{},
		&models.ReconciliationDiscrepancy{},
	); err != nil {
		log.Printf("Warning: Auto-migration failed: %v", err)
	}

	// Seed platform ledger accounts (idempotent)
	if err := repository.SeedPlatformAccounts(db, "USD"); err != nil {
		log.Fatalf("Failed to seed platform accounts: %v", err)
	}

	// Redis for distributed locks
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	locker := services.NewRedisLocker(locks.NewManager(redisClient))

	// Payment processor adapter
	processorCfg := gateway.Config{
		Processor:     gateway.ProcessorType(cfg.Processor),
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	}
	if processorCfg.Processor == gateway.ProcessorRazorpay {
		processorCfg.SecretKey = cfg.RazorpayKeySecret
		processorCfg.KeyID = cfg.RazorpayKeyID
		processorCfg.WebhookSecret = cfg.RazorpayWebhookSecret
	}
	processor, err := gateway.NewAdapter(processorCfg)
	if err != nil {
		log.Fatalf("Failed to initialize payment processor: %v", err)
	}

	// Repositories
	ledgerRepo := repository.NewLedgerRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	reconRepo := repository.NewReconciliationRepository(db)

	// NATS events publisher; the engine runs without it
	var publisher services.EventPublisher
	natsPublisher, err := events.NewPublisher(cfg.NATSURL, logger)
	if err != nil {
		log.Printf("WARNING: Failed to initialize events publisher: %v (events won't be published)", err)
	} else {
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	// Services
	ledgerService := services.NewLedgerService(ledgerRepo, logger)
	strategyDeps := services.StrategyDeps{
		Orders:        orderRepo,
		Payouts:       payoutRepo,
		Accounts:      accountRepo,
		Subscriptions: subRepo,
		Ledger:        ledgerService,
		Processor:     processor,
		Locker:        locker,
		Publisher:     publisher,
		FeePercent:    cfg.PlatformFeePercent,
		HoldPeriod:    cfg.HoldPeriod,
		Logger:        logger,
	}
	directStrategy := services.NewDirectStrategy(strategyDeps)
	escrowStrategy := services.NewEscrowStrategy(strategyDeps)
	subscriptionStrategy := services.NewSubscriptionStrategy(strategyDeps)

	orchestrator := services.NewPaymentOrchestrator(orderRepo, logger,
		directStrategy, escrowStrategy, subscriptionStrategy)
	payoutService := services.NewPayoutService(payoutRepo, orderRepo, accountRepo, ledgerService, processor, locker, publisher, logger)
	refundService := services.NewRefundService(refundRepo, orderRepo, payoutRepo, ledgerService, processor, locker, publisher, logger)
	webhookService := services.NewWebhookService(webhookRepo, processor, orchestrator, payoutService, refundService, subscriptionStrategy, accountRepo, subRepo, logger)
	reconciliationService := services.NewReconciliationService(reconRepo, orderRepo, payoutRepo, orchestrator, payoutService, processor, locker, publisher, logger)

	// Handlers
	paymentHandler := handlers.NewPaymentHandler(orchestrator, escrowStrategy, refundService, ledgerService)
	payoutHandler := handlers.NewPayoutHandler(payoutService)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionStrategy, subRepo)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	reconciliationHandler := handlers.NewReconciliationHandler(reconciliationService, reconRepo)

	// Background jobs
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := workers.NewScheduler(logger, workers.Registry(workers.JobDeps{
		Payouts:        payoutService,
		Escrow:         escrowStrategy,
		Webhooks:       webhookService,
		Reconciliation: reconciliationService,
		Orders:         orderRepo,
		PayoutStore:    payoutRepo,
		Accounts:       accountRepo,
		Logger:         logger,
	})...)
	scheduler.Start(ctx)

	router := setupRouter(cfg, logger, paymentHandler, payoutHandler, subscriptionHandler, ledgerHandler, webhookHandler, reconciliationHandler)

	log.Printf("Payment engine starting on port %s (env: %s)", cfg.Port, cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// connectDatabase establishes a connection to the database
func connectDatabase(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// Duplicate key violations must surface as gorm.ErrDuplicatedKey
		// for ledger idempotency handling.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// setupRouter configures the HTTP router
func setupRouter(cfg *config.Config, logger *logrus.Logger, paymentHandler *handlers.PaymentHandler, payoutHandler *handlers.PayoutHandler, subscriptionHandler *handlers.SubscriptionHandler, ledgerHandler *handlers.LedgerHandler, webhookHandler *handlers.WebhookHandler, reconciliationHandler *handlers.ReconciliationHandler) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	rateLimits := middleware.NewRateLimits()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Request-ID")
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowOrigins = nil
	}
	router.Use(cors.New(corsConfig))

	router.Use(middleware.ValidateRequest())

	// Health check (no rate limiting)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "payment-engine",
		})
	})

	// Webhooks sit outside /api/v1: signature-verified, high burst limit
	router.POST("/webhooks/processor",
		middleware.RateLimitMiddleware(rateLimits.Webhook),
		webhookHandler.HandleWebhook)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(rateLimits.APIGeneral))
	{
		payments := v1.Group("/payments")
		{
			payments.POST("",
				middleware.RateLimitMiddleware(rateLimits.CreatePayment),
				paymentHandler.CreatePayment)
			payments.GET("/:id", paymentHandler.GetPayment)
			payments.GET("/:id/ledger", paymentHandler.GetLedgerEntries)
			payments.POST("/:id/release", paymentHandler.ReleasePayment)
			payments.GET("/:id/refunds", paymentHandler.ListRefunds)
			payments.POST("/:id/refunds",
				middleware.RateLimitMiddleware(rateLimits.Refund),
				paymentHandler.RequestRefund)
		}

		payouts := v1.Group("/payouts")
		{
			payouts.GET("/:id", payoutHandler.GetPayout)
			payouts.POST("/:id/execute", payoutHandler.ExecutePayout)
			payouts.POST("/:id/retry", payoutHandler.RetryPayout)
			payouts.POST("/:id/cancel", payoutHandler.CancelPayout)
		}

		subscriptions := v1.Group("/subscriptions")
		{
			subscriptions.POST("", subscriptionHandler.CreateSubscription)
			subscriptions.GET("/:id", subscriptionHandler.GetSubscription)
			subscriptions.POST("/:id/cancel", subscriptionHandler.CancelSubscription)
		}

		ledger := v1.Group("/ledger")
		{
			ledger.GET("/system/:type/balance", ledgerHandler.GetSystemBalance)
			ledger.GET("/users/:ownerId/balance", ledgerHandler.GetUserBalance)
		}

		reconciliation := v1.Group("/reconciliation")
		{
			reconciliation.POST("/runs", reconciliationHandler.TriggerRun)
			reconciliation.GET("/runs", reconciliationHandler.ListRuns)
			reconciliation.GET("/runs/:id", reconciliationHandler.GetRun)
			reconciliation.GET("/discrepancies", reconciliationHandler.ListUnreviewed)
		}
	}

	return router
}
