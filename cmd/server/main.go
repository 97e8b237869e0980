package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/accountclient"
	"github.com/harborbank/transaction-engine/internal/cache"
	"github.com/harborbank/transaction-engine/internal/command"
	"github.com/harborbank/transaction-engine/internal/config"
	"github.com/harborbank/transaction-engine/internal/events"
	"github.com/harborbank/transaction-engine/internal/handler"
	"github.com/harborbank/transaction-engine/internal/middleware"
	"github.com/harborbank/transaction-engine/internal/models"
	"github.com/harborbank/transaction-engine/internal/query"
	"github.com/harborbank/transaction-engine/internal/queue"
	"github.com/harborbank/transaction-engine/internal/repository"
	"github.com/harborbank/transaction-engine/internal/validation"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load(logger)
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("failed to ping database")
	}

	redis, err := cache.NewClient(cache.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.RedisDialTimeout,
		ReadTimeout:  cfg.RedisOpTimeout,
		WriteTimeout: cfg.RedisOpTimeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redis.Close()

	ledgerRepo, err := repository.NewLogRepository(cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to mongodb")
	}
	defer ledgerRepo.Close(context.Background())

	processingQueue, err := queue.NewProcessingQueue(cfg.AMQPURI, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to rabbitmq")
	}
	defer processingQueue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transactionRepo := repository.NewTransactionRepository(db, logger)
	categoryRepo := repository.NewCategoryRepository(db, logger)
	if err := transactionRepo.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to ensure transactions schema")
	}
	if err := categoryRepo.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to ensure categories schema")
	}

	accountCache := cache.NewViewCache[models.AccountInfo](redis.Client, cfg.AccountCacheTTL, logger)
	accounts := accountclient.NewResilient(
		accountclient.NewHTTPClient(cfg.AccountServiceURL, cfg.RequestTimeout, logger),
		accountclient.Policy{
			RetryMaxAttempts: cfg.RetryMaxAttempts,
			RetryInterval:    cfg.RetryInterval,
			BreakerThreshold: cfg.BreakerThreshold,
			BreakerCooldown:  cfg.BreakerCooldown,
			RateLimitPerSec:  cfg.RateLimitPerSec,
			RateLimitBurst:   cfg.RateLimitBurst,
		},
		accountCache,
		logger,
	)

	publisher := events.NewPublisher(redis.Client)
	validator := validation.NewService(logger)

	logService := command.NewLogService(ledgerRepo, logger)
	processingSvc := command.NewProcessingService(transactionRepo, accounts, logService, validator, publisher, logger)
	creationSvc := command.NewCreationService(transactionRepo, categoryRepo, accounts, validator, publisher, processingQueue, processingSvc, logger)
	categorySvc := command.NewCategoryService(categoryRepo, transactionRepo, logger)
	querySvc := query.NewService(transactionRepo, ledgerRepo, accounts, logger)

	if err := categorySvc.SeedSystemCategories(ctx); err != nil {
		logger.WithError(err).Fatal("failed to seed system categories")
	}

	transactionHandler := handler.NewTransactionHandler(newCommandFacade(creationSvc, processingSvc), querySvc, logger)
	categoryHandler := handler.NewCategoryHandler(categorySvc, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1", middleware.AuthMiddleware([]byte(cfg.JWTSecret)))
	{
		tx := v1.Group("/transactions")
		{
			tx.POST("", transactionHandler.CreateTransaction)
			tx.GET("", transactionHandler.ListTransactions)
			tx.GET("/:transactionId", transactionHandler.GetTransaction)
			tx.POST("/:transactionId/cancel", transactionHandler.CancelTransaction)
			tx.POST("/:transactionId/reverse", transactionHandler.ReverseTransaction)
		}
		v1.GET("/references/:referenceNumber", transactionHandler.GetTransactionByReference)
		v1.GET("/accounts/:accountNumber/transactions", transactionHandler.ListAccountTransactions)
		v1.GET("/accounts/:accountNumber/ledger", transactionHandler.ListAccountLedger)

		cat := v1.Group("/categories")
		{
			cat.POST("", categoryHandler.CreateCategory)
			cat.GET("", categoryHandler.ListCategories)
			cat.GET("/:categoryId", categoryHandler.GetCategory)
			cat.PUT("/:categoryId", categoryHandler.UpdateCategory)
			cat.DELETE("/:categoryId", categoryHandler.DeleteCategory)
		}
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("transaction engine starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("forced shutdown")
	}
}

// commandFacade joins creation and lifecycle operations behind the handler's
// commander interface.
type commandFacade struct {
	*command.CreationService
	*command.ProcessingService
}

func newCommandFacade(creation *command.CreationService, processing *command.ProcessingService) *commandFacade {
	return &commandFacade{CreationService: creation, ProcessingService: processing}
}
