package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/accountclient"
	"github.com/harborbank/transaction-engine/internal/cache"
	"github.com/harborbank/transaction-engine/internal/command"
	"github.com/harborbank/transaction-engine/internal/config"
	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/events"
	"github.com/harborbank/transaction-engine/internal/models"
	"github.com/harborbank/transaction-engine/internal/queue"
	"github.com/harborbank/transaction-engine/internal/repository"
	"github.com/harborbank/transaction-engine/internal/validation"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load(logger)

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

	jobs, err := processingQueue.Consume(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to start consuming")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("processor started")
		for job := range jobs {
			_, err := processingSvc.Process(ctx, job.TransactionID)
			if err != nil && errs.Retryable(err) {
				logger.WithError(err).
					WithField("transactionId", job.TransactionID).
					Warn("processing hit a transient failure, requeueing")
				if err := job.Requeue(); err != nil {
					logger.WithError(err).Error("failed to requeue job")
				}
				continue
			}
			if err != nil {
				// The record already carries the failure, nothing
				// another delivery could change.
				logger.WithError(err).
					WithField("transactionId", job.TransactionID).
					Error("processing failed")
			}
			if err := job.Ack(); err != nil {
				logger.WithError(err).Error("failed to ack job")
			}
		}
		logger.Info("processor stopped")
	}()

	auditor := events.NewSubscriber(redis.Client, events.SubscriberConfig{
		Group:    "transaction-audit",
		Consumer: "processor",
		Stream:   events.TransactionEventsStream,
		Handler:  auditTransactionEvent(logger),
	}, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := auditor.Start(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("audit subscriber exited")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	wg.Wait()
}

// auditTransactionEvent writes one structured audit line per lifecycle
// event so the stream has at least one consumer trimming its backlog.
func auditTransactionEvent(logger *logrus.Logger) events.Handler {
	return func(_ context.Context, event events.Event) error {
		raw, err := json.Marshal(event.Data)
		if err != nil {
			return err
		}
		var payload events.TransactionEvent
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{
			"event":           event.Type,
			"transactionId":   payload.TransactionID,
			"referenceNumber": payload.ReferenceNumber,
			"type":            payload.Type,
			"status":          payload.Status,
			"amount":          payload.Amount,
			"actingUser":      payload.ActingUser,
		}).Info("transaction event")
		return nil
	}
}
