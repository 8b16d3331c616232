package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/groupcart/settlement-engine/internal/config"
	"github.com/groupcart/settlement-engine/internal/handler"
	"github.com/groupcart/settlement-engine/internal/infra/postgresql"
	"github.com/groupcart/settlement-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/groupcart/settlement-engine/internal/infra/redis"
	"github.com/groupcart/settlement-engine/internal/moderation"
	"github.com/groupcart/settlement-engine/internal/notify"
	"github.com/groupcart/settlement-engine/internal/observability"
	"github.com/groupcart/settlement-engine/internal/payment"
	"github.com/groupcart/settlement-engine/internal/queue"
	"github.com/groupcart/settlement-engine/internal/repository"
	"github.com/groupcart/settlement-engine/internal/service"
	"github.com/groupcart/settlement-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.PaymentRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	processor, err := payment.NewHTTPGateway(cfg.PaymentGatewayURL)
	if err != nil {
		logger.Fatal("payment gateway initialization failed", zap.Error(err))
	}

	notifier, err := notify.NewWebhookNotifier(cfg.NotifyWebhookURL)
	if err != nil {
		logger.Fatal("notifier initialization failed", zap.Error(err))
	}

	var suspensions moderation.SuspensionChecker = moderation.AllowAll{}
	if cfg.ModerationServiceURL != "" {
		checker, err := moderation.NewHTTPChecker(cfg.ModerationServiceURL)
		if err != nil {
			logger.Fatal("moderation checker initialization failed", zap.Error(err))
		}
		suspensions = checker
	}

	orderRepo := repository.NewGormOrderRepo(db)
	batchRepo := repository.NewGormBatchRepo(db)
	errandRepo := repository.NewGormErrandRepo(db)
	applicationRepo := repository.NewGormApplicationRepo(db)
	ratingRepo := repository.NewGormRatingRepo(db)
	creditRepo := repository.NewGormCreditRepo(db)
	withdrawalRepo := repository.NewGormWithdrawalRepo(db)
	taskRepo := repository.NewGormTaskRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	metrics := observability.NewMetrics()

	escrowService, err := service.NewEscrowService(orderRepo, taskRepo, publisher, cfg.SettlementMaxRetries, logger)
	if err != nil {
		logger.Fatal("escrow service initialization failed", zap.Error(err))
	}
	escrowService.SetMetrics(metrics)

	batchService, err := service.NewBatchService(batchRepo, orderRepo, escrowService, processor, suspensions, notifier, logger)
	if err != nil {
		logger.Fatal("batch service initialization failed", zap.Error(err))
	}
	batchService.SetMetrics(metrics)

	creditService, err := service.NewCreditService(creditRepo, notifier, cfg.CreditExpiryDays, logger)
	if err != nil {
		logger.Fatal("credit service initialization failed", zap.Error(err))
	}
	creditService.SetMetrics(metrics)

	errandService, err := service.NewErrandService(errandRepo, applicationRepo, ratingRepo, creditService, suspensions, notifier, cfg.ActiveErrandLimit, logger)
	if err != nil {
		logger.Fatal("errand service initialization failed", zap.Error(err))
	}
	errandService.SetMetrics(metrics)

	walletService, err := service.NewWalletService(orderRepo, withdrawalRepo, notifier, cfg.MinimumWithdrawal, logger)
	if err != nil {
		logger.Fatal("wallet service initialization failed", zap.Error(err))
	}
	walletService.SetMetrics(metrics)

	worker, err := service.NewSettlementWorker(taskRepo, attemptRepo, orderRepo, consumer, processor, rateLimiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("settlement worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	retryScanner, err := service.NewRetryScanner(taskRepo, publisher, time.Duration(cfg.RetryScanIntervalSec)*time.Second, 0, logger)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	sweeper, err := service.NewDeadlineSweeper(batchRepo, batchService, time.Duration(cfg.DeadlineSweepIntervalSec)*time.Second, 0, logger)
	if err != nil {
		logger.Fatal("deadline sweeper initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterBatchRoutes(app, batchService, escrowService); err != nil {
		logger.Fatal("batch route registration failed", zap.Error(err))
	}
	if err := handler.RegisterErrandRoutes(app, errandService); err != nil {
		logger.Fatal("errand route registration failed", zap.Error(err))
	}
	if err := handler.RegisterCreditRoutes(app, creditService); err != nil {
		logger.Fatal("credit route registration failed", zap.Error(err))
	}
	if err := handler.RegisterWalletRoutes(app, walletService); err != nil {
		logger.Fatal("wallet route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("settlement-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		return worker.Start(gCtx)
	})
	g.Go(func() error {
		return retryScanner.Start(gCtx)
	})
	g.Go(func() error {
		return sweeper.Start(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("settlement-engine stopped with error", zap.Error(err))
	}

	logger.Info("settlement-engine stopped")
}
