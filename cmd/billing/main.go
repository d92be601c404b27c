package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/backoffice-billing/internal/app"
	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/integration"
	"github.com/odyssey-erp/backoffice-billing/internal/inventory"
	"github.com/odyssey-erp/backoffice-billing/internal/ledger"
	"github.com/odyssey-erp/backoffice-billing/internal/observability"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/cache"
	"github.com/odyssey-erp/backoffice-billing/internal/platform/db"
	"github.com/odyssey-erp/backoffice-billing/internal/shared"
	"github.com/odyssey-erp/backoffice-billing/jobs"
)

func main() {
	_ = godotenv.Load()
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	txOpts := cfg.TxOptions()

	ledgerService := ledger.NewService(ledger.NewRepository(dbpool, txOpts), auditLogger, logger)
	inventoryRepo := inventory.NewRepository(dbpool, txOpts, integration.HandlerFactory(ledgerService, logger))
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger)

	uow := integration.NewUnitOfWork(dbpool, txOpts, ledgerService, logger)
	billingService := billing.NewService(uow, inventoryService, auditLogger, billing.Config{
		AllowInvoiceFromSentQuote: cfg.AllowInvoiceFromSentQuote,
	}, logger).WithMetrics(metrics)

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, document locks disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		billingService.WithLocker(shared.NewLocker(redisClient, cfg.LockConfig(), logger))
	}

	inspector := asynq.NewInspector(cfg.RedisOptions().AsynqOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		BillingHandler:   billing.NewHandler(logger, billingService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		LedgerHandler:    ledger.NewHandler(logger, ledgerService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Ready: func(r *http.Request) error {
			return dbpool.Ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
