package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bodega-erp/bodega-erp/internal/app"
	"github.com/bodega-erp/bodega-erp/internal/catalog"
	"github.com/bodega-erp/bodega-erp/internal/entries"
	"github.com/bodega-erp/bodega-erp/internal/ledger"
	"github.com/bodega-erp/bodega-erp/internal/platform/cache"
	"github.com/bodega-erp/bodega-erp/internal/platform/db"
	"github.com/bodega-erp/bodega-erp/internal/reports"
	"github.com/bodega-erp/bodega-erp/internal/shared"
	"github.com/bodega-erp/bodega-erp/internal/transfers"
	"github.com/bodega-erp/bodega-erp/internal/users"
	"github.com/bodega-erp/bodega-erp/internal/withdrawals"
	"github.com/bodega-erp/bodega-erp/jobs"
)

func main() {
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reports served uncached", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, catalogService, auditLogger, idempotencyStore)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	entriesRepo := entries.NewRepository(pool)
	entriesService := entries.NewService(entriesRepo, ledgerService, auditLogger)
	entriesHandler := entries.NewHandler(logger, entriesService)

	transfersRepo := transfers.NewRepository(pool)
	transfersService := transfers.NewService(transfersRepo, ledgerService, auditLogger)
	transfersHandler := transfers.NewHandler(logger, transfersService)

	withdrawalsRepo := withdrawals.NewRepository(pool)
	withdrawalsService := withdrawals.NewService(withdrawalsRepo, ledgerService, auditLogger)
	withdrawalsHandler := withdrawals.NewHandler(logger, withdrawalsService)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	var reportsCache *reports.Cache
	if redisClient != nil {
		reportsCache = reports.NewCache(redisClient, 10*time.Minute)
	}
	reportsService := reports.NewService(ledgerService, catalogService, reportsCache)
	reportsHandler := reports.NewHandler(logger, reportsService)
	ledgerService.SetInvalidator(reportsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledgerHandler,
		CatalogHandler:     catalogHandler,
		EntriesHandler:     entriesHandler,
		TransfersHandler:   transfersHandler,
		WithdrawalsHandler: withdrawalsHandler,
		UsersHandler:       usersHandler,
		ReportsHandler:     reportsHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
