package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/approvals"
	"github.com/ledgerline/ledgerline/internal/directory"
	"github.com/ledgerline/ledgerline/internal/docstore"
	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/forwarding"
	"github.com/ledgerline/ledgerline/internal/gateway"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/payments"
	"github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
	"github.com/ledgerline/ledgerline/jobs"
)

func main() {
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
		logger.Warn("redis unavailable, approver cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	dispatcher := jobs.NewDispatcher(asynqClient, logger)

	auditLogger := shared.NewAuditLogger(pool)
	dir := directory.NewPG(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)

	documentRepo := documents.NewRepository(pool)
	documentService := documents.NewService(documentRepo, ledgerService, dir)
	documentService.SetAudit(auditLogger)
	documentService.SetNotifier(dispatcher)
	documentService.SetSearchSync(dispatcher)
	if cfg.DocStoreURL != "" {
		documentService.SetDocumentStore(docstore.NewClient(cfg.DocStoreURL))
	}

	approverCache := approvals.NewApproverCache(dir, redisClient, cfg.ApproverCacheTTL)
	approvalRepo := approvals.NewRepository(pool)
	approvalService := approvals.NewService(approvalRepo, documentService, approverCache)
	approvalService.SetNotifier(dispatcher)

	paymentRepo := payments.NewRepository(pool)
	paymentService := payments.NewService(paymentRepo, ledgerService)
	paymentService.SetAudit(auditLogger)
	paymentService.SetGatewayTimeout(cfg.GatewayTimeout)
	if cfg.GatewayURL != "" {
		paymentService.SetGateway(gateway.NewClient(cfg.GatewayURL))
	}

	forwardingRepo := forwarding.NewRepository(pool)
	forwardingService := forwarding.NewService(forwardingRepo, ledgerService)
	forwardingService.SetAudit(auditLogger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledger.NewHandler(logger, ledgerService),
		DocumentHandler:   documents.NewHandler(logger, documentService),
		ApprovalHandler:   approvals.NewHandler(logger, approvalService),
		PaymentHandler:    payments.NewHandler(logger, paymentService),
		ForwardingHandler: forwarding.NewHandler(logger, forwardingService),
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
