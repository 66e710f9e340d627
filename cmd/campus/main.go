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

	"github.com/odyssey-erp/odyssey-campus/internal/app"
	audithttp "github.com/odyssey-erp/odyssey-campus/internal/audit/http"
	"github.com/odyssey-erp/odyssey-campus/internal/auth"
	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	"github.com/odyssey-erp/odyssey-campus/internal/elections/gql"
	jobmetrics "github.com/odyssey-erp/odyssey-campus/internal/jobs"
	"github.com/odyssey-erp/odyssey-campus/internal/observability"
	"github.com/odyssey-erp/odyssey-campus/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/seed"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
	"github.com/odyssey-erp/odyssey-campus/jobs"
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
	httpx.Debug = !cfg.IsProduction()
	metrics := observability.NewMetrics()

	opts := app.ServicesOptions{VoteObserver: metrics}
	now := time.Now().UTC()
	if cfg.StoreDriver == app.StoreDriverMemory {
		users, err := seed.Users(now)
		if err != nil {
			logger.Error("seed users", slog.Any("error", err))
			os.Exit(1)
		}
		opts.Users = users
	}

	svcs, err := app.BuildServices(ctx, cfg, logger, opts)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer svcs.Close(logger)

	if svcs.Memory != nil {
		election, err := seed.Elections(ctx, svcs.Elections, now)
		if err != nil {
			logger.Error("seed elections", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("memory store seeded", slog.String("election_id", election.ID), slog.Time("start_at", election.StartAt))
	}

	sessionManager := shared.NewSessionManager(svcs.Redis, "campus_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	graphqlHandler, err := gql.NewHandler(svcs.Elections)
	if err != nil {
		logger.Error("build graphql schema", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("close inspector", slog.Any("error", err))
		}
	}()

	rbacMiddleware := rbac.Middleware{Logger: logger}
	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		RBACMiddleware:   rbacMiddleware,
		AuthHandler:      auth.NewHandler(logger, svcs.Auth, sessionManager, csrfManager),
		ElectionsHandler: elections.NewHandler(logger, svcs.Elections),
		AuditHandler:     audithttp.NewHandler(logger, svcs.Audit, rbacMiddleware),
		GraphQLHandler:   graphqlHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	// The memory store lives in this process, so its jobs must too.
	if svcs.Memory != nil {
		worker, err := app.NewElectionsWorker(cfg, logger, svcs.Elections, jobmetrics.NewMetrics(metrics.Registerer()))
		if err != nil {
			logger.Error("init worker", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker run", slog.Any("error", err))
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
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
