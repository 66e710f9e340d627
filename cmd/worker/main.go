package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-campus/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-campus/internal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	if cfg.StoreDriver == app.StoreDriverMemory {
		logger.Error("worker needs a shared store; the memory driver runs jobs inside cmd/campus")
		os.Exit(1)
	}

	svcs, err := app.BuildServices(ctx, cfg, logger, app.ServicesOptions{})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer svcs.Close(logger)

	worker, err := app.NewElectionsWorker(cfg, logger, svcs.Elections, jobmetrics.NewMetrics(nil))
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("sync_cron", cfg.StatusSyncCron), slog.String("reconcile_cron", cfg.ReconcileCron))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
