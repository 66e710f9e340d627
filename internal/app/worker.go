package app

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	jobmetrics "github.com/odyssey-erp/odyssey-campus/internal/jobs"
	"github.com/odyssey-erp/odyssey-campus/jobs"
)

// NewElectionsWorker registers the status sync and reconcile handlers plus
// their cron entries against svc.
func NewElectionsWorker(cfg *Config, logger *slog.Logger, svc *elections.Service, metrics *jobmetrics.Metrics) (*jobs.Worker, error) {
	syncJob := jobs.NewStatusSyncJob(svc, logger, metrics)
	reconcileJob := jobs.NewReconcileJob(svc, logger, metrics)

	reconcileTask, err := jobs.NewReconcileTask(jobs.ReconcilePayload{})
	if err != nil {
		return nil, fmt.Errorf("build reconcile task: %w", err)
	}

	retry := []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}
	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskElectionsSyncStatus, Handler: syncJob.Handle},
			{Type: jobs.TaskVotesReconcile, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StatusSyncCron, Task: jobs.NewSyncStatusTask(), Options: retry},
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: retry},
		},
	})
}
