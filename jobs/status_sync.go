package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	jobmetrics "github.com/odyssey-erp/odyssey-campus/internal/jobs"
)

// StatusSyncer advances election statuses by the clock.
type StatusSyncer interface {
	SyncStatuses(ctx context.Context, now time.Time) (elections.SyncReport, error)
}

// StatusSyncJob handles TaskElectionsSyncStatus.
type StatusSyncJob struct {
	Syncer  StatusSyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStatusSyncJob wires dependencies for the status sync handler.
func NewStatusSyncJob(syncer StatusSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatusSyncJob {
	return &StatusSyncJob{
		Syncer:  syncer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs one synchronisation pass.
func (j *StatusSyncJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Syncer == nil {
		return errors.New("status sync: handler not configured")
	}
	tracker := j.Metrics.Track(TaskElectionsSyncStatus)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := j.Syncer.SyncStatuses(ctx, j.clock())
	if err != nil {
		j.logger().Error("sync election statuses", slog.Any("error", err))
		return err
	}
	if len(report.Activated)+len(report.Completed) > 0 {
		j.logger().Info("status sync applied",
			slog.Any("activated", report.Activated),
			slog.Any("completed", report.Completed))
	}
	return nil
}

func (j *StatusSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskElectionsSyncStatus))
	}
	return slog.Default().With(slog.String("job", TaskElectionsSyncStatus))
}
