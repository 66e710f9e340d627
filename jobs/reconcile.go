package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	jobmetrics "github.com/odyssey-erp/odyssey-campus/internal/jobs"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// Reconciler recounts votes for one or many elections.
type Reconciler interface {
	Reconcile(ctx context.Context, electionID string, repair bool) (elections.ReconcileReport, error)
	ReconcileAll(ctx context.Context, status elections.Status, repair bool) ([]elections.ReconcileReport, error)
}

// ReconcileJob handles TaskVotesReconcile.
type ReconcileJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewReconcileJob wires dependencies for the reconcile handler.
func NewReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle decodes the payload and recounts the selected elections.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("reconcile payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskVotesReconcile)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Bool("repair", payload.Repair))
	start := time.Now()

	var reports []elections.ReconcileReport
	if payload.ElectionID != "" {
		report, err := j.Reconciler.Reconcile(ctx, payload.ElectionID, payload.Repair)
		if errors.Is(err, shared.ErrNotFound) {
			logger.Warn("reconcile unknown election", slog.String("election_id", payload.ElectionID))
			return fmt.Errorf("reconcile %s: %w: %w", payload.ElectionID, err, asynq.SkipRetry)
		}
		if err != nil {
			logger.Error("reconcile election", slog.String("election_id", payload.ElectionID), slog.Any("error", err))
			return err
		}
		reports = append(reports, report)
	} else {
		for _, status := range []elections.Status{elections.StatusActive, elections.StatusCompleted} {
			batch, err := j.Reconciler.ReconcileAll(ctx, status, payload.Repair)
			reports = append(reports, batch...)
			if err != nil {
				logger.Error("reconcile elections", slog.String("status", string(status)), slog.Any("error", err))
				j.countDrift(reports)
				return err
			}
		}
	}

	drifted := j.countDrift(reports)
	logger.Info("reconcile finished",
		slog.Int("elections", len(reports)),
		slog.Int("drifted", drifted),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ReconcileJob) countDrift(reports []elections.ReconcileReport) int {
	drifted := 0
	for _, r := range reports {
		if len(r.Drifts) == 0 {
			continue
		}
		drifted++
		j.Metrics.AddDrift(r.ElectionID, len(r.Drifts))
	}
	return drifted
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskVotesReconcile))
	}
	return slog.Default().With(slog.String("job", TaskVotesReconcile))
}
