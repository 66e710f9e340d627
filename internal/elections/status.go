package elections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// SyncReport summarises one status synchronisation pass.
type SyncReport struct {
	Activated []string
	Completed []string
}

// SyncStatuses opens upcoming elections whose start has passed and closes
// active elections whose end has passed, in that order, so an election whose
// whole window elapsed between passes ends up completed. Completed elections
// get their results cached.
func (s *Service) SyncStatuses(ctx context.Context, now time.Time) (SyncReport, error) {
	var report SyncReport
	for _, step := range []struct {
		from, to Status
		due      func(Election) bool
		out      *[]string
	}{
		{StatusUpcoming, StatusActive, func(e Election) bool { return !now.Before(e.StartAt) }, &report.Activated},
		{StatusActive, StatusCompleted, func(e Election) bool { return !now.Before(e.EndAt) }, &report.Completed},
	} {
		items, err := s.allWithStatus(ctx, step.from)
		if err != nil {
			return report, err
		}
		for _, e := range items {
			if !step.due(e) {
				continue
			}
			err := s.store.TransitionElection(ctx, e.ID, step.from, step.to, now)
			if errors.Is(err, shared.ErrInvalidState) {
				// moved concurrently
				continue
			}
			if err != nil {
				return report, fmt.Errorf("sync election %s: %w", e.ID, err)
			}
			*step.out = append(*step.out, e.ID)
			e.Status = step.to
			s.recordAudit(ctx, "", shared.AuditElectionStatus, "election", e.ID, map[string]any{"from": step.from, "to": step.to, "auto": true})
			s.afterTransition(ctx, e)
		}
	}
	if len(report.Activated)+len(report.Completed) > 0 {
		s.logger.Info("election statuses synced",
			slog.Int("activated", len(report.Activated)),
			slog.Int("completed", len(report.Completed)))
	}
	return report, nil
}

func (s *Service) allWithStatus(ctx context.Context, status Status) ([]Election, error) {
	const batch = 100
	var out []Election
	for offset := 0; ; offset += batch {
		items, total, err := s.store.ListElections(ctx, ElectionFilter{Status: status, Limit: batch, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list %s elections: %w", status, err)
		}
		out = append(out, items...)
		if len(items) < batch || offset+batch >= total {
			return out, nil
		}
	}
}
