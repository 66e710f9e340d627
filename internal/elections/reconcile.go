package elections

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Drift is a counter that disagrees with the vote rows.
type Drift struct {
	CandidateID string `json:"candidate_id,omitempty"`
	Stored      int64  `json:"stored"`
	Counted     int64  `json:"counted"`
}

// ReconcileReport is the outcome of a recount.
type ReconcileReport struct {
	ElectionID string  `json:"election_id"`
	Drifts     []Drift `json:"drifts"`
	Repaired   bool    `json:"repaired"`
}

// Reconcile recounts vote rows against the stored counters. When repair is
// set and drift exists, the store recounts again under its write lock and
// overwrites the counters. An empty CandidateID in a Drift denotes the
// election total.
func (s *Service) Reconcile(ctx context.Context, electionID string, repair bool) (ReconcileReport, error) {
	report := ReconcileReport{ElectionID: electionID}
	tally, err := s.store.TallyVotes(ctx, electionID)
	if err != nil {
		return report, fmt.Errorf("reconcile %s: %w", electionID, err)
	}

	var total int64
	for id, stored := range tally.CandidateStored {
		counted := tally.Counted[id]
		total += counted
		if stored != counted {
			report.Drifts = append(report.Drifts, Drift{CandidateID: id, Stored: stored, Counted: counted})
		}
	}
	if tally.ElectionStored != total {
		report.Drifts = append(report.Drifts, Drift{Stored: tally.ElectionStored, Counted: total})
	}
	sort.Slice(report.Drifts, func(i, j int) bool { return report.Drifts[i].CandidateID < report.Drifts[j].CandidateID })

	if len(report.Drifts) == 0 {
		return report, nil
	}
	s.logger.Warn("vote counter drift",
		slog.String("election_id", electionID),
		slog.Int("drifts", len(report.Drifts)),
		slog.Bool("repair", repair))
	if !repair {
		return report, nil
	}
	if err := s.store.RepairCounters(ctx, electionID); err != nil {
		return report, fmt.Errorf("repair %s: %w", electionID, err)
	}
	report.Repaired = true
	if s.cache != nil && tally.Status == StatusCompleted {
		if err := s.cache.Invalidate(ctx, electionID); err != nil {
			s.logger.Warn("invalidate results cache", slog.String("election_id", electionID), slog.Any("error", err))
		}
	}
	return report, nil
}

// ReconcileAll recounts every election with the given status.
func (s *Service) ReconcileAll(ctx context.Context, status Status, repair bool) ([]ReconcileReport, error) {
	items, err := s.allWithStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	reports := make([]ReconcileReport, 0, len(items))
	for _, e := range items {
		r, err := s.Reconcile(ctx, e.ID, repair)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
