package elections

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// GetResults returns the tally of a completed election.
func (s *Service) GetResults(ctx context.Context, actor rbac.Principal, electionID string) (Results, error) {
	election, err := s.visibleElection(ctx, actor, electionID)
	if err != nil {
		return Results{}, err
	}
	if election.Status != StatusCompleted {
		return Results{}, fmt.Errorf("results: %w: election is %s", shared.ErrInvalidState, election.Status)
	}
	load := func(ctx context.Context) (Results, error) {
		return s.computeFromStore(ctx, election)
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Fetch(ctx, election.ID, load)
}

func (s *Service) computeFromStore(ctx context.Context, e Election) (Results, error) {
	candidates, err := s.store.ListCandidates(ctx, e.ID)
	if err != nil {
		return Results{}, fmt.Errorf("results: %w", err)
	}
	return computeResults(e, candidates, s.clock()), nil
}

// computeResults ranks approved candidates by votes, ties broken by id.
func computeResults(e Election, candidates []Candidate, at time.Time) Results {
	entries := make([]ResultEntry, 0, len(candidates))
	var total int64
	for _, c := range candidates {
		if c.Status != CandidateApproved {
			continue
		}
		total += c.VoteCount
		entries = append(entries, ResultEntry{
			CandidateID: c.ID,
			Name:        c.ApplicantName,
			Position:    c.Position,
			VoteCount:   c.VoteCount,
		})
	}
	for i := range entries {
		entries[i].Percentage = percentage(entries[i].VoteCount, total)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].VoteCount != entries[j].VoteCount {
			return entries[i].VoteCount > entries[j].VoteCount
		}
		return entries[i].CandidateID < entries[j].CandidateID
	})
	return Results{
		ElectionID:  e.ID,
		Title:       e.Title,
		TotalVotes:  total,
		Entries:     entries,
		GeneratedAt: at,
	}
}

func percentage(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(votes)*10000/float64(total)) / 100
}
