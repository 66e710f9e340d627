package elections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// Vote outcomes reported to the VoteObserver.
const (
	OutcomeAccepted    = "accepted"
	OutcomeDuplicate   = "duplicate"
	OutcomeClosed      = "closed"
	OutcomeRejected    = "rejected"
	OutcomeDenied      = "denied"
	OutcomeStoreFailed = "error"
	OutcomeIneligible  = "ineligible"
)

// errCandidateNotApproved marks a ballot for a candidate that is pending or
// rejected, as opposed to an election that is not accepting votes.
var errCandidateNotApproved = fmt.Errorf("%w: candidate not approved", shared.ErrInvalidState)

// CastVote records the voter's single ballot for an approved candidate of an
// active election.
func (s *Service) CastVote(ctx context.Context, actor rbac.Principal, electionID string, req CastVoteRequest) (Vote, error) {
	vote, err := s.castVote(ctx, actor, electionID, req)
	s.observe(err)
	if err != nil {
		return Vote{}, err
	}
	s.recordAudit(ctx, actor.ID, shared.AuditVoteCast, "vote", vote.ID, map[string]any{"election_id": vote.ElectionID})
	s.logger.Info("vote recorded", slog.String("election_id", vote.ElectionID), slog.String("vote_id", vote.ID))
	return vote, nil
}

func (s *Service) castVote(ctx context.Context, actor rbac.Principal, electionID string, req CastVoteRequest) (Vote, error) {
	if !actor.Can(rbac.KindVote, nil, rbac.ActionCreate) {
		return Vote{}, fmt.Errorf("cast vote: %w", shared.ErrPermissionDenied)
	}
	election, err := s.visibleElection(ctx, actor, electionID)
	if err != nil {
		return Vote{}, err
	}
	if !actor.Can(rbac.KindElection, election.Record(), rbac.ActionVote) {
		return Vote{}, fmt.Errorf("cast vote: %w", shared.ErrPermissionDenied)
	}
	if election.Status != StatusActive {
		return Vote{}, fmt.Errorf("cast vote: %w: voting closed", shared.ErrInvalidState)
	}
	if err := validateStruct(req, nil); err != nil {
		return Vote{}, err
	}
	candidate, err := s.store.GetCandidate(ctx, strings.TrimSpace(req.CandidateID))
	if err != nil {
		return Vote{}, fmt.Errorf("cast vote: candidate: %w", err)
	}
	if candidate.ElectionID != election.ID {
		return Vote{}, fmt.Errorf("cast vote: candidate: %w", shared.ErrNotFound)
	}
	if candidate.Status != CandidateApproved {
		return Vote{}, fmt.Errorf("cast vote: %w", errCandidateNotApproved)
	}
	if _, err := s.store.FindVote(ctx, election.ID, actor.ID); err == nil {
		return Vote{}, fmt.Errorf("cast vote: %w: already voted", shared.ErrConflict)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Vote{}, fmt.Errorf("cast vote: %w", err)
	}

	vote := Vote{
		ID:          uuid.NewString(),
		ElectionID:  election.ID,
		CandidateID: candidate.ID,
		VoterID:     actor.ID,
		CastAt:      s.clock(),
	}
	if err := s.store.RecordVote(ctx, vote); err != nil {
		return Vote{}, fmt.Errorf("cast vote: %w", err)
	}
	return vote, nil
}

// HasVoted reports whether the actor voted in the election.
func (s *Service) HasVoted(ctx context.Context, actor rbac.Principal, electionID string) (bool, error) {
	status, err := s.VoteStatus(ctx, actor, electionID)
	if err != nil {
		return false, err
	}
	return status.HasVoted, nil
}

// GetUserVote returns the candidate the actor voted for, or nil.
func (s *Service) GetUserVote(ctx context.Context, actor rbac.Principal, electionID string) (*string, error) {
	status, err := s.VoteStatus(ctx, actor, electionID)
	if err != nil {
		return nil, err
	}
	return status.CandidateID, nil
}

// VoteStatus answers both questions with one lookup.
func (s *Service) VoteStatus(ctx context.Context, actor rbac.Principal, electionID string) (VoteStatus, error) {
	if actor.ID == "" {
		return VoteStatus{}, fmt.Errorf("vote status: %w", shared.ErrUnauthorized)
	}
	election, err := s.visibleElection(ctx, actor, electionID)
	if err != nil {
		return VoteStatus{}, err
	}
	vote, err := s.store.FindVote(ctx, election.ID, actor.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return VoteStatus{}, nil
	case err != nil:
		return VoteStatus{}, fmt.Errorf("vote status: %w", err)
	}
	if !actor.Can(rbac.KindVote, &rbac.Record{OwnerID: vote.VoterID}, rbac.ActionRead) {
		return VoteStatus{}, fmt.Errorf("vote status: %w", shared.ErrPermissionDenied)
	}
	candidateID := vote.CandidateID
	return VoteStatus{HasVoted: true, CandidateID: &candidateID}, nil
}

func (s *Service) observe(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveVote(outcomeFor(err))
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, shared.ErrConflict):
		return OutcomeDuplicate
	case errors.Is(err, shared.ErrPermissionDenied):
		return OutcomeDenied
	case errors.Is(err, errCandidateNotApproved):
		return OutcomeIneligible
	case errors.Is(err, shared.ErrInvalidState):
		return OutcomeClosed
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrValidation):
		return OutcomeRejected
	default:
		return OutcomeStoreFailed
	}
}
