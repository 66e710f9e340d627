package elections

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// ListCandidates returns the candidates of an election the actor may see.
// Students see approved candidates plus their own applications.
func (s *Service) ListCandidates(ctx context.Context, actor rbac.Principal, electionID string) ([]Candidate, error) {
	election, err := s.visibleElection(ctx, actor, electionID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListCandidates(ctx, election.ID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	seesAll := actor.Role == rbac.RoleAdmin || (actor.Role == rbac.RoleFaculty && election.CreatedBy == actor.ID)
	out := make([]Candidate, 0, len(all))
	for _, c := range all {
		if !actor.Can(rbac.KindCandidate, c.Record(election), rbac.ActionRead) {
			continue
		}
		if seesAll || c.Status == CandidateApproved || c.ApplicantID == actor.ID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ApplyCandidate files a pending application for one position.
func (s *Service) ApplyCandidate(ctx context.Context, actor rbac.Principal, electionID string, req ApplyCandidateRequest) (Candidate, error) {
	if !actor.Can(rbac.KindCandidate, nil, rbac.ActionCreate) {
		return Candidate{}, fmt.Errorf("apply candidate: %w", shared.ErrPermissionDenied)
	}
	election, err := s.visibleElection(ctx, actor, electionID)
	if err != nil {
		return Candidate{}, err
	}
	if election.Status != StatusUpcoming && election.Status != StatusActive {
		return Candidate{}, fmt.Errorf("apply candidate: %w: election is %s", shared.ErrInvalidState, election.Status)
	}
	if err := validateStruct(req, nil); err != nil {
		return Candidate{}, err
	}
	position, ok := election.Position(req.Position)
	if !ok {
		return Candidate{}, shared.NewValidationError(map[string]string{"position": "is not offered by this election"})
	}

	existing, err := s.store.ListCandidates(ctx, election.ID)
	if err != nil {
		return Candidate{}, fmt.Errorf("apply candidate: %w", err)
	}
	for _, c := range existing {
		if c.ApplicantID == actor.ID && positionKey(c.Position) == positionKey(position) {
			return Candidate{}, fmt.Errorf("apply candidate: %w: already applied for %s", shared.ErrConflict, position)
		}
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = actor.Name
	}
	now := s.clock()
	candidate := Candidate{
		ID:            uuid.NewString(),
		ElectionID:    election.ID,
		ApplicantID:   actor.ID,
		ApplicantName: name,
		Position:      position,
		Manifesto:     strings.TrimSpace(req.Manifesto),
		ImageRef:      strings.TrimSpace(req.ImageRef),
		Status:        CandidatePending,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateCandidate(ctx, candidate); err != nil {
		return Candidate{}, fmt.Errorf("apply candidate: %w", err)
	}
	s.recordAudit(ctx, actor.ID, shared.AuditCandidateApply, "candidate", candidate.ID, map[string]any{"election_id": election.ID, "position": position})
	return candidate, nil
}

// UpdateCandidate edits the manifesto or image of a pending application.
func (s *Service) UpdateCandidate(ctx context.Context, actor rbac.Principal, candidateID string, req UpdateCandidateRequest) (Candidate, error) {
	candidate, election, err := s.loadCandidate(ctx, actor, candidateID)
	if err != nil {
		return Candidate{}, err
	}
	if !actor.Can(rbac.KindCandidate, candidate.Record(election), rbac.ActionUpdate) {
		if candidate.ApplicantID == actor.ID && candidate.Status != CandidatePending {
			return Candidate{}, fmt.Errorf("update candidate: %w: candidate already %s", shared.ErrInvalidState, candidate.Status)
		}
		return Candidate{}, fmt.Errorf("update candidate: %w", shared.ErrPermissionDenied)
	}
	extra := map[string]string{}
	if req.Manifesto != nil && strings.TrimSpace(*req.Manifesto) == "" {
		extra["manifesto"] = "is required"
	}
	if err := validateStruct(req, extra); err != nil {
		return Candidate{}, err
	}
	if candidate.Status != CandidatePending {
		return Candidate{}, fmt.Errorf("update candidate: %w: candidate already %s", shared.ErrInvalidState, candidate.Status)
	}
	if req.Manifesto != nil {
		candidate.Manifesto = strings.TrimSpace(*req.Manifesto)
	}
	if req.ImageRef != nil {
		candidate.ImageRef = strings.TrimSpace(*req.ImageRef)
	}
	candidate.UpdatedAt = s.clock()
	if err := s.store.UpdatePendingCandidate(ctx, candidate); err != nil {
		return Candidate{}, fmt.Errorf("update candidate: %w", err)
	}
	return candidate, nil
}

// WithdrawCandidate deletes a pending application.
func (s *Service) WithdrawCandidate(ctx context.Context, actor rbac.Principal, candidateID string) error {
	candidate, election, err := s.loadCandidate(ctx, actor, candidateID)
	if err != nil {
		return err
	}
	if !actor.Can(rbac.KindCandidate, candidate.Record(election), rbac.ActionDelete) {
		if candidate.ApplicantID == actor.ID && candidate.Status != CandidatePending {
			return fmt.Errorf("withdraw candidate: %w: candidate already %s", shared.ErrInvalidState, candidate.Status)
		}
		return fmt.Errorf("withdraw candidate: %w", shared.ErrPermissionDenied)
	}
	if candidate.Status != CandidatePending {
		return fmt.Errorf("withdraw candidate: %w: candidate already %s", shared.ErrInvalidState, candidate.Status)
	}
	if err := s.store.DeletePendingCandidate(ctx, candidate.ID); err != nil {
		return fmt.Errorf("withdraw candidate: %w", err)
	}
	s.recordAudit(ctx, actor.ID, shared.AuditCandidateWithdraw, "candidate", candidate.ID, map[string]any{"election_id": election.ID})
	return nil
}

// ApproveCandidate moves a pending candidate to approved.
func (s *Service) ApproveCandidate(ctx context.Context, actor rbac.Principal, candidateID string) (Candidate, error) {
	return s.review(ctx, actor, candidateID, rbac.ActionApprove, CandidateApproved, "")
}

// RejectCandidate moves a pending candidate to rejected with a reason.
func (s *Service) RejectCandidate(ctx context.Context, actor rbac.Principal, candidateID string, req RejectCandidateRequest) (Candidate, error) {
	if err := validateStruct(req, nil); err != nil {
		return Candidate{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}
	return s.review(ctx, actor, candidateID, rbac.ActionReject, CandidateRejected, reason)
}

func (s *Service) review(ctx context.Context, actor rbac.Principal, candidateID string, action rbac.Action, to CandidateStatus, reason string) (Candidate, error) {
	candidate, election, err := s.loadCandidate(ctx, actor, candidateID)
	if err != nil {
		return Candidate{}, err
	}
	if !actor.Can(rbac.KindCandidate, candidate.Record(election), action) {
		return Candidate{}, fmt.Errorf("%s candidate: %w", action, shared.ErrPermissionDenied)
	}
	if candidate.Status != CandidatePending {
		return Candidate{}, fmt.Errorf("%s candidate: %w: candidate already %s", action, shared.ErrConflict, candidate.Status)
	}
	reviewed, err := s.store.ReviewCandidate(ctx, candidate.ID, Review{
		Status:     to,
		ReviewerID: actor.ID,
		Reason:     reason,
		At:         s.clock(),
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("%s candidate: %w", action, err)
	}
	auditAction := shared.AuditCandidateApprove
	meta := map[string]any{"election_id": election.ID}
	if to == CandidateRejected {
		auditAction = shared.AuditCandidateReject
		meta["reason"] = reason
	}
	s.recordAudit(ctx, actor.ID, auditAction, "candidate", reviewed.ID, meta)
	return reviewed, nil
}

// loadCandidate fetches a candidate with its election; both are reported as
// not found when the actor cannot read them.
func (s *Service) loadCandidate(ctx context.Context, actor rbac.Principal, candidateID string) (Candidate, Election, error) {
	if strings.TrimSpace(candidateID) == "" {
		return Candidate{}, Election{}, fmt.Errorf("candidate: %w", shared.ErrNotFound)
	}
	candidate, err := s.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return Candidate{}, Election{}, fmt.Errorf("candidate %s: %w", candidateID, err)
	}
	election, err := s.visibleElection(ctx, actor, candidate.ElectionID)
	if err != nil {
		return Candidate{}, Election{}, err
	}
	return candidate, election, nil
}
