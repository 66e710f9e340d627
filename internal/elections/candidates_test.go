package elections

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

func TestApplyCandidate(t *testing.T) {
	f := newFixture(t)
	e := f.createElection(t, "President", "Vice President")

	c, err := f.svc.ApplyCandidate(context.Background(), alice, e.ID, ApplyCandidateRequest{
		Position:  "vice  PRESIDENT",
		Manifesto: "  Longer lab hours ",
	})
	require.NoError(t, err)
	assert.Equal(t, CandidatePending, c.Status)
	assert.Equal(t, "Vice President", c.Position)
	assert.Equal(t, "Alice", c.ApplicantName)
	assert.Equal(t, "Longer lab hours", c.Manifesto)
	assert.Equal(t, f.clock(), c.SubmittedAt)
}

func TestApplyCandidatePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createElection(t)
	req := ApplyCandidateRequest{Position: "President", Manifesto: "Plan"}

	_, err := f.svc.ApplyCandidate(ctx, admin, e.ID, req)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = f.svc.ApplyCandidate(ctx, faculty, e.ID, req)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = f.svc.ApplyCandidate(ctx, alice, "missing", req)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.ApplyCandidate(ctx, alice, e.ID, ApplyCandidateRequest{Position: "Mascot", Manifesto: "Plan"})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, []string{"position"}, fieldNames(t, err))

	f.setStatus(t, e.ID, StatusActive)
	_, err = f.svc.ApplyCandidate(ctx, alice, e.ID, req)
	require.NoError(t, err, "applications stay open while active")

	f.setStatus(t, e.ID, StatusCompleted)
	_, err = f.svc.ApplyCandidate(ctx, bob, e.ID, req)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestApplyCandidateHiddenElection(t *testing.T) {
	f := newFixture(t)
	e := f.createElection(t)
	no := false
	_, err := f.svc.UpdateElection(context.Background(), faculty, e.ID, UpdateElectionRequest{IsPublic: &no})
	require.NoError(t, err)

	_, err = f.svc.ApplyCandidate(context.Background(), alice, e.ID, ApplyCandidateRequest{Position: "President", Manifesto: "Plan"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

// Scenario B: same applicant, same position.
func TestApplyCandidateDuplicate(t *testing.T) {
	f := newFixture(t)
	e := f.createElection(t)
	f.apply(t, e.ID, alice, "President")

	_, err := f.svc.ApplyCandidate(context.Background(), alice, e.ID, ApplyCandidateRequest{Position: "PRESIDENT", Manifesto: "Again"})
	require.ErrorIs(t, err, shared.ErrConflict)

	f.apply(t, e.ID, bob, "President")
}

func TestApproveCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createElection(t)
	c := f.apply(t, e.ID, alice, "President")

	_, err := f.svc.ApproveCandidate(ctx, otherFaculty, c.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = f.svc.ApproveCandidate(ctx, bob, c.ID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = f.svc.ApproveCandidate(ctx, faculty, "nope")
	require.ErrorIs(t, err, shared.ErrNotFound)

	approved, err := f.svc.ApproveCandidate(ctx, faculty, c.ID)
	require.NoError(t, err)
	assert.Equal(t, CandidateApproved, approved.Status)
	assert.Equal(t, faculty.ID, approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)
	assert.Equal(t, f.clock(), *approved.ReviewedAt)
	assert.Empty(t, approved.RejectionReason)
}

// P3: reviews are terminal.
func TestReviewIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createElection(t)
	c := f.approved(t, e.ID, alice, "President")

	_, err := f.svc.ApproveCandidate(ctx, admin, c.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "candidate already approved")

	_, err = f.svc.RejectCandidate(ctx, admin, c.ID, RejectCandidateRequest{Reason: "late"})
	require.ErrorIs(t, err, shared.ErrConflict)

	got, err := f.store.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, CandidateApproved, got.Status)
}

// Scenario D.
func TestRejectCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createElection(t)
	c := f.apply(t, e.ID, alice, "President")

	rejected, err := f.svc.RejectCandidate(ctx, faculty, c.ID, RejectCandidateRequest{Reason: "incomplete manifesto"})
	require.NoError(t, err)
	assert.Equal(t, CandidateRejected, rejected.Status)
	assert.Equal(t, "incomplete manifesto", rejected.RejectionReason)

	_, err = f.svc.ApproveCandidate(ctx, faculty, c.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	other := f.apply(t, e.ID, bob, "President")
	rejected, err = f.svc.RejectCandidate(ctx, admin, other.ID, RejectCandidateRequest{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRejectionReason, rejected.RejectionReason)
	assert.Contains(t, f.audit.actions(), shared.AuditCandidateReject)
}

func TestConcurrentReviewsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	e := f.createElection(t)
	c := f.apply(t, e.ID, alice, "President")

	const reviewers = 16
	var wg sync.WaitGroup
	errs := make([]error, reviewers)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.svc.ApproveCandidate(context.Background(), faculty, c.ID)
				return
			}
			_, errs[i] = f.svc.RejectCandidate(context.Background(), admin, c.ID, RejectCandidateRequest{})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.True(t, errors.Is(err, shared.ErrConflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestListCandidatesVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createElection(t)
	approved := f.approved(t, e.ID, alice, "President")
	pending := f.apply(t, e.ID, bob, "President")
	rejected := f.apply(t, e.ID, carol, "President")
	_, err := f.svc.RejectCandidate(ctx, faculty, rejected.ID, RejectCandidateRequest{})
	require.NoError(t, err)

	ids := func(items []Candidate) []string {
		out := make([]string, 0, len(items))
		for _, c := range items {
			out = append(out, c.ID)
		}
		return out
	}

	all, err := f.svc.ListCandidates(ctx, faculty, e.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{approved.ID, pending.ID, rejected.ID}, ids(all))

	all, err = f.svc.ListCandidates(ctx, admin, e.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	own, err := f.svc.ListCandidates(ctx, bob, e.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{approved.ID, pending.ID}, ids(own))

	outsider, err := f.svc.ListCandidates(ctx, otherFaculty, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{approved.ID}, ids(outsider))

	_, err = f.svc.ListCandidates(ctx, bob, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateAndWithdrawCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.createElection(t)
	c := f.apply(t, e.ID, alice, "President")
	manifesto := "Revised plan"

	_, err := f.svc.UpdateCandidate(ctx, bob, c.ID, UpdateCandidateRequest{Manifesto: &manifesto})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	blank := " "
	_, err = f.svc.UpdateCandidate(ctx, alice, c.ID, UpdateCandidateRequest{Manifesto: &blank})
	require.ErrorIs(t, err, shared.ErrValidation)

	updated, err := f.svc.UpdateCandidate(ctx, alice, c.ID, UpdateCandidateRequest{Manifesto: &manifesto})
	require.NoError(t, err)
	assert.Equal(t, "Revised plan", updated.Manifesto)

	_, err = f.svc.ApproveCandidate(ctx, faculty, c.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateCandidate(ctx, alice, c.ID, UpdateCandidateRequest{Manifesto: &manifesto})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.ErrorIs(t, f.svc.WithdrawCandidate(ctx, alice, c.ID), shared.ErrInvalidState)

	other := f.apply(t, e.ID, bob, "President")
	require.ErrorIs(t, f.svc.WithdrawCandidate(ctx, alice, other.ID), shared.ErrPermissionDenied)
	require.NoError(t, f.svc.WithdrawCandidate(ctx, bob, other.ID))
	_, err = f.store.GetCandidate(ctx, other.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
