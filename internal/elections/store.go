package elections

import (
	"context"
	"time"
)

// ElectionFilter narrows ListElections.
type ElectionFilter struct {
	Status     Status
	PublicOnly bool
	Limit      int
	Offset     int
}

// Store persists elections, candidates and votes. Both implementations
// return shared.ErrNotFound for absent records and shared.ErrConflict for
// uniqueness violations; multi-row writes are atomic.
type Store interface {
	ListElections(ctx context.Context, filter ElectionFilter) ([]Election, int, error)
	GetElection(ctx context.Context, id string) (Election, error)
	CreateElection(ctx context.Context, e Election) error
	// UpdateElection rewrites the editable fields and sets e.Status in one
	// write, only while the stored status is still from. Otherwise it fails
	// with shared.ErrInvalidState and leaves the record untouched.
	UpdateElection(ctx context.Context, e Election, from Status) error
	// TransitionElection moves an election from one status to another and
	// fails with shared.ErrInvalidState when the current status is not from.
	TransitionElection(ctx context.Context, id string, from, to Status, at time.Time) error
	// DeleteElection removes an election and its candidates, refusing with
	// shared.ErrConflict when any vote references it.
	DeleteElection(ctx context.Context, id string) error

	ListCandidates(ctx context.Context, electionID string) ([]Candidate, error)
	GetCandidate(ctx context.Context, id string) (Candidate, error)
	CreateCandidate(ctx context.Context, c Candidate) error
	// UpdatePendingCandidate rewrites manifesto and image of a pending
	// candidate; shared.ErrInvalidState once reviewed.
	UpdatePendingCandidate(ctx context.Context, c Candidate) error
	// DeletePendingCandidate removes a pending candidate;
	// shared.ErrInvalidState once reviewed.
	DeletePendingCandidate(ctx context.Context, id string) error
	// ReviewCandidate applies a review only when the candidate is pending.
	// Otherwise it returns the current record with shared.ErrConflict.
	ReviewCandidate(ctx context.Context, id string, review Review) (Candidate, error)

	// RecordVote inserts the vote and increments the candidate and election
	// counters as one unit. A second vote for the same (election, voter)
	// yields shared.ErrConflict; a candidate no longer approved or an
	// election no longer active yields shared.ErrInvalidState.
	RecordVote(ctx context.Context, v Vote) error
	FindVote(ctx context.Context, electionID, voterID string) (Vote, error)
	// TallyVotes reads the stored counters and a recount of vote rows from
	// one consistent view of the election.
	TallyVotes(ctx context.Context, electionID string) (Tally, error)
	// RepairCounters recounts vote rows and overwrites candidate and election
	// counters with the result while holding votes for the election off.
	RepairCounters(ctx context.Context, electionID string) error
}

// Tally pairs stored counters with the vote rows behind them. Counted is
// keyed by candidate id and omits candidates without votes.
type Tally struct {
	Status          Status
	ElectionStored  int64
	CandidateStored map[string]int64
	Counted         map[string]int64
}
