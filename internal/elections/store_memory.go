package elections

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// MemoryStore keeps everything in process. It backs STORE_DRIVER=memory and
// the service tests.
type MemoryStore struct {
	mu         sync.RWMutex
	elections  map[string]Election
	candidates map[string]Candidate
	votes      map[string]Vote // keyed by election id + voter id
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		elections:  make(map[string]Election),
		candidates: make(map[string]Candidate),
		votes:      make(map[string]Vote),
	}
}

func voteKey(electionID, voterID string) string {
	return electionID + "\x00" + voterID
}

func (m *MemoryStore) ListElections(ctx context.Context, filter ElectionFilter) ([]Election, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]Election, 0, len(m.elections))
	for _, e := range m.elections {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.PublicOnly && !e.IsPublic {
			continue
		}
		if err := e.check(); err != nil {
			return nil, 0, err
		}
		matched = append(matched, e.clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartAt.Equal(matched[j].StartAt) {
			return matched[i].StartAt.After(matched[j].StartAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if filter.Offset >= total {
		return []Election{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (m *MemoryStore) GetElection(ctx context.Context, id string) (Election, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.elections[id]
	if !ok {
		return Election{}, shared.ErrNotFound
	}
	if err := e.check(); err != nil {
		return Election{}, err
	}
	return e.clone(), nil
}

func (m *MemoryStore) CreateElection(ctx context.Context, e Election) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.elections[e.ID]; exists {
		return fmt.Errorf("%w: election %s exists", shared.ErrConflict, e.ID)
	}
	m.elections[e.ID] = e.clone()
	return nil
}

// UpdateElection rewrites editable fields and status under one lock; counters
// are left to RecordVote.
func (m *MemoryStore) UpdateElection(ctx context.Context, e Election, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.elections[e.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if cur.Status != from {
		return fmt.Errorf("%w: election is %s", shared.ErrInvalidState, cur.Status)
	}
	cur.Title = e.Title
	cur.Description = e.Description
	cur.StartAt = e.StartAt
	cur.EndAt = e.EndAt
	cur.Positions = append([]string(nil), e.Positions...)
	cur.IsPublic = e.IsPublic
	cur.Status = e.Status
	cur.UpdatedAt = e.UpdatedAt
	m.elections[e.ID] = cur
	return nil
}

func (m *MemoryStore) TransitionElection(ctx context.Context, id string, from, to Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.elections[id]
	if !ok {
		return shared.ErrNotFound
	}
	if cur.Status != from {
		return fmt.Errorf("%w: election is %s", shared.ErrInvalidState, cur.Status)
	}
	cur.Status = to
	cur.UpdatedAt = at
	m.elections[id] = cur
	return nil
}

func (m *MemoryStore) DeleteElection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.elections[id]; !ok {
		return shared.ErrNotFound
	}
	for _, v := range m.votes {
		if v.ElectionID == id {
			return fmt.Errorf("%w: election has votes", shared.ErrConflict)
		}
	}
	for cid, c := range m.candidates {
		if c.ElectionID == id {
			delete(m.candidates, cid)
		}
	}
	delete(m.elections, id)
	return nil
}

func (m *MemoryStore) ListCandidates(ctx context.Context, electionID string) ([]Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Candidate, 0)
	for _, c := range m.candidates {
		if c.ElectionID != electionID {
			continue
		}
		if err := c.check(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetCandidate(ctx context.Context, id string) (Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candidates[id]
	if !ok {
		return Candidate{}, shared.ErrNotFound
	}
	if err := c.check(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

func (m *MemoryStore) CreateCandidate(ctx context.Context, c Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.elections[c.ElectionID]; !ok {
		return shared.ErrNotFound
	}
	key := positionKey(c.Position)
	for _, other := range m.candidates {
		if other.ElectionID == c.ElectionID && other.ApplicantID == c.ApplicantID && positionKey(other.Position) == key {
			return fmt.Errorf("%w: already applied for %s", shared.ErrConflict, c.Position)
		}
	}
	m.candidates[c.ID] = c
	return nil
}

func (m *MemoryStore) UpdatePendingCandidate(ctx context.Context, c Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.candidates[c.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if cur.Status != CandidatePending {
		return fmt.Errorf("%w: candidate already %s", shared.ErrInvalidState, cur.Status)
	}
	cur.Manifesto = c.Manifesto
	cur.ImageRef = c.ImageRef
	cur.UpdatedAt = c.UpdatedAt
	m.candidates[c.ID] = cur
	return nil
}

func (m *MemoryStore) DeletePendingCandidate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.candidates[id]
	if !ok {
		return shared.ErrNotFound
	}
	if cur.Status != CandidatePending {
		return fmt.Errorf("%w: candidate already %s", shared.ErrInvalidState, cur.Status)
	}
	delete(m.candidates, id)
	return nil
}

func (m *MemoryStore) ReviewCandidate(ctx context.Context, id string, review Review) (Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.candidates[id]
	if !ok {
		return Candidate{}, shared.ErrNotFound
	}
	if cur.Status != CandidatePending {
		return cur, fmt.Errorf("%w: candidate already %s", shared.ErrConflict, cur.Status)
	}
	at := review.At
	cur.Status = review.Status
	cur.ReviewedBy = review.ReviewerID
	cur.ReviewedAt = &at
	cur.UpdatedAt = at
	if review.Status == CandidateRejected {
		cur.RejectionReason = review.Reason
	}
	m.candidates[id] = cur
	return cur, nil
}

func (m *MemoryStore) RecordVote(ctx context.Context, v Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := voteKey(v.ElectionID, v.VoterID)
	if _, dup := m.votes[key]; dup {
		return fmt.Errorf("%w: already voted", shared.ErrConflict)
	}
	election, ok := m.elections[v.ElectionID]
	if !ok {
		return shared.ErrNotFound
	}
	if election.Status != StatusActive {
		return fmt.Errorf("%w: voting closed", shared.ErrInvalidState)
	}
	candidate, ok := m.candidates[v.CandidateID]
	if !ok || candidate.ElectionID != v.ElectionID {
		return shared.ErrNotFound
	}
	if candidate.Status != CandidateApproved {
		return errCandidateNotApproved
	}
	m.votes[key] = v
	candidate.VoteCount++
	election.VoteCount++
	m.candidates[candidate.ID] = candidate
	m.elections[election.ID] = election
	return nil
}

func (m *MemoryStore) FindVote(ctx context.Context, electionID, voterID string) (Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.votes[voteKey(electionID, voterID)]
	if !ok {
		return Vote{}, shared.ErrNotFound
	}
	if err := v.check(); err != nil {
		return Vote{}, err
	}
	return v, nil
}

func (m *MemoryStore) TallyVotes(ctx context.Context, electionID string) (Tally, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	election, ok := m.elections[electionID]
	if !ok {
		return Tally{}, shared.ErrNotFound
	}
	tally := Tally{
		Status:          election.Status,
		ElectionStored:  election.VoteCount,
		CandidateStored: make(map[string]int64),
		Counted:         m.countLocked(electionID),
	}
	for id, c := range m.candidates {
		if c.ElectionID == electionID {
			tally.CandidateStored[id] = c.VoteCount
		}
	}
	return tally, nil
}

func (m *MemoryStore) RepairCounters(ctx context.Context, electionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	election, ok := m.elections[electionID]
	if !ok {
		return shared.ErrNotFound
	}
	counts := m.countLocked(electionID)
	var total int64
	for id, c := range m.candidates {
		if c.ElectionID != electionID {
			continue
		}
		c.VoteCount = counts[id]
		total += c.VoteCount
		m.candidates[id] = c
	}
	election.VoteCount = total
	m.elections[electionID] = election
	return nil
}

// countLocked tallies vote rows per candidate; m.mu must be held.
func (m *MemoryStore) countLocked(electionID string) map[string]int64 {
	counts := make(map[string]int64)
	for _, v := range m.votes {
		if v.ElectionID == electionID {
			counts[v.CandidateID]++
		}
	}
	return counts
}
