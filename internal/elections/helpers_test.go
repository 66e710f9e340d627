package elections

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

var (
	admin        = rbac.Principal{ID: "admin-1", Role: rbac.RoleAdmin, Name: "Registrar"}
	faculty      = rbac.Principal{ID: "fac-1", Role: rbac.RoleFaculty, Name: "Dr. Rahma"}
	otherFaculty = rbac.Principal{ID: "fac-2", Role: rbac.RoleFaculty, Name: "Dr. Budi"}
	alice        = rbac.Principal{ID: "stu-1", Role: rbac.RoleStudent, Name: "Alice"}
	bob          = rbac.Principal{ID: "stu-2", Role: rbac.RoleStudent, Name: "Bob"}
	carol        = rbac.Principal{ID: "stu-3", Role: rbac.RoleStudent, Name: "Carol"}
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveVote(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func (o *countingObserver) count(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[outcome]
}

type fixture struct {
	store   *MemoryStore
	svc     *Service
	audit   *recordingAudit
	metrics *countingObserver
	mu      sync.Mutex
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   NewMemoryStore(),
		audit:   &recordingAudit{},
		metrics: &countingObserver{},
		now:     time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, ServiceConfig{
		Audit:   f.audit,
		Metrics: f.metrics,
		Clock:   f.clock,
	})
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

func (f *fixture) createElection(t *testing.T, positions ...string) Election {
	t.Helper()
	if len(positions) == 0 {
		positions = []string{"President"}
	}
	now := f.clock()
	e, err := f.svc.CreateElection(context.Background(), faculty, CreateElectionRequest{
		Title:     "Student Council 2026",
		StartAt:   now.Add(time.Hour),
		EndAt:     now.Add(48 * time.Hour),
		Positions: positions,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) setStatus(t *testing.T, id string, status Status) {
	t.Helper()
	s := string(status)
	_, err := f.svc.UpdateElection(context.Background(), faculty, id, UpdateElectionRequest{Status: &s})
	require.NoError(t, err)
}

func (f *fixture) apply(t *testing.T, electionID string, actor rbac.Principal, position string) Candidate {
	t.Helper()
	c, err := f.svc.ApplyCandidate(context.Background(), actor, electionID, ApplyCandidateRequest{
		Position:  position,
		Manifesto: "Better library hours",
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) approved(t *testing.T, electionID string, actor rbac.Principal, position string) Candidate {
	t.Helper()
	c := f.apply(t, electionID, actor, position)
	c, err := f.svc.ApproveCandidate(context.Background(), faculty, c.ID)
	require.NoError(t, err)
	return c
}

// activeElection returns an active election with two approved presidential
// candidates.
func (f *fixture) activeElection(t *testing.T) (Election, Candidate, Candidate) {
	t.Helper()
	e := f.createElection(t)
	c1 := f.approved(t, e.ID, alice, "President")
	c2 := f.approved(t, e.ID, bob, "President")
	f.setStatus(t, e.ID, StatusActive)
	e, err := f.store.GetElection(context.Background(), e.ID)
	require.NoError(t, err)
	return e, c1, c2
}

// put replaces raw records to simulate drift or corruption.
func (m *MemoryStore) put(records ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		switch rec := r.(type) {
		case Election:
			m.elections[rec.ID] = rec.clone()
		case Candidate:
			m.candidates[rec.ID] = rec
		case Vote:
			m.votes[voteKey(rec.ElectionID, rec.VoterID)] = rec
		}
	}
}

func student(n int) rbac.Principal {
	return rbac.Principal{ID: fmt.Sprintf("voter-%03d", n), Role: rbac.RoleStudent}
}
