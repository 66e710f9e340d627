// Package seed provides demo accounts and elections for local runs.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-campus/internal/auth"
	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
)

type account struct {
	id, email, name, role, password string
}

var accounts = []account{
	{"usr-admin", "admin@campus.local", "Campus Admin", "admin", "admin12345"},
	{"usr-faculty", "faculty@campus.local", "Dr. Rivera", "faculty", "faculty12345"},
	{"usr-student-1", "ayu@campus.local", "Ayu", "student", "student12345"},
	{"usr-student-2", "budi@campus.local", "Budi", "student", "student12345"},
	{"usr-student-3", "citra@campus.local", "Citra", "student", "student12345"},
}

// Users returns the demo accounts with bcrypt hashed passwords.
func Users(now time.Time) ([]auth.User, error) {
	out := make([]auth.User, 0, len(accounts))
	for _, a := range accounts {
		hash, err := auth.HashPassword(a.password)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", a.email, err)
		}
		out = append(out, auth.User{
			ID:           a.id,
			Email:        a.email,
			DisplayName:  a.name,
			Role:         a.role,
			PasswordHash: hash,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return out, nil
}

func principal(a account) rbac.Principal {
	role, _ := rbac.ParseRole(a.role)
	return rbac.Principal{ID: a.id, Role: role, Name: a.name}
}

// Elections creates one upcoming election with two approved candidates and
// one pending application. The status sync job opens it at start.
func Elections(ctx context.Context, svc *elections.Service, now time.Time) (elections.Election, error) {
	faculty := principal(accounts[1])
	start := now.Add(2 * time.Minute).Truncate(time.Minute)
	election, err := svc.CreateElection(ctx, faculty, elections.CreateElectionRequest{
		Title:       "Student Council 2026",
		Description: "Annual student council election.",
		StartAt:     start,
		EndAt:       start.Add(72 * time.Hour),
		Positions:   []string{"President", "Treasurer"},
	})
	if err != nil {
		return elections.Election{}, fmt.Errorf("seed election: %w", err)
	}

	applications := []struct {
		who       account
		position  string
		manifesto string
		approve   bool
	}{
		{accounts[2], "President", "Longer library hours and a quieter exam week.", true},
		{accounts[3], "President", "Open budget meetings every month.", true},
		{accounts[4], "Treasurer", "Publish every expense within a week.", false},
	}
	for _, app := range applications {
		cand, err := svc.ApplyCandidate(ctx, principal(app.who), election.ID, elections.ApplyCandidateRequest{
			Position:  app.position,
			Manifesto: app.manifesto,
		})
		if err != nil {
			return election, fmt.Errorf("seed candidate %s: %w", app.who.email, err)
		}
		if !app.approve {
			continue
		}
		if _, err := svc.ApproveCandidate(ctx, faculty, cand.ID); err != nil {
			return election, fmt.Errorf("seed approve %s: %w", app.who.email, err)
		}
	}
	return election, nil
}
