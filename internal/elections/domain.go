package elections

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// Status is the election lifecycle status.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusUpcoming, StatusActive, StatusCompleted, StatusCancelled:
		return s, true
	default:
		return "", false
	}
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusUpcoming:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// Terminal reports whether no further transitions exist.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CandidateStatus is the candidate review status.
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateApproved CandidateStatus = "approved"
	CandidateRejected CandidateStatus = "rejected"
)

func parseCandidateStatus(raw string) (CandidateStatus, bool) {
	switch s := CandidateStatus(raw); s {
	case CandidatePending, CandidateApproved, CandidateRejected:
		return s, true
	default:
		return "", false
	}
}

// DefaultRejectionReason is stored when a reviewer gives no reason.
const DefaultRejectionReason = "No reason provided"

// Election is a single ballot with one or more positions.
type Election struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Status      Status    `json:"status"`
	Positions   []string  `json:"positions"`
	IsPublic    bool      `json:"is_public"`
	CreatedBy   string    `json:"created_by"`
	VoteCount   int64     `json:"vote_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Record returns the ownership facts used by the permission resolver.
func (e Election) Record() *rbac.Record {
	return &rbac.Record{OwnerID: e.CreatedBy, Public: e.IsPublic}
}

// Position returns the election's own spelling of a position, matched
// case-insensitively.
func (e Election) Position(name string) (string, bool) {
	key := positionKey(name)
	if key == "" {
		return "", false
	}
	for _, p := range e.Positions {
		if positionKey(p) == key {
			return p, true
		}
	}
	return "", false
}

func (e Election) check() error {
	if e.ID == "" || e.CreatedBy == "" {
		return fmt.Errorf("%w: election missing id or creator", shared.ErrCorruptRecord)
	}
	if _, ok := ParseStatus(string(e.Status)); !ok {
		return fmt.Errorf("%w: election %s has status %q", shared.ErrCorruptRecord, e.ID, e.Status)
	}
	if len(e.Positions) == 0 {
		return fmt.Errorf("%w: election %s has no positions", shared.ErrCorruptRecord, e.ID)
	}
	if e.VoteCount < 0 {
		return fmt.Errorf("%w: election %s has negative vote count", shared.ErrCorruptRecord, e.ID)
	}
	return nil
}

func (e Election) clone() Election {
	e.Positions = append([]string(nil), e.Positions...)
	return e
}

// Candidate is an application for one position of one election.
type Candidate struct {
	ID              string          `json:"id"`
	ElectionID      string          `json:"election_id"`
	ApplicantID     string          `json:"applicant_id"`
	ApplicantName   string          `json:"applicant_name"`
	Position        string          `json:"position"`
	Manifesto       string          `json:"manifesto"`
	ImageRef        string          `json:"image_ref,omitempty"`
	VoteCount       int64           `json:"vote_count"`
	Status          CandidateStatus `json:"status"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	ReviewedBy      string          `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Record returns the ownership facts used by the permission resolver.
func (c Candidate) Record(e Election) *rbac.Record {
	return &rbac.Record{OwnerID: c.ApplicantID, ElectionOwnerID: e.CreatedBy, Status: string(c.Status), Public: e.IsPublic}
}

func (c Candidate) check() error {
	if c.ID == "" || c.ElectionID == "" || c.ApplicantID == "" {
		return fmt.Errorf("%w: candidate missing id or references", shared.ErrCorruptRecord)
	}
	if _, ok := parseCandidateStatus(string(c.Status)); !ok {
		return fmt.Errorf("%w: candidate %s has status %q", shared.ErrCorruptRecord, c.ID, c.Status)
	}
	if c.VoteCount < 0 {
		return fmt.Errorf("%w: candidate %s has negative vote count", shared.ErrCorruptRecord, c.ID)
	}
	return nil
}

// Vote is one voter's ballot in one election.
type Vote struct {
	ID          string    `json:"id"`
	ElectionID  string    `json:"election_id"`
	CandidateID string    `json:"candidate_id"`
	VoterID     string    `json:"voter_id"`
	CastAt      time.Time `json:"cast_at"`
}

func (v Vote) check() error {
	if v.ID == "" || v.ElectionID == "" || v.CandidateID == "" || v.VoterID == "" {
		return fmt.Errorf("%w: vote missing id or references", shared.ErrCorruptRecord)
	}
	return nil
}

// Review is the outcome applied to a pending candidate.
type Review struct {
	Status     CandidateStatus
	ReviewerID string
	Reason     string
	At         time.Time
}

// ResultEntry is one candidate's tally in a completed election.
type ResultEntry struct {
	CandidateID string  `json:"candidate_id"`
	Name        string  `json:"name"`
	Position    string  `json:"position"`
	VoteCount   int64   `json:"vote_count"`
	Percentage  float64 `json:"percentage"`
}

// Results aggregates a completed election.
type Results struct {
	ElectionID  string        `json:"election_id"`
	Title       string        `json:"title"`
	TotalVotes  int64         `json:"total_votes"`
	Entries     []ResultEntry `json:"entries"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// positionKey folds case and collapses whitespace so "Vice  president" and
// "vice President" name the same position. A Caser is stateful, hence one
// per call.
func positionKey(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
