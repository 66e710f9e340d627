package elections

import (
	"time"

	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// CreateElectionRequest is the payload of POST /api/elections.
type CreateElectionRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	Positions   []string  `json:"positions" validate:"required,min=1,max=50,dive,required,max=100"`
	IsPublic    *bool     `json:"is_public"`
}

// UpdateElectionRequest is a partial update; nil fields stay untouched.
type UpdateElectionRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	Positions   []string   `json:"positions" validate:"omitempty,max=50,dive,required,max=100"`
	IsPublic    *bool      `json:"is_public"`
	Status      *string    `json:"status" validate:"omitempty,oneof=upcoming active completed cancelled"`
}

func (r UpdateElectionRequest) touchesSchedule() bool {
	return r.StartAt != nil || r.EndAt != nil || r.Positions != nil
}

// ListElectionsInput carries list query parameters.
type ListElectionsInput struct {
	Status  string
	Page    int
	PerPage int
}

// ApplyCandidateRequest is the payload of POST /api/elections/{id}/candidates.
type ApplyCandidateRequest struct {
	Position    string `json:"position" validate:"required,max=100"`
	Manifesto   string `json:"manifesto" validate:"required,max=5000"`
	ImageRef    string `json:"image_ref" validate:"omitempty,max=500"`
	DisplayName string `json:"display_name" validate:"omitempty,max=200"`
}

// UpdateCandidateRequest edits a pending application.
type UpdateCandidateRequest struct {
	Manifesto *string `json:"manifesto" validate:"omitempty,max=5000"`
	ImageRef  *string `json:"image_ref" validate:"omitempty,max=500"`
}

// RejectCandidateRequest carries the optional reviewer reason.
type RejectCandidateRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// CastVoteRequest is the payload of POST /api/elections/{id}/votes.
type CastVoteRequest struct {
	CandidateID string `json:"candidate_id" validate:"required,max=64"`
}

// VoteStatus answers hasVoted and getUserVote together.
type VoteStatus struct {
	HasVoted    bool    `json:"has_voted"`
	CandidateID *string `json:"candidate_id"`
}

// ElectionPage is one page of ListElections.
type ElectionPage struct {
	Items      []Election        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}
