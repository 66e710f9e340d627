package rbac

import "strings"

// Role is one of the fixed campus roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
)

// ParseRole normalises a stored or submitted role name.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleFaculty:
		return RoleFaculty, true
	case RoleStudent:
		return RoleStudent, true
	default:
		return "", false
	}
}

// ResourceKind names the resource a capability set applies to.
type ResourceKind string

const (
	KindElection  ResourceKind = "election"
	KindCandidate ResourceKind = "candidate"
	KindVote      ResourceKind = "vote"
)

// Action is a single capability name.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionVote    Action = "vote"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Capabilities is the resolved boolean capability set.
type Capabilities struct {
	Create  bool `json:"create"`
	Read    bool `json:"read"`
	Update  bool `json:"update"`
	Delete  bool `json:"delete"`
	Vote    bool `json:"vote"`
	Approve bool `json:"approve"`
	Reject  bool `json:"reject"`
}

// Allows reports whether the named action is granted.
func (c Capabilities) Allows(a Action) bool {
	switch a {
	case ActionCreate:
		return c.Create
	case ActionRead:
		return c.Read
	case ActionUpdate:
		return c.Update
	case ActionDelete:
		return c.Delete
	case ActionVote:
		return c.Vote
	case ActionApprove:
		return c.Approve
	case ActionReject:
		return c.Reject
	default:
		return false
	}
}

// Record carries the ownership and status facts some rules depend on.
//
// OwnerID is the election creator, the candidate applicant or the voter,
// depending on the kind. ElectionOwnerID is only meaningful for candidates.
type Record struct {
	OwnerID         string
	ElectionOwnerID string
	Status          string
	Public          bool
}

// Principal describes the authenticated actor.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

// Can resolves the principal's capabilities and tests one action.
func (p Principal) Can(kind ResourceKind, rec *Record, a Action) bool {
	return Resolve(p.Role, kind, rec, p.ID).Allows(a)
}
