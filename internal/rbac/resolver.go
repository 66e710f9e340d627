package rbac

// candidatePending mirrors the candidate workflow's initial status.
const candidatePending = "pending"

// Resolve maps (role, kind, record, actor) to a capability set. It is pure:
// the same input always yields the same output and nothing is read from
// storage. Unknown roles or kinds resolve to no capabilities. A nil record
// means no ownership facts are known, so ownership-gated actions are denied.
func Resolve(role Role, kind ResourceKind, rec *Record, actorID string) Capabilities {
	switch kind {
	case KindElection:
		return resolveElection(role, rec, actorID)
	case KindCandidate:
		return resolveCandidate(role, rec, actorID)
	case KindVote:
		return resolveVote(role, rec, actorID)
	default:
		return Capabilities{}
	}
}

func resolveElection(role Role, rec *Record, actorID string) Capabilities {
	visible := rec == nil || rec.Public
	switch role {
	case RoleAdmin:
		return Capabilities{Create: true, Read: true, Update: true, Delete: true}
	case RoleFaculty:
		owner := owns(rec, actorID)
		return Capabilities{Create: true, Read: true, Update: owner, Delete: owner, Vote: true}
	case RoleStudent:
		return Capabilities{Read: visible, Vote: visible}
	default:
		return Capabilities{}
	}
}

func resolveCandidate(role Role, rec *Record, actorID string) Capabilities {
	switch role {
	case RoleAdmin:
		return Capabilities{Read: true, Update: true, Delete: true, Approve: true, Reject: true}
	case RoleFaculty:
		manages := rec != nil && actorID != "" && rec.ElectionOwnerID == actorID
		return Capabilities{Read: true, Update: manages, Approve: manages, Reject: manages}
	case RoleStudent:
		editable := owns(rec, actorID) && rec.Status == candidatePending
		return Capabilities{Create: true, Read: true, Update: editable, Delete: editable}
	default:
		return Capabilities{}
	}
}

func resolveVote(role Role, rec *Record, actorID string) Capabilities {
	switch role {
	case RoleAdmin:
		return Capabilities{Read: true}
	case RoleFaculty, RoleStudent:
		return Capabilities{Create: true, Read: owns(rec, actorID)}
	default:
		return Capabilities{}
	}
}

func owns(rec *Record, actorID string) bool {
	return rec != nil && actorID != "" && rec.OwnerID == actorID
}
