package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveElection(t *testing.T) {
	owned := &Record{OwnerID: "fac-1", Public: true}
	hidden := &Record{OwnerID: "fac-1", Public: false}

	cases := []struct {
		name  string
		role  Role
		rec   *Record
		actor string
		want  Capabilities
	}{
		{"admin", RoleAdmin, owned, "adm", Capabilities{Create: true, Read: true, Update: true, Delete: true}},
		{"faculty owner", RoleFaculty, owned, "fac-1", Capabilities{Create: true, Read: true, Update: true, Delete: true, Vote: true}},
		{"faculty other", RoleFaculty, owned, "fac-2", Capabilities{Create: true, Read: true, Vote: true}},
		{"faculty no record", RoleFaculty, nil, "fac-1", Capabilities{Create: true, Read: true, Vote: true}},
		{"student public", RoleStudent, owned, "stu", Capabilities{Read: true, Vote: true}},
		{"student hidden", RoleStudent, hidden, "stu", Capabilities{}},
		{"unknown role", Role("janitor"), owned, "x", Capabilities{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.role, KindElection, tc.rec, tc.actor))
		})
	}
}

func TestResolveCandidate(t *testing.T) {
	pending := &Record{OwnerID: "stu-1", ElectionOwnerID: "fac-1", Status: "pending"}
	approved := &Record{OwnerID: "stu-1", ElectionOwnerID: "fac-1", Status: "approved"}

	admin := Resolve(RoleAdmin, KindCandidate, approved, "adm")
	assert.True(t, admin.Approve)
	assert.True(t, admin.Reject)
	assert.False(t, admin.Create)

	managing := Resolve(RoleFaculty, KindCandidate, pending, "fac-1")
	assert.True(t, managing.Approve)
	assert.True(t, managing.Update)
	assert.False(t, managing.Delete)

	otherFaculty := Resolve(RoleFaculty, KindCandidate, pending, "fac-2")
	assert.Equal(t, Capabilities{Read: true}, otherFaculty)

	ownPending := Resolve(RoleStudent, KindCandidate, pending, "stu-1")
	assert.Equal(t, Capabilities{Create: true, Read: true, Update: true, Delete: true}, ownPending)

	ownApproved := Resolve(RoleStudent, KindCandidate, approved, "stu-1")
	assert.Equal(t, Capabilities{Create: true, Read: true}, ownApproved)

	stranger := Resolve(RoleStudent, KindCandidate, pending, "stu-2")
	assert.False(t, stranger.Update)
	assert.False(t, stranger.Approve)
}

func TestResolveVote(t *testing.T) {
	own := &Record{OwnerID: "stu-1"}
	assert.Equal(t, Capabilities{Read: true}, Resolve(RoleAdmin, KindVote, own, "adm"))
	assert.Equal(t, Capabilities{Create: true, Read: true}, Resolve(RoleStudent, KindVote, own, "stu-1"))
	assert.Equal(t, Capabilities{Create: true}, Resolve(RoleFaculty, KindVote, own, "fac-1"))
	assert.Equal(t, Capabilities{}, Resolve(RoleStudent, ResourceKind("budget"), own, "stu-1"))
}

func TestResolveIsDeterministic(t *testing.T) {
	rec := &Record{OwnerID: "fac-1", ElectionOwnerID: "fac-1", Status: "pending", Public: true}
	for _, role := range []Role{RoleAdmin, RoleFaculty, RoleStudent} {
		for _, kind := range []ResourceKind{KindElection, KindCandidate, KindVote} {
			first := Resolve(role, kind, rec, "fac-1")
			for i := 0; i < 5; i++ {
				require.Equal(t, first, Resolve(role, kind, rec, "fac-1"))
			}
		}
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Faculty ")
	require.True(t, ok)
	assert.Equal(t, RoleFaculty, role)
	_, ok = ParseRole("staff")
	assert.False(t, ok)
}

func TestRequireRole(t *testing.T) {
	m := Middleware{}
	handler := m.RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	anon := httptest.NewRecorder()
	handler.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, anon.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{ID: "stu", Role: RoleStudent}))
	denied := httptest.NewRecorder()
	handler.ServeHTTP(denied, req)
	assert.Equal(t, http.StatusForbidden, denied.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), Principal{ID: "adm", Role: RoleAdmin}))
	allowed := httptest.NewRecorder()
	handler.ServeHTTP(allowed, req)
	assert.Equal(t, http.StatusNoContent, allowed.Code)
}
