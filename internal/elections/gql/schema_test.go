package gql_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	"github.com/odyssey-erp/odyssey-campus/internal/elections/gql"
	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
)

var (
	owner   = rbac.Principal{ID: "fac-1", Role: rbac.RoleFaculty}
	student = rbac.Principal{ID: "stu-1", Role: rbac.RoleStudent, Name: "Alice"}
)

func seed(t *testing.T) (*elections.Service, elections.Election) {
	t.Helper()
	svc := elections.NewService(elections.NewMemoryStore(), elections.ServiceConfig{})
	ctx := context.Background()
	now := time.Now().UTC()
	e, err := svc.CreateElection(ctx, owner, elections.CreateElectionRequest{
		Title:     "Council",
		StartAt:   now.Add(time.Hour),
		EndAt:     now.Add(2 * time.Hour),
		Positions: []string{"President"},
	})
	require.NoError(t, err)
	c, err := svc.ApplyCandidate(ctx, student, e.ID, elections.ApplyCandidateRequest{Position: "President", Manifesto: "Plan"})
	require.NoError(t, err)
	_, err = svc.ApproveCandidate(ctx, owner, c.ID)
	require.NoError(t, err)
	return svc, e
}

func TestSchemaResolvesElectionWithCandidates(t *testing.T) {
	svc, e := seed(t)
	schema, err := gql.NewSchema(svc)
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  `query($id: ID!) { election(id: $id) { title status capabilities { vote update } candidates { applicantName status } } }`,
		VariableValues: map[string]interface{}{"id": e.ID},
		Context:        rbac.ContextWithPrincipal(context.Background(), student),
	})
	require.Empty(t, result.Errors)

	raw, err := json.Marshal(result.Data)
	require.NoError(t, err)
	var data struct {
		Election struct {
			Title        string `json:"title"`
			Status       string `json:"status"`
			Capabilities struct {
				Vote   bool `json:"vote"`
				Update bool `json:"update"`
			} `json:"capabilities"`
			Candidates []struct {
				ApplicantName string `json:"applicantName"`
				Status        string `json:"status"`
			} `json:"candidates"`
		} `json:"election"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "Council", data.Election.Title)
	assert.Equal(t, "upcoming", data.Election.Status)
	assert.True(t, data.Election.Capabilities.Vote)
	assert.False(t, data.Election.Capabilities.Update)
	require.Len(t, data.Election.Candidates, 1)
	assert.Equal(t, "Alice", data.Election.Candidates[0].ApplicantName)
}

func TestSchemaResultsRequireCompletion(t *testing.T) {
	svc, e := seed(t)
	schema, err := gql.NewSchema(svc)
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ results(electionId: "` + e.ID + `") { totalVotes } }`,
		Context:       rbac.ContextWithPrincipal(context.Background(), owner),
	})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "invalid state")
}

func TestHandlerRejectsAnonymous(t *testing.T) {
	svc, _ := seed(t)
	h, err := gql.NewHandler(svc)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"query": `{ elections { id } }`})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, "unauthorized", resp.Errors[0].Message)
}
