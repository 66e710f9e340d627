// Package gql exposes a read-only GraphQL view over elections.
package gql

import (
	"context"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"github.com/odyssey-erp/odyssey-campus/internal/elections"
	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// Reader is the subset of the elections service the schema resolves against.
type Reader interface {
	ListElections(ctx context.Context, actor rbac.Principal, input elections.ListElectionsInput) (elections.ElectionPage, error)
	GetElection(ctx context.Context, actor rbac.Principal, id string) (elections.Election, error)
	ListCandidates(ctx context.Context, actor rbac.Principal, electionID string) ([]elections.Candidate, error)
	GetResults(ctx context.Context, actor rbac.Principal, electionID string) (elections.Results, error)
}

var capabilitiesType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Capabilities",
	Fields: graphql.Fields{
		"create":  &graphql.Field{Type: graphql.Boolean},
		"read":    &graphql.Field{Type: graphql.Boolean},
		"update":  &graphql.Field{Type: graphql.Boolean},
		"delete":  &graphql.Field{Type: graphql.Boolean},
		"vote":    &graphql.Field{Type: graphql.Boolean},
		"approve": &graphql.Field{Type: graphql.Boolean},
		"reject":  &graphql.Field{Type: graphql.Boolean},
	},
})

var candidateType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Candidate",
	Fields: graphql.Fields{
		"id":            &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"applicantName": &graphql.Field{Type: graphql.String},
		"position":      &graphql.Field{Type: graphql.String},
		"manifesto":     &graphql.Field{Type: graphql.String},
		"imageRef":      &graphql.Field{Type: graphql.String},
		"status":        &graphql.Field{Type: graphql.String},
		"voteCount":     &graphql.Field{Type: graphql.Int},
		"submittedAt":   &graphql.Field{Type: graphql.DateTime},
	},
})

var resultEntryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ResultEntry",
	Fields: graphql.Fields{
		"candidateId": &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"name":        &graphql.Field{Type: graphql.String},
		"position":    &graphql.Field{Type: graphql.String},
		"voteCount":   &graphql.Field{Type: graphql.Int},
		"percentage":  &graphql.Field{Type: graphql.Float},
	},
})

var resultsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Results",
	Fields: graphql.Fields{
		"electionId":  &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"title":       &graphql.Field{Type: graphql.String},
		"totalVotes":  &graphql.Field{Type: graphql.Int},
		"entries":     &graphql.Field{Type: graphql.NewList(resultEntryType)},
		"generatedAt": &graphql.Field{Type: graphql.DateTime},
	},
})

// NewSchema builds the schema over reader.
func NewSchema(reader Reader) (graphql.Schema, error) {
	electionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Election",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":           &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
				"title":        &graphql.Field{Type: graphql.String},
				"description":  &graphql.Field{Type: graphql.String},
				"startAt":      &graphql.Field{Type: graphql.DateTime},
				"endAt":        &graphql.Field{Type: graphql.DateTime},
				"status":       &graphql.Field{Type: graphql.String},
				"positions":    &graphql.Field{Type: graphql.NewList(graphql.String)},
				"isPublic":     &graphql.Field{Type: graphql.Boolean},
				"voteCount":    &graphql.Field{Type: graphql.Int},
				"capabilities": &graphql.Field{Type: capabilitiesType},
				"candidates": &graphql.Field{
					Type: graphql.NewList(candidateType),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						src, _ := p.Source.(map[string]interface{})
						id, _ := src["id"].(string)
						actor, err := principal(p.Context)
						if err != nil {
							return nil, err
						}
						items, err := reader.ListCandidates(p.Context, actor, id)
						if err != nil {
							return nil, publicError(err)
						}
						out := make([]map[string]interface{}, 0, len(items))
						for _, c := range items {
							out = append(out, candidateMap(c))
						}
						return out, nil
					},
				},
			}
		}),
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"elections": &graphql.Field{
				Type: graphql.NewList(electionType),
				Args: graphql.FieldConfigArgument{
					"status":  &graphql.ArgumentConfig{Type: graphql.String},
					"page":    &graphql.ArgumentConfig{Type: graphql.Int},
					"perPage": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					actor, err := principal(p.Context)
					if err != nil {
						return nil, err
					}
					status, _ := p.Args["status"].(string)
					page, _ := p.Args["page"].(int)
					perPage, _ := p.Args["perPage"].(int)
					result, err := reader.ListElections(p.Context, actor, elections.ListElectionsInput{Status: status, Page: page, PerPage: perPage})
					if err != nil {
						return nil, publicError(err)
					}
					out := make([]map[string]interface{}, 0, len(result.Items))
					for _, e := range result.Items {
						out = append(out, electionMap(actor, e))
					}
					return out, nil
				},
			},
			"election": &graphql.Field{
				Type: electionType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					actor, err := principal(p.Context)
					if err != nil {
						return nil, err
					}
					id, _ := p.Args["id"].(string)
					e, err := reader.GetElection(p.Context, actor, id)
					if err != nil {
						return nil, publicError(err)
					}
					return electionMap(actor, e), nil
				},
			},
			"results": &graphql.Field{
				Type: resultsType,
				Args: graphql.FieldConfigArgument{
					"electionId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					actor, err := principal(p.Context)
					if err != nil {
						return nil, err
					}
					id, _ := p.Args["electionId"].(string)
					res, err := reader.GetResults(p.Context, actor, id)
					if err != nil {
						return nil, publicError(err)
					}
					return resultsMap(res), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}

// NewHandler serves the schema over HTTP. The request context must already
// carry the principal.
func NewHandler(reader Reader) (http.Handler, error) {
	schema, err := NewSchema(reader)
	if err != nil {
		return nil, err
	}
	return handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   false,
		GraphiQL: false,
	}), nil
}

func principal(ctx context.Context) (rbac.Principal, error) {
	p, ok := rbac.PrincipalFromContext(ctx)
	if !ok {
		return rbac.Principal{}, shared.ErrUnauthorized
	}
	return p, nil
}

type safeError string

func (e safeError) Error() string { return string(e) }

// publicError hides internal details the same way the JSON API does.
func publicError(err error) error {
	return safeError(shared.UserSafeMessage(err))
}

func electionMap(actor rbac.Principal, e elections.Election) map[string]interface{} {
	caps := rbac.Resolve(actor.Role, rbac.KindElection, e.Record(), actor.ID)
	return map[string]interface{}{
		"id":          e.ID,
		"title":       e.Title,
		"description": e.Description,
		"startAt":     e.StartAt,
		"endAt":       e.EndAt,
		"status":      string(e.Status),
		"positions":   e.Positions,
		"isPublic":    e.IsPublic,
		"voteCount":   int(e.VoteCount),
		"capabilities": map[string]interface{}{
			"create":  caps.Create,
			"read":    caps.Read,
			"update":  caps.Update,
			"delete":  caps.Delete,
			"vote":    caps.Vote,
			"approve": caps.Approve,
			"reject":  caps.Reject,
		},
	}
}

func candidateMap(c elections.Candidate) map[string]interface{} {
	return map[string]interface{}{
		"id":            c.ID,
		"applicantName": c.ApplicantName,
		"position":      c.Position,
		"manifesto":     c.Manifesto,
		"imageRef":      c.ImageRef,
		"status":        string(c.Status),
		"voteCount":     int(c.VoteCount),
		"submittedAt":   c.SubmittedAt,
	}
}

func resultsMap(r elections.Results) map[string]interface{} {
	entries := make([]map[string]interface{}, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, map[string]interface{}{
			"candidateId": e.CandidateID,
			"name":        e.Name,
			"position":    e.Position,
			"voteCount":   int(e.VoteCount),
			"percentage":  e.Percentage,
		})
	}
	return map[string]interface{}{
		"electionId":  r.ElectionID,
		"title":       r.Title,
		"totalVotes":  int(r.TotalVotes),
		"entries":     entries,
		"generatedAt": r.GeneratedAt,
	}
}
