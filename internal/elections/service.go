package elections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// ResultsCache memoises results of completed elections.
type ResultsCache interface {
	Fetch(ctx context.Context, electionID string, loader func(context.Context) (Results, error)) (Results, error)
	Invalidate(ctx context.Context, electionID string) error
}

// VoteObserver is notified of every vote attempt outcome.
type VoteObserver interface {
	ObserveVote(outcome string)
}

// ServiceConfig collects optional collaborators.
type ServiceConfig struct {
	Audit   shared.AuditSink
	Cache   ResultsCache
	Metrics VoteObserver
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Service orchestrates election, candidate and vote flows.
type Service struct {
	store   Store
	audit   shared.AuditSink
	cache   ResultsCache
	metrics VoteObserver
	logger  *slog.Logger
	clock   func() time.Time
}

// NewService constructs the elections service.
func NewService(store Store, cfg ServiceConfig) *Service {
	s := &Service{
		store:   store,
		audit:   cfg.Audit,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// ListElections returns elections visible to the actor, newest first.
func (s *Service) ListElections(ctx context.Context, actor rbac.Principal, input ListElectionsInput) (ElectionPage, error) {
	filter := ElectionFilter{PublicOnly: actor.Role != rbac.RoleAdmin && actor.Role != rbac.RoleFaculty}
	if input.Status != "" {
		status, ok := ParseStatus(input.Status)
		if !ok {
			return ElectionPage{}, shared.NewValidationError(map[string]string{"status": "must be one of: upcoming active completed cancelled"})
		}
		filter.Status = status
	}
	page, perPage := shared.NormalizePage(input.Page, input.PerPage)
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	items, total, err := s.store.ListElections(ctx, filter)
	if err != nil {
		return ElectionPage{}, fmt.Errorf("list elections: %w", err)
	}
	if items == nil {
		items = []Election{}
	}
	return ElectionPage{Items: items, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// GetElection returns an election the actor may read.
func (s *Service) GetElection(ctx context.Context, actor rbac.Principal, id string) (Election, error) {
	return s.visibleElection(ctx, actor, id)
}

// CreateElection stores a new upcoming election owned by the actor.
func (s *Service) CreateElection(ctx context.Context, actor rbac.Principal, req CreateElectionRequest) (Election, error) {
	if !actor.Can(rbac.KindElection, nil, rbac.ActionCreate) {
		return Election{}, fmt.Errorf("create election: %w", shared.ErrPermissionDenied)
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validateStruct(req, positionErrors(req.Positions)); err != nil {
		return Election{}, err
	}
	now := s.clock()
	election := Election{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		StartAt:     req.StartAt.UTC(),
		EndAt:       req.EndAt.UTC(),
		Status:      StatusUpcoming,
		Positions:   cleanPositions(req.Positions),
		IsPublic:    req.IsPublic == nil || *req.IsPublic,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateElection(ctx, election); err != nil {
		return Election{}, fmt.Errorf("create election: %w", err)
	}
	s.recordAudit(ctx, actor.ID, shared.AuditElectionCreate, "election", election.ID, map[string]any{"title": election.Title})
	return election, nil
}

// UpdateElection applies a partial update. Schedule and positions are only
// editable while upcoming; status moves follow Status.CanTransitionTo.
func (s *Service) UpdateElection(ctx context.Context, actor rbac.Principal, id string, req UpdateElectionRequest) (Election, error) {
	election, err := s.visibleElection(ctx, actor, id)
	if err != nil {
		return Election{}, err
	}
	if !actor.Can(rbac.KindElection, election.Record(), rbac.ActionUpdate) {
		return Election{}, fmt.Errorf("update election: %w", shared.ErrPermissionDenied)
	}

	extra := map[string]string{}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		extra["title"] = "is required"
	}
	if req.Positions != nil {
		if len(req.Positions) == 0 {
			extra["positions"] = "must have at least 1 entries"
		} else {
			for k, v := range positionErrors(req.Positions) {
				extra[k] = v
			}
		}
	}
	if err := validateStruct(req, extra); err != nil {
		return Election{}, err
	}

	if election.Status.Terminal() {
		return Election{}, fmt.Errorf("update election: %w: election is %s", shared.ErrInvalidState, election.Status)
	}
	if req.touchesSchedule() && election.Status != StatusUpcoming {
		return Election{}, fmt.Errorf("update election: %w: schedule and positions are fixed once voting opens", shared.ErrInvalidState)
	}

	updated := election.clone()
	if req.Title != nil {
		updated.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.StartAt != nil {
		updated.StartAt = req.StartAt.UTC()
	}
	if req.EndAt != nil {
		updated.EndAt = req.EndAt.UTC()
	}
	if req.Positions != nil {
		updated.Positions = cleanPositions(req.Positions)
	}
	if req.IsPublic != nil {
		updated.IsPublic = *req.IsPublic
	}
	if !updated.EndAt.After(updated.StartAt) {
		return Election{}, shared.NewValidationError(map[string]string{"end_at": "must be after start_at"})
	}
	if req.Positions != nil {
		if err := s.ensurePositionsCovered(ctx, updated); err != nil {
			return Election{}, err
		}
	}

	var next Status
	if req.Status != nil {
		next, _ = ParseStatus(*req.Status)
		if next != election.Status && !election.Status.CanTransitionTo(next) {
			return Election{}, fmt.Errorf("update election: %w: cannot move from %s to %s", shared.ErrInvalidState, election.Status, next)
		}
	}

	updated.UpdatedAt = s.clock()
	if next != "" {
		updated.Status = next
	}
	if err := s.store.UpdateElection(ctx, updated, election.Status); err != nil {
		return Election{}, fmt.Errorf("update election: %w", err)
	}
	if updated.Status != election.Status {
		s.recordAudit(ctx, actor.ID, shared.AuditElectionStatus, "election", id, map[string]any{"from": election.Status, "to": updated.Status})
		s.afterTransition(ctx, updated)
	}
	s.recordAudit(ctx, actor.ID, shared.AuditElectionUpdate, "election", id, nil)
	return updated, nil
}

// DeleteElection removes an election that has not received votes.
func (s *Service) DeleteElection(ctx context.Context, actor rbac.Principal, id string) error {
	election, err := s.visibleElection(ctx, actor, id)
	if err != nil {
		return err
	}
	if !actor.Can(rbac.KindElection, election.Record(), rbac.ActionDelete) {
		return fmt.Errorf("delete election: %w", shared.ErrPermissionDenied)
	}
	if election.VoteCount > 0 {
		return fmt.Errorf("delete election: %w: election has votes", shared.ErrConflict)
	}
	if err := s.store.DeleteElection(ctx, id); err != nil {
		return fmt.Errorf("delete election: %w", err)
	}
	s.recordAudit(ctx, actor.ID, shared.AuditElectionDelete, "election", id, map[string]any{"title": election.Title})
	return nil
}

// Capabilities resolves what the actor may do with the election.
func (s *Service) Capabilities(actor rbac.Principal, e Election) rbac.Capabilities {
	return rbac.Resolve(actor.Role, rbac.KindElection, e.Record(), actor.ID)
}

// visibleElection loads an election, hiding it as not found when the actor
// may not read it.
func (s *Service) visibleElection(ctx context.Context, actor rbac.Principal, id string) (Election, error) {
	if strings.TrimSpace(id) == "" {
		return Election{}, fmt.Errorf("election: %w", shared.ErrNotFound)
	}
	election, err := s.store.GetElection(ctx, id)
	if err != nil {
		return Election{}, fmt.Errorf("election %s: %w", id, err)
	}
	if !actor.Can(rbac.KindElection, election.Record(), rbac.ActionRead) {
		return Election{}, fmt.Errorf("election %s: %w", id, shared.ErrNotFound)
	}
	return election, nil
}

// ensurePositionsCovered refuses to drop a position that already has
// applications.
func (s *Service) ensurePositionsCovered(ctx context.Context, e Election) error {
	candidates, err := s.store.ListCandidates(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("update election: %w", err)
	}
	for _, c := range candidates {
		if _, ok := e.Position(c.Position); !ok {
			return fmt.Errorf("update election: %w: position %q has applications", shared.ErrConflict, c.Position)
		}
	}
	return nil
}

// afterTransition warms the results cache once an election completes.
func (s *Service) afterTransition(ctx context.Context, e Election) {
	if e.Status != StatusCompleted || s.cache == nil {
		return
	}
	if _, err := s.cache.Fetch(ctx, e.ID, func(ctx context.Context) (Results, error) {
		return s.computeFromStore(ctx, e)
	}); err != nil {
		s.logger.Warn("warm results cache", slog.String("election_id", e.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta, At: s.clock()}); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
