package elections

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-campus/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-campus/internal/rbac"
	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// Handler exposes the elections JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers election, candidate and vote routes. Callers
// authenticate the group beforehand.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/elections", func(r chi.Router) {
		r.Get("/", h.listElections)
		r.Post("/", h.createElection)
		r.Route("/{electionID}", func(r chi.Router) {
			r.Get("/", h.getElection)
			r.Patch("/", h.updateElection)
			r.Delete("/", h.deleteElection)
			r.Get("/candidates", h.listCandidates)
			r.Post("/candidates", h.applyCandidate)
			r.Post("/votes", h.castVote)
			r.Get("/votes/me", h.voteStatus)
			r.Get("/results", h.results)
		})
	})
	r.Route("/candidates/{candidateID}", func(r chi.Router) {
		r.Patch("/", h.updateCandidate)
		r.Delete("/", h.withdrawCandidate)
		r.Post("/approve", h.approveCandidate)
		r.Post("/reject", h.rejectCandidate)
	})
}

type electionView struct {
	Election     Election          `json:"election"`
	Capabilities rbac.Capabilities `json:"capabilities"`
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
	}
	return p, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) listElections(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	result, err := h.service.ListElections(r.Context(), actor, ListElectionsInput{
		Status:  q.Get("status"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.fail(w, r, "list elections", err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) createElection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateElectionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "create election", err)
		return
	}
	election, err := h.service.CreateElection(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, "create election", err)
		return
	}
	httpx.OK(w, http.StatusCreated, election)
}

func (h *Handler) getElection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	election, err := h.service.GetElection(r.Context(), actor, chi.URLParam(r, "electionID"))
	if err != nil {
		h.fail(w, r, "get election", err)
		return
	}
	httpx.OK(w, http.StatusOK, electionView{Election: election, Capabilities: h.service.Capabilities(actor, election)})
}

func (h *Handler) updateElection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req UpdateElectionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "update election", err)
		return
	}
	election, err := h.service.UpdateElection(r.Context(), actor, chi.URLParam(r, "electionID"), req)
	if err != nil {
		h.fail(w, r, "update election", err)
		return
	}
	httpx.OK(w, http.StatusOK, election)
}

func (h *Handler) deleteElection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteElection(r.Context(), actor, chi.URLParam(r, "electionID")); err != nil {
		h.fail(w, r, "delete election", err)
		return
	}
	httpx.Message(w, http.StatusOK, "election deleted")
}

func (h *Handler) listCandidates(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListCandidates(r.Context(), actor, chi.URLParam(r, "electionID"))
	if err != nil {
		h.fail(w, r, "list candidates", err)
		return
	}
	httpx.OK(w, http.StatusOK, items)
}

func (h *Handler) applyCandidate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ApplyCandidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "apply candidate", err)
		return
	}
	candidate, err := h.service.ApplyCandidate(r.Context(), actor, chi.URLParam(r, "electionID"), req)
	if err != nil {
		h.fail(w, r, "apply candidate", err)
		return
	}
	httpx.OK(w, http.StatusCreated, candidate)
}

func (h *Handler) updateCandidate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req UpdateCandidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "update candidate", err)
		return
	}
	candidate, err := h.service.UpdateCandidate(r.Context(), actor, chi.URLParam(r, "candidateID"), req)
	if err != nil {
		h.fail(w, r, "update candidate", err)
		return
	}
	httpx.OK(w, http.StatusOK, candidate)
}

func (h *Handler) withdrawCandidate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.service.WithdrawCandidate(r.Context(), actor, chi.URLParam(r, "candidateID")); err != nil {
		h.fail(w, r, "withdraw candidate", err)
		return
	}
	httpx.Message(w, http.StatusOK, "application withdrawn")
}

func (h *Handler) approveCandidate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	candidate, err := h.service.ApproveCandidate(r.Context(), actor, chi.URLParam(r, "candidateID"))
	if err != nil {
		h.fail(w, r, "approve candidate", err)
		return
	}
	httpx.OK(w, http.StatusOK, candidate)
}

func (h *Handler) rejectCandidate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req RejectCandidateRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, "reject candidate", err)
			return
		}
	}
	candidate, err := h.service.RejectCandidate(r.Context(), actor, chi.URLParam(r, "candidateID"), req)
	if err != nil {
		h.fail(w, r, "reject candidate", err)
		return
	}
	httpx.OK(w, http.StatusOK, candidate)
}

func (h *Handler) castVote(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CastVoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "cast vote", err)
		return
	}
	vote, err := h.service.CastVote(r.Context(), actor, chi.URLParam(r, "electionID"), req)
	if err != nil {
		h.fail(w, r, "cast vote", err)
		return
	}
	httpx.OK(w, http.StatusCreated, vote)
}

func (h *Handler) voteStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	status, err := h.service.VoteStatus(r.Context(), actor, chi.URLParam(r, "electionID"))
	if err != nil {
		h.fail(w, r, "vote status", err)
		return
	}
	httpx.OK(w, http.StatusOK, status)
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	results, err := h.service.GetResults(r.Context(), actor, chi.URLParam(r, "electionID"))
	if err != nil {
		h.fail(w, r, "results", err)
		return
	}
	httpx.OK(w, http.StatusOK, results)
}
