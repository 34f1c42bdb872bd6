package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tideform/be-form-reviews/internal/apperrors"
	"github.com/tideform/be-form-reviews/internal/repository"
	"github.com/tideform/be-form-reviews/internal/service"
)

// Identity headers supplied by the upstream auth proxy. This service does no
// authentication of its own.
const (
	headerUserID           = "X-User-Id"
	headerImpersonatorID   = "X-Impersonator-Id"
	headerImpersonatorName = "X-Impersonator-Name"
)

// ReviewService is the slice of the service layer the HTTP surface wraps.
type ReviewService interface {
	CreateSubmission(ctx context.Context, flowID string, response map[string]any, actor service.ActorContext) (*repository.Submission, error)
	GetSubmission(ctx context.Context, id string) (*repository.Submission, error)
	DeleteSubmission(ctx context.Context, id string) error
	ApplyDecision(ctx context.Context, submissionID string, decision service.Decision, actor service.ActorContext) (*service.DecisionResult, error)
	ResolveReviewers(ctx context.Context, stageID string) ([]string, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]*repository.ReviewEntry, error)
	ListByReviewer(ctx context.Context, reviewerID string, filter repository.ReviewFilter, page, pageSize int) ([]*repository.ReviewEntry, int, error)
	ListPendingForReviewer(ctx context.Context, reviewerID string) ([]*repository.Submission, error)
}

// TemplateAdmin is the administrative template surface.
type TemplateAdmin interface {
	GetOrderedStages(ctx context.Context, flowID string) ([]*repository.Stage, error)
	ReorderStages(ctx context.Context, flowID string, orderedStageIDs []string) error
}

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	svc   ReviewService
	flows TemplateAdmin
	log   zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc ReviewService, flows TemplateAdmin, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, flows: flows, log: log}
}

// Routes mounts all API routes on a chi router.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/submissions", func(api chi.Router) {
		api.Post("/", h.CreateSubmission)
		api.Get("/{id}", h.GetSubmission)
		api.Delete("/{id}", h.DeleteSubmission)
		api.Post("/{id}/decision", h.Decide)
		api.Get("/{id}/reviews", h.ListSubmissionReviews)
	})
	r.Get("/reviews", h.ListReviewerEntries)
	r.Get("/stages/{id}/reviewers", h.StageReviewers)
	r.Get("/flows/{id}/stages", h.FlowStages)
	r.Put("/flows/{id}/stage-order", h.ReorderStages)
	r.Get("/reviewers/{id}/pending", h.PendingForReviewer)

	return r
}

// CreateSubmission handles create submission requests.
func (h *HTTPHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FlowID   string         `json:"flow_id"`
		Response map[string]any `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}
	if req.FlowID == "" {
		h.writeError(w, r, apperrors.InvalidInput("flow_id", "flow id is required"))
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sub, err := h.svc.CreateSubmission(r.Context(), req.FlowID, req.Response, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sub)
}

// GetSubmission handles get submission requests.
func (h *HTTPHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}

// DeleteSubmission handles soft-delete requests.
func (h *HTTPHandler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSubmission(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Decide handles decision requests for a submission's current stage.
func (h *HTTPHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind         string `json:"kind"`
		Reason       string `json:"reason"`
		TargetStatus string `json:"target_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	decision := service.Decision{
		Kind:         service.DecisionKind(req.Kind),
		Reason:       req.Reason,
		TargetStatus: repository.SubmissionStatus(req.TargetStatus),
	}

	result, err := h.svc.ApplyDecision(r.Context(), chi.URLParam(r, "id"), decision, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListSubmissionReviews handles ledger reads for one submission.
func (h *HTTPHandler) ListSubmissionReviews(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListBySubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*repository.ReviewEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reviews": entries})
}

// ListReviewerEntries handles paged ledger reads for one reviewer.
func (h *HTTPHandler) ListReviewerEntries(w http.ResponseWriter, r *http.Request) {
	reviewerID := r.URL.Query().Get("reviewer_id")
	if reviewerID == "" {
		h.writeError(w, r, apperrors.InvalidInput("reviewer_id", "reviewer id is required"))
		return
	}

	var filter repository.ReviewFilter
	if v := r.URL.Query().Get("action"); v != "" {
		action := repository.ReviewAction(v)
		filter.Action = &action
	}
	if v := r.URL.Query().Get("stage_id"); v != "" {
		stageID := v
		filter.StageID = &stageID
	}
	if v := r.URL.Query().Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, apperrors.InvalidInput("from", "must be RFC 3339"))
			return
		}
		filter.From = &from
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, r, apperrors.InvalidInput("to", "must be RFC 3339"))
			return
		}
		filter.To = &to
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	entries, total, err := h.svc.ListByReviewer(r.Context(), reviewerID, filter, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*repository.ReviewEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"reviews":  entries,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// StageReviewers handles reviewer-set resolution requests.
func (h *HTTPHandler) StageReviewers(w http.ResponseWriter, r *http.Request) {
	reviewers, err := h.svc.ResolveReviewers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if reviewers == nil {
		reviewers = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reviewers": reviewers})
}

// FlowStages handles ordered stage listing for a flow.
func (h *HTTPHandler) FlowStages(w http.ResponseWriter, r *http.Request) {
	stages, err := h.flows.GetOrderedStages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if stages == nil {
		stages = []*repository.Stage{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

// ReorderStages handles administrative stage reordering.
func (h *HTTPHandler) ReorderStages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StageIDs []string `json:"stage_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.flows.ReorderStages(r.Context(), chi.URLParam(r, "id"), req.StageIDs); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

// PendingForReviewer handles reviewer work-queue requests.
func (h *HTTPHandler) PendingForReviewer(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.ListPendingForReviewer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pending == nil {
		pending = []*repository.Submission{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"submissions": pending})
}

// ── helpers ───────────────────────────────────────────────────────────────────

// actorFromRequest builds the ActorContext from upstream-auth headers.
func actorFromRequest(r *http.Request) (service.ActorContext, error) {
	actorID := r.Header.Get(headerUserID)
	if actorID == "" {
		return service.ActorContext{}, apperrors.InvalidInput(headerUserID, "acting user header is required")
	}

	actor := service.ActorContext{ActorID: actorID}
	if impID := r.Header.Get(headerImpersonatorID); impID != "" {
		actor.IsImpersonating = true
		actor.ImpersonatorID = impID
		actor.ImpersonatorName = r.Header.Get(headerImpersonatorName)
	}
	return actor, nil
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := statusForCode(code)

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}

func statusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeInvalidTransition, apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
