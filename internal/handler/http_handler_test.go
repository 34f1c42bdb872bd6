package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideform/be-form-reviews/internal/apperrors"
	"github.com/tideform/be-form-reviews/internal/repository"
	"github.com/tideform/be-form-reviews/internal/service"
)

// stubService returns canned results and captures what the handler passed in.
type stubService struct {
	lastActor    service.ActorContext
	lastDecision service.Decision
	applyErr     error
}

func (s *stubService) CreateSubmission(_ context.Context, flowID string, _ map[string]any, actor service.ActorContext) (*repository.Submission, error) {
	s.lastActor = actor
	return &repository.Submission{ID: "sub-1", FlowID: flowID, Status: repository.StatusPending}, nil
}

func (s *stubService) GetSubmission(_ context.Context, id string) (*repository.Submission, error) {
	if id != "sub-1" {
		return nil, apperrors.NotFound("submission", id)
	}
	return &repository.Submission{ID: "sub-1", Status: repository.StatusPending}, nil
}

func (s *stubService) DeleteSubmission(context.Context, string) error { return nil }

func (s *stubService) ApplyDecision(_ context.Context, _ string, decision service.Decision, actor service.ActorContext) (*service.DecisionResult, error) {
	s.lastActor = actor
	s.lastDecision = decision
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	return &service.DecisionResult{Status: repository.StatusPending, StagePosition: 1}, nil
}

func (s *stubService) ResolveReviewers(context.Context, string) ([]string, error) {
	return []string{"alice"}, nil
}

func (s *stubService) ListBySubmission(context.Context, string) ([]*repository.ReviewEntry, error) {
	return nil, nil
}

func (s *stubService) ListByReviewer(context.Context, string, repository.ReviewFilter, int, int) ([]*repository.ReviewEntry, int, error) {
	return nil, 0, nil
}

func (s *stubService) ListPendingForReviewer(context.Context, string) ([]*repository.Submission, error) {
	return nil, nil
}

type stubTemplates struct{}

func (stubTemplates) GetOrderedStages(context.Context, string) ([]*repository.Stage, error) {
	return nil, nil
}

func (stubTemplates) ReorderStages(context.Context, string, []string) error { return nil }

func newTestHandler(svc ReviewService) http.Handler {
	h := NewHTTPHandler(svc, stubTemplates{}, zerolog.Nop())
	return h.Routes()
}

func TestDecideParsesActorAndDecision(t *testing.T) {
	stub := &stubService{}
	h := newTestHandler(stub)

	body := `{"kind":"reject","reason":"missing totals"}`
	req := httptest.NewRequest(http.MethodPost, "/submissions/sub-1/decision", strings.NewReader(body))
	req.Header.Set("X-User-Id", "alice")
	req.Header.Set("X-Impersonator-Id", "admin-1")
	req.Header.Set("X-Impersonator-Name", "Root Admin")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.DecisionReject, stub.lastDecision.Kind)
	assert.Equal(t, "missing totals", stub.lastDecision.Reason)
	assert.Equal(t, "alice", stub.lastActor.ActorID)
	assert.True(t, stub.lastActor.IsImpersonating)
	assert.Equal(t, "admin-1", stub.lastActor.ImpersonatorID)
	assert.Equal(t, "Root Admin", stub.lastActor.ImpersonatorName)
}

func TestDecideWithoutUserHeader(t *testing.T) {
	h := newTestHandler(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/submissions/sub-1/decision", strings.NewReader(`{"kind":"approve"}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperrors.NotFound("submission", "x"), http.StatusNotFound},
		{"forbidden", apperrors.Forbidden("not a reviewer"), http.StatusForbidden},
		{"invalid transition", apperrors.InvalidTransition("terminal"), http.StatusConflict},
		{"conflict", apperrors.Conflict("lost race"), http.StatusConflict},
		{"invalid input", apperrors.InvalidInput("reason", "required"), http.StatusBadRequest},
		{"internal", apperrors.New(apperrors.ErrCodeInternal, "boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubService{applyErr: tt.err}
			h := newTestHandler(stub)

			req := httptest.NewRequest(http.MethodPost, "/submissions/sub-1/decision", strings.NewReader(`{"kind":"approve"}`))
			req.Header.Set("X-User-Id", "alice")
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), string(apperrors.CodeOf(tt.err)))
		})
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	h := newTestHandler(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/submissions/sub-404", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStageReviewersEmptyNeverNull(t *testing.T) {
	h := newTestHandler(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/submissions/sub-1/reviews", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reviews":[]`)
}
