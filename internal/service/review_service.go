package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tideform/be-form-reviews/internal/apperrors"
	"github.com/tideform/be-form-reviews/internal/repository"
)

// TemplateStore reads flow and stage templates. Implemented by
// repository.FlowRepository.
type TemplateStore interface {
	GetOrderedStages(ctx context.Context, flowID string) ([]*repository.Stage, error)
	GetStage(ctx context.Context, stageID string) (*repository.Stage, error)
}

// SubmissionStore persists submissions. ApplyTransition must write the state
// change and the ledger entry (when non-nil) as one durable unit,
// conditionally on the version the caller read.
type SubmissionStore interface {
	Create(ctx context.Context, sub *repository.Submission) error
	GetByID(ctx context.Context, id string) (*repository.Submission, error)
	ApplyTransition(ctx context.Context, sub *repository.Submission, entry *repository.ReviewEntry) error
	SoftDelete(ctx context.Context, id string) error
	ListPendingWithStage(ctx context.Context) ([]*repository.PendingSubmission, error)
}

// ReviewLedger reads the append-only decision record. Implemented by
// repository.ReviewRepository.
type ReviewLedger interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]*repository.ReviewEntry, error)
	ListByReviewer(ctx context.Context, reviewerID string, filter repository.ReviewFilter, page, pageSize int) ([]*repository.ReviewEntry, int, error)
}

// Notifier dispatches decision outcomes. Best-effort: implementations log
// and swallow failures, and the service never waits on them.
type Notifier interface {
	NotifyApproved(ctx context.Context, submissionID string, terminal bool, actor ActorContext)
	NotifyRejected(ctx context.Context, submissionID, reason string, actor ActorContext)
}

// ReviewService is the submission state machine and the only writer of
// submission state. One known audit gap is preserved deliberately: clearing
// a reject appends no ledger entry, because the source system does not treat
// clearing as a review decision.
type ReviewService struct {
	templates   TemplateStore
	submissions SubmissionStore
	ledger      ReviewLedger
	resolver    *AssignmentResolver
	notifier    Notifier
	log         zerolog.Logger
}

// NewReviewService creates a new ReviewService. notifier may be nil.
func NewReviewService(
	templates TemplateStore,
	submissions SubmissionStore,
	ledger ReviewLedger,
	resolver *AssignmentResolver,
	notifier Notifier,
	log zerolog.Logger,
) *ReviewService {
	return &ReviewService{
		templates:   templates,
		submissions: submissions,
		ledger:      ledger,
		resolver:    resolver,
		notifier:    notifier,
		log:         log,
	}
}

// ── Submission lifecycle ──────────────────────────────────────────────────────

// CreateSubmission creates a submission positioned at its flow's first
// stage, status pending. When the actor is impersonating, the original
// administrator is recorded as the authoring user.
func (s *ReviewService) CreateSubmission(
	ctx context.Context,
	flowID string,
	response map[string]any,
	actor ActorContext,
) (*repository.Submission, error) {
	stages, err := s.templates.GetOrderedStages(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, apperrors.InvalidInput("flow_id", "flow has no stages")
	}

	sub := &repository.Submission{
		FlowID:        flowID,
		Response:      response,
		StagePosition: 0,
		Status:        repository.StatusPending,
		SubmittedBy:   actor.ActorID,
		Version:       1,
	}
	if actor.IsImpersonating {
		adminID := actor.ImpersonatorID
		sub.CompletedByOtherUserID = &adminID
	}

	if err := s.submissions.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("submission_id", sub.ID).
		Str("flow_id", flowID).
		Str("submitted_by", actor.ActorID).
		Msg("Submission created")

	return sub, nil
}

// GetSubmission retrieves a live submission.
func (s *ReviewService) GetSubmission(ctx context.Context, id string) (*repository.Submission, error) {
	return s.submissions.GetByID(ctx, id)
}

// DeleteSubmission tombstones a submission; its ledger survives.
func (s *ReviewService) DeleteSubmission(ctx context.Context, id string) error {
	return s.submissions.SoftDelete(ctx, id)
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// ApplyDecision validates and applies one transition against the
// submission's current stage.
//
// Preconditions: the submission exists and is not terminal, and the actor is
// in the resolved reviewer set of the current stage. The state write is
// conditional on the version read here; a concurrent writer surfaces as a
// conflict the caller may retry from a fresh read.
func (s *ReviewService) ApplyDecision(
	ctx context.Context,
	submissionID string,
	decision Decision,
	actor ActorContext,
) (*DecisionResult, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	stages, err := s.templates.GetOrderedStages(ctx, sub.FlowID)
	if err != nil {
		return nil, err
	}
	if sub.StagePosition < 0 || sub.StagePosition >= len(stages) {
		return nil, apperrors.New(apperrors.ErrCodeInternal,
			fmt.Sprintf("submission %s stage position %d outside flow of %d stages",
				sub.ID, sub.StagePosition, len(stages)))
	}
	currentStage := stages[sub.StagePosition]

	if sub.Terminal() {
		return nil, apperrors.InvalidTransition("submission is approved and accepts no further decisions")
	}

	authorized, err := s.resolver.Authorized(ctx, currentStage.ID, actor.ActorID)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, apperrors.Forbidden("user is not an authorized reviewer for the current stage")
	}

	var entry *repository.ReviewEntry

	switch decision.Kind {
	case DecisionReject:
		if decision.Reason == "" {
			return nil, apperrors.InvalidTransition("rejection requires a reason")
		}
		reason := decision.Reason
		sub.Status = repository.StatusRejected
		sub.RejectReason = &reason
		// Position unchanged: a rejected submission stays parked at the
		// rejecting stage so it can be resubmitted into the same stage.
		entry = s.newEntry(sub, currentStage.ID, repository.ActionRejected, &reason, actor)

	case DecisionClearReject:
		if sub.Status != repository.StatusRejected {
			return nil, apperrors.InvalidTransition("submission is not rejected")
		}
		sub.Status = repository.StatusPending
		sub.RejectReason = nil
		// No ledger entry: clearing is not a review decision.

	case DecisionApprove:
		if sub.Status == repository.StatusRejected {
			return nil, apperrors.InvalidTransition("submission is rejected; clear the rejection first")
		}
		if sub.StagePosition+1 < len(stages) {
			sub.StagePosition++
			sub.Status = repository.StatusPending
		} else {
			sub.Status = repository.StatusApproved
		}
		// The entry is recorded at the stage the decision was made at, not
		// the stage the submission advanced to.
		entry = s.newEntry(sub, currentStage.ID, repository.ActionApproved, nil, actor)

	case DecisionOverride:
		entry, err = s.applyOverride(sub, currentStage.ID, decision, actor)
		if err != nil {
			return nil, err
		}

	default:
		return nil, apperrors.InvalidInput("kind", fmt.Sprintf("unknown decision kind %q", decision.Kind))
	}

	if err := s.submissions.ApplyTransition(ctx, sub, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("submission_id", sub.ID).
		Str("stage_id", currentStage.ID).
		Str("kind", string(decision.Kind)).
		Str("status", string(sub.Status)).
		Int("stage_position", sub.StagePosition).
		Bool("impersonated", actor.IsImpersonating).
		Msg("Decision applied")

	s.dispatchNotification(ctx, sub, decision, actor)

	return &DecisionResult{
		Status:        sub.Status,
		StagePosition: sub.StagePosition,
		Entry:         entry,
	}, nil
}

// applyOverride forces the status directly. Position never moves, and the
// rejected-implies-reason invariant is enforced rather than bypassed.
func (s *ReviewService) applyOverride(
	sub *repository.Submission,
	stageID string,
	decision Decision,
	actor ActorContext,
) (*repository.ReviewEntry, error) {
	if !decision.TargetStatus.Valid() {
		return nil, apperrors.InvalidInput("target_status",
			fmt.Sprintf("unknown status %q", decision.TargetStatus))
	}

	switch decision.TargetStatus {
	case repository.StatusRejected:
		if decision.Reason == "" {
			return nil, apperrors.InvalidTransition("forcing rejected requires a reason")
		}
		reason := decision.Reason
		sub.Status = repository.StatusRejected
		sub.RejectReason = &reason
		return nil, nil
	case repository.StatusApproved:
		sub.Status = repository.StatusApproved
		sub.RejectReason = nil
		return s.newEntry(sub, stageID, repository.ActionApproved, nil, actor), nil
	default:
		sub.Status = decision.TargetStatus
		sub.RejectReason = nil
		return nil, nil
	}
}

func (s *ReviewService) newEntry(
	sub *repository.Submission,
	stageID string,
	action repository.ReviewAction,
	reason *string,
	actor ActorContext,
) *repository.ReviewEntry {
	entry := &repository.ReviewEntry{
		SubmissionID: sub.ID,
		ReviewerID:   actor.ActorID,
		StageID:      stageID,
		Action:       action,
		Reason:       reason,
	}
	if actor.IsImpersonating {
		id := actor.ImpersonatorID
		name := actor.ImpersonatorName
		entry.ActingAsImpersonator = true
		entry.ImpersonatorID = &id
		entry.ImpersonatorName = &name
	}
	return entry
}

// dispatchNotification fires the outcome event without blocking the caller.
// Delivery is best-effort; a committed decision is a success regardless of
// notification outcome.
func (s *ReviewService) dispatchNotification(ctx context.Context, sub *repository.Submission, decision Decision, actor ActorContext) {
	if s.notifier == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	switch {
	case decision.Kind == DecisionReject:
		go s.notifier.NotifyRejected(detached, sub.ID, decision.Reason, actor)
	case decision.Kind == DecisionApprove,
		decision.Kind == DecisionOverride && sub.Status == repository.StatusApproved:
		go s.notifier.NotifyApproved(detached, sub.ID, sub.Terminal(), actor)
	}
}

// ── Queries ───────────────────────────────────────────────────────────────────

// ResolveReviewers returns the effective reviewer set for a stage.
func (s *ReviewService) ResolveReviewers(ctx context.Context, stageID string) ([]string, error) {
	if _, err := s.templates.GetStage(ctx, stageID); err != nil {
		return nil, err
	}
	return s.resolver.ResolveReviewers(ctx, stageID)
}

// ListBySubmission returns a submission's full ledger, oldest first.
func (s *ReviewService) ListBySubmission(ctx context.Context, submissionID string) ([]*repository.ReviewEntry, error) {
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		return nil, err
	}
	return s.ledger.ListBySubmission(ctx, submissionID)
}

// ListByReviewer returns a page of a reviewer's decisions with a total count.
func (s *ReviewService) ListByReviewer(
	ctx context.Context,
	reviewerID string,
	filter repository.ReviewFilter,
	page, pageSize int,
) ([]*repository.ReviewEntry, int, error) {
	return s.ledger.ListByReviewer(ctx, reviewerID, filter, page, pageSize)
}

// ListPendingForReviewer returns the pending submissions whose current stage
// resolves to the given reviewer. Reviewer sets are resolved from live link
// state on every call.
func (s *ReviewService) ListPendingForReviewer(ctx context.Context, reviewerID string) ([]*repository.Submission, error) {
	pending, err := s.submissions.ListPendingWithStage(ctx)
	if err != nil {
		return nil, err
	}

	// Resolve each distinct stage once per request.
	stageHasReviewer := make(map[string]bool)
	var result []*repository.Submission
	for _, p := range pending {
		allowed, seen := stageHasReviewer[p.StageID]
		if !seen {
			allowed, err = s.resolver.Authorized(ctx, p.StageID, reviewerID)
			if err != nil {
				return nil, err
			}
			stageHasReviewer[p.StageID] = allowed
		}
		if allowed {
			result = append(result, p.Submission)
		}
	}
	return result, nil
}
