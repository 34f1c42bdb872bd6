package service

import (
	"github.com/tideform/be-form-reviews/internal/repository"
)

// DecisionKind tags the four transition types the state machine accepts.
type DecisionKind string

const (
	// DecisionApprove advances the submission, or completes it at the last
	// stage.
	DecisionApprove DecisionKind = "approve"
	// DecisionReject parks the submission at the current stage with a reason.
	DecisionReject DecisionKind = "reject"
	// DecisionClearReject returns a rejected submission to pending without
	// moving it; clearing is not itself a review, so it appends no ledger
	// entry.
	DecisionClearReject DecisionKind = "clear_reject"
	// DecisionOverride forces the status directly; administrative tooling
	// only.
	DecisionOverride DecisionKind = "override"
)

// Decision is one requested transition.
type Decision struct {
	Kind   DecisionKind
	Reason string
	// TargetStatus applies to DecisionOverride only.
	TargetStatus repository.SubmissionStatus
}

// ActorContext identifies who is acting, including impersonation provenance
// when an administrator operates on another user's behalf. Authorization is
// always evaluated against ActorID — the identity the decision is attributed
// to — while the impersonator fields are recorded on the ledger entry.
type ActorContext struct {
	ActorID          string
	IsImpersonating  bool
	ImpersonatorID   string
	ImpersonatorName string
}

// DecisionResult reports the state a successful transition produced.
type DecisionResult struct {
	Status        repository.SubmissionStatus `json:"status"`
	StagePosition int                         `json:"stage_position"`
	// Entry is the ledger entry the transition appended; nil when the
	// transition was a clear-reject or an override that records nothing.
	Entry *repository.ReviewEntry `json:"entry,omitempty"`
}
