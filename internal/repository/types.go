package repository

import "time"

// ── Domain types for the review pipeline ─────────────────────────────────────

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
)

// Valid reports whether s is a known status value.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// ReviewAction is the recorded outcome of one review decision.
type ReviewAction string

const (
	ActionApproved ReviewAction = "approved"
	ActionRejected ReviewAction = "rejected"
)

// Flow is an ordered template of review stages. Template data only; no
// per-submission state ever lives here.
type Flow struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Stage is one step in a flow's review sequence. Shared across every
// submission that reaches it.
type Stage struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Position  int        `json:"position"` // within the owning flow, from GetOrderedStages
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Team groups reviewers; membership changes are visible to the resolver
// immediately.
type Team struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Submission is one document instance moving through a flow.
// StagePosition always indexes into the flow's ordered stage list, and
// Status == rejected exactly when RejectReason is non-nil.
type Submission struct {
	ID                     string           `json:"id"`
	FlowID                 string           `json:"flow_id"`
	Response               map[string]any   `json:"response,omitempty"` // field id -> value, opaque here
	StagePosition          int              `json:"stage_position"`
	Status                 SubmissionStatus `json:"status"`
	RejectReason           *string          `json:"reject_reason,omitempty"`
	SubmittedBy            string           `json:"submitted_by"`
	CompletedByOtherUserID *string          `json:"completed_by_other_user_id,omitempty"` // admin who authored it on the submitter's behalf
	Version                int64            `json:"version"` // optimistic-concurrency token
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	DeletedAt              *time.Time       `json:"deleted_at,omitempty"`
}

// Terminal reports whether the submission accepts no further decisions.
func (s *Submission) Terminal() bool {
	return s.Status == StatusApproved
}

// ReviewEntry is one immutable record in the review ledger. Entries are
// never updated or hard-deleted after append; DeletedAt exists for forward
// compatibility and is unused by the transition path.
type ReviewEntry struct {
	ID                   string       `json:"id"`
	SubmissionID         string       `json:"submission_id"`
	ReviewerID           string       `json:"reviewer_id"`
	StageID              string       `json:"stage_id"`
	Action               ReviewAction `json:"action"`
	Reason               *string      `json:"reason,omitempty"` // required exactly when Action == rejected
	ActingAsImpersonator bool         `json:"acting_as_impersonator"`
	ImpersonatorID       *string      `json:"impersonator_id,omitempty"`
	ImpersonatorName     *string      `json:"impersonator_name,omitempty"`
	PerformedAt          time.Time    `json:"performed_at"`
	DeletedAt            *time.Time   `json:"-"`
}

// ReviewFilter narrows ListByReviewer results. Zero values match everything.
type ReviewFilter struct {
	Action  *ReviewAction
	StageID *string
	From    *time.Time
	To      *time.Time
}

// PendingSubmission pairs a pending submission with its current stage, for
// reviewer work-queue resolution.
type PendingSubmission struct {
	Submission *Submission
	StageID    string
}
