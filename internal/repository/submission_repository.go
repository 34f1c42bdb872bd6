package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tideform/be-form-reviews/internal/apperrors"
	"github.com/tideform/be-form-reviews/internal/database"
)

// SubmissionRepository manages submission rows. The transition write is a
// single transaction covering the conditional state update and the ledger
// append, so a decision is either fully durable or not applied at all.
type SubmissionRepository struct {
	db *database.DB
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission positioned at its flow's first stage.
func (r *SubmissionRepository) Create(ctx context.Context, sub *Submission) error {
	responseJSON, err := json.Marshal(sub.Response)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal submission response")
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	query := `
		INSERT INTO submissions
		    (id, flow_id, response, stage_position, status,
		     reject_reason, submitted_by, completed_by_other_user_id, version)
		VALUES ($1, $2, $3, $4, $5::submission_status,
		        $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		sub.ID,
		sub.FlowID,
		responseJSON,
		sub.StagePosition,
		sub.Status,
		sub.RejectReason,
		sub.SubmittedBy,
		sub.CompletedByOtherUserID,
		sub.Version,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create submission")
	}
	return nil
}

// GetByID retrieves a submission by id, excluding soft-deleted rows.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*Submission, error) {
	query := `
		SELECT id, flow_id, response, stage_position, status,
		       reject_reason, submitted_by, completed_by_other_user_id,
		       version, created_at, updated_at, deleted_at
		FROM submissions
		WHERE id = $1 AND deleted_at IS NULL
	`

	sub, err := r.scanSubmission(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("submission", id)
	}
	return sub, err
}

// ApplyTransition writes the submission's new (status, stage_position,
// reject_reason) conditionally on the version the caller read, appending the
// ledger entry (when non-nil) in the same transaction. Fails with conflict
// when a concurrent writer got there first; the caller retries from a fresh
// read if it wants to.
func (r *SubmissionRepository) ApplyTransition(ctx context.Context, sub *Submission, entry *ReviewEntry) error {
	expectedVersion := sub.Version

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE submissions
			SET status         = $2::submission_status,
			    stage_position = $3,
			    reject_reason  = $4,
			    version        = version + 1,
			    updated_at     = NOW()
			WHERE id = $1
			  AND version = $5
			  AND deleted_at IS NULL
			RETURNING version, updated_at
		`

		err := tx.QueryRow(ctx, query,
			sub.ID,
			sub.Status,
			sub.StagePosition,
			sub.RejectReason,
			expectedVersion,
		).Scan(&sub.Version, &sub.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyMissedUpdate(ctx, tx, sub.ID)
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update submission state")
		}

		if entry != nil {
			return insertReviewEntry(ctx, tx, entry)
		}
		return nil
	})
	return err
}

// classifyMissedUpdate tells a lost optimistic-concurrency race apart from a
// submission that is missing or soft-deleted.
func (r *SubmissionRepository) classifyMissedUpdate(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions WHERE id = $1 AND deleted_at IS NULL)`,
		id,
	).Scan(&exists)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check submission")
	}
	if !exists {
		return apperrors.NotFound("submission", id)
	}
	return apperrors.Conflict("submission was modified concurrently")
}

// SoftDelete tombstones a submission. Ledger rows keep their referent.
func (r *SubmissionRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE submissions
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("submission", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to delete submission")
	}
	return nil
}

// ListPendingWithStage returns pending, live submissions paired with the
// stage id at their current position.
func (r *SubmissionRepository) ListPendingWithStage(ctx context.Context) ([]*PendingSubmission, error) {
	query := `
		SELECT sub.id, sub.flow_id, sub.response, sub.stage_position, sub.status,
		       sub.reject_reason, sub.submitted_by, sub.completed_by_other_user_id,
		       sub.version, sub.created_at, sub.updated_at, sub.deleted_at,
		       s.id AS stage_id
		FROM submissions sub
		JOIN flow_stages fs
		  ON fs.flow_id = sub.flow_id
		 AND fs.deleted_at IS NULL
		JOIN stages s
		  ON s.id = fs.stage_id
		 AND s.deleted_at IS NULL
		WHERE sub.deleted_at IS NULL
		  AND sub.status = 'pending'
		  AND fs.position = (
		      SELECT ord.position
		      FROM flow_stages ord
		      WHERE ord.flow_id = sub.flow_id AND ord.deleted_at IS NULL
		      ORDER BY ord.position ASC, ord.stage_id ASC
		      LIMIT 1 OFFSET sub.stage_position
		  )
		ORDER BY sub.created_at ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list pending submissions")
	}
	defer rows.Close()

	var pending []*PendingSubmission
	for rows.Next() {
		sub := &Submission{}
		var responseJSON []byte
		var stageID string
		err := rows.Scan(
			&sub.ID,
			&sub.FlowID,
			&responseJSON,
			&sub.StagePosition,
			&sub.Status,
			&sub.RejectReason,
			&sub.SubmittedBy,
			&sub.CompletedByOtherUserID,
			&sub.Version,
			&sub.CreatedAt,
			&sub.UpdatedAt,
			&sub.DeletedAt,
			&stageID,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan pending submission")
		}
		if err := unmarshalResponse(responseJSON, sub); err != nil {
			return nil, err
		}
		pending = append(pending, &PendingSubmission{Submission: sub, StageID: stageID})
	}
	return pending, rows.Err()
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type submissionScanner interface {
	Scan(dest ...any) error
}

func (r *SubmissionRepository) scanSubmission(row submissionScanner) (*Submission, error) {
	sub := &Submission{}
	var responseJSON []byte

	err := row.Scan(
		&sub.ID,
		&sub.FlowID,
		&responseJSON,
		&sub.StagePosition,
		&sub.Status,
		&sub.RejectReason,
		&sub.SubmittedBy,
		&sub.CompletedByOtherUserID,
		&sub.Version,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalResponse(responseJSON, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func unmarshalResponse(data []byte, sub *Submission) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &sub.Response); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal submission response")
	}
	return nil
}
