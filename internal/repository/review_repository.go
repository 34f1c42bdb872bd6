package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tideform/be-form-reviews/internal/apperrors"
	"github.com/tideform/be-form-reviews/internal/database"
)

// ReviewRepository appends and reads the immutable review ledger. The table
// has no update or hard-delete path anywhere in this codebase: entries are
// historical fact once written.
type ReviewRepository struct {
	db *database.DB
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *database.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// insertReviewEntry writes one ledger row inside an existing transaction.
// Shared with SubmissionRepository.ApplyTransition so the state update and
// the append commit as one unit.
func insertReviewEntry(ctx context.Context, tx pgx.Tx, entry *ReviewEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO review_entries
		    (id, submission_id, reviewer_id, stage_id, action, reason,
		     acting_as_impersonator, impersonator_id, impersonator_name)
		VALUES ($1, $2, $3, $4, $5::review_action, $6,
		        $7, $8, $9)
		RETURNING performed_at
	`

	err := tx.QueryRow(ctx, query,
		entry.ID,
		entry.SubmissionID,
		entry.ReviewerID,
		entry.StageID,
		entry.Action,
		entry.Reason,
		entry.ActingAsImpersonator,
		entry.ImpersonatorID,
		entry.ImpersonatorName,
	).Scan(&entry.PerformedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to append review entry")
	}
	return nil
}

// Append writes one ledger entry outside any submission transition.
func (r *ReviewRepository) Append(ctx context.Context, entry *ReviewEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return insertReviewEntry(ctx, tx, entry)
	})
}

// ListBySubmission returns a submission's full ledger ordered oldest-first.
func (r *ReviewRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*ReviewEntry, error) {
	query := `
		SELECT id, submission_id, reviewer_id, stage_id, action, reason,
		       acting_as_impersonator, impersonator_id, impersonator_name,
		       performed_at, deleted_at
		FROM review_entries
		WHERE submission_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list review entries")
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByReviewer returns a page of a reviewer's decisions, newest-first,
// with the total count across all pages.
func (r *ReviewRepository) ListByReviewer(
	ctx context.Context,
	reviewerID string,
	filter ReviewFilter,
	page, pageSize int,
) ([]*ReviewEntry, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	where := "WHERE reviewer_id = $1"
	args := []any{reviewerID}

	if filter.Action != nil {
		args = append(args, *filter.Action)
		where += fmt.Sprintf(" AND action = $%d::review_action", len(args))
	}
	if filter.StageID != nil {
		args = append(args, *filter.StageID)
		where += fmt.Sprintf(" AND stage_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(" AND performed_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(" AND performed_at < $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM review_entries " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to count review entries")
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`
		SELECT id, submission_id, reviewer_id, stage_id, action, reason,
		       acting_as_impersonator, impersonator_id, impersonator_name,
		       performed_at, deleted_at
		FROM review_entries
		%s
		ORDER BY performed_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list reviewer entries")
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanEntries(rows pgx.Rows) ([]*ReviewEntry, error) {
	var entries []*ReviewEntry
	for rows.Next() {
		entry := &ReviewEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.SubmissionID,
			&entry.ReviewerID,
			&entry.StageID,
			&entry.Action,
			&entry.Reason,
			&entry.ActingAsImpersonator,
			&entry.ImpersonatorID,
			&entry.ImpersonatorName,
			&entry.PerformedAt,
			&entry.DeletedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan review entry")
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
