package repository

import (
	"context"

	"github.com/tideform/be-form-reviews/internal/apperrors"
	"github.com/tideform/be-form-reviews/internal/database"
)

// AssignmentRepository reads reviewer-assignment links. Assignment links are
// soft-deleted, never physically removed, so "active" always means the link
// and every referenced row are untombstoned. All reads reflect current link
// state with no caching, since membership can change between requests.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListDirectReviewers returns user ids directly assigned to a stage where
// both the assignment link and the user are active.
func (r *AssignmentRepository) ListDirectReviewers(ctx context.Context, stageID string) ([]string, error) {
	query := `
		SELECT u.id
		FROM stage_reviewers sr
		JOIN users u ON u.id = sr.user_id
		WHERE sr.stage_id = $1
		  AND sr.deleted_at IS NULL
		  AND u.deleted_at IS NULL
		ORDER BY u.id ASC
	`
	return r.listIDs(ctx, query, stageID, "failed to list direct reviewers")
}

// ListAssignedTeams returns team ids assigned to a stage where both the
// assignment link and the team are active.
func (r *AssignmentRepository) ListAssignedTeams(ctx context.Context, stageID string) ([]string, error) {
	query := `
		SELECT t.id
		FROM stage_teams st
		JOIN teams t ON t.id = st.team_id
		WHERE st.stage_id = $1
		  AND st.deleted_at IS NULL
		  AND t.deleted_at IS NULL
		ORDER BY t.id ASC
	`
	return r.listIDs(ctx, query, stageID, "failed to list assigned teams")
}

// ListTeamMembers returns user ids in a team where both the membership link
// and the user are active.
func (r *AssignmentRepository) ListTeamMembers(ctx context.Context, teamID string) ([]string, error) {
	query := `
		SELECT u.id
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = $1
		  AND tm.deleted_at IS NULL
		  AND u.deleted_at IS NULL
		ORDER BY u.id ASC
	`
	return r.listIDs(ctx, query, teamID, "failed to list team members")
}

func (r *AssignmentRepository) listIDs(ctx context.Context, query, arg, errMsg string) ([]string, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, errMsg)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, errMsg)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
