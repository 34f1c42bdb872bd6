package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/tideform/be-form-reviews/internal/apperrors"
	"github.com/tideform/be-form-reviews/internal/database"
)

// FlowRepository reads flow and stage templates. Templates are immutable
// from the core's perspective; the one mutation exposed here is the guarded
// administrative reorder.
type FlowRepository struct {
	db *database.DB
}

// NewFlowRepository creates a new FlowRepository.
func NewFlowRepository(db *database.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

// GetFlow retrieves a flow by id, excluding soft-deleted rows.
func (r *FlowRepository) GetFlow(ctx context.Context, id string) (*Flow, error) {
	query := `
		SELECT id, name, created_at, updated_at, deleted_at
		FROM flows
		WHERE id = $1 AND deleted_at IS NULL
	`

	f := &Flow{}
	err := r.db.QueryRow(ctx, query, id).Scan(&f.ID, &f.Name, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("flow", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get flow")
	}
	return f, nil
}

// GetOrderedStages returns the flow's stages sorted by position ascending,
// tie-broken by stage id. Orders are unique by construction; the tie-break
// keeps the sequence stable if an administrative edit ever collides them.
func (r *FlowRepository) GetOrderedStages(ctx context.Context, flowID string) ([]*Stage, error) {
	// Verify the flow itself exists; an empty stage list is a valid result
	// and must be distinguishable from a missing flow.
	if _, err := r.GetFlow(ctx, flowID); err != nil {
		return nil, err
	}

	query := `
		SELECT s.id, s.name, fs.position, s.created_at, s.updated_at, s.deleted_at
		FROM flow_stages fs
		JOIN stages s ON s.id = fs.stage_id
		WHERE fs.flow_id = $1
		  AND fs.deleted_at IS NULL
		  AND s.deleted_at IS NULL
		ORDER BY fs.position ASC, s.id ASC
	`

	rows, err := r.db.Query(ctx, query, flowID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get flow stages")
	}
	defer rows.Close()

	var stages []*Stage
	for rows.Next() {
		s := &Stage{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Position, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan stage")
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

// GetStage retrieves a stage by id, excluding soft-deleted rows.
func (r *FlowRepository) GetStage(ctx context.Context, id string) (*Stage, error) {
	query := `
		SELECT id, name, created_at, updated_at, deleted_at
		FROM stages
		WHERE id = $1 AND deleted_at IS NULL
	`

	s := &Stage{}
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("stage", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get stage")
	}
	return s, nil
}

// ReorderStages rewrites the flow's stage positions to match orderedStageIDs.
// Refused with conflict while any live submission is still moving through
// the flow, so an in-flight stage pointer can never be invalidated.
func (r *FlowRepository) ReorderStages(ctx context.Context, flowID string, orderedStageIDs []string) error {
	if len(orderedStageIDs) == 0 {
		return apperrors.InvalidInput("stage_ids", "ordered stage list must not be empty")
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var flowExists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM flows WHERE id = $1 AND deleted_at IS NULL)`,
			flowID,
		).Scan(&flowExists)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check flow")
		}
		if !flowExists {
			return apperrors.NotFound("flow", flowID)
		}

		var inFlight int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM submissions
			WHERE flow_id = $1
			  AND deleted_at IS NULL
			  AND status <> 'approved'
		`, flowID).Scan(&inFlight)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to count in-flight submissions")
		}
		if inFlight > 0 {
			return apperrors.Conflict("flow has in-flight submissions; stage order is locked")
		}

		for position, stageID := range orderedStageIDs {
			tag, err := tx.Exec(ctx, `
				UPDATE flow_stages
				SET position = $3, updated_at = NOW()
				WHERE flow_id = $1 AND stage_id = $2 AND deleted_at IS NULL
			`, flowID, stageID, position)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update stage position")
			}
			if tag.RowsAffected() == 0 {
				return apperrors.NotFound("flow stage", stageID)
			}
		}
		return nil
	})
}
