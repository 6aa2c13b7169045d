package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cbta-eval-api/internal/models"
)

// ObservationRepository mutates individual checklist entries.
type ObservationRepository struct {
	db *sqlx.DB
}

// NewObservationRepository constructs the repository.
func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// SetChecked updates the checked flag of an observation belonging to exerciseID.
// The creation timestamp is left untouched. sql.ErrNoRows is returned when no
// such observation exists in that exercise.
func (r *ObservationRepository) SetChecked(ctx context.Context, exerciseID, observationID string, checked bool) (*models.Observation, error) {
	const query = `UPDATE observations SET is_checked = $1 WHERE id = $2 AND exercise_id = $3
RETURNING ` + observationColumns
	var obs models.Observation
	if err := r.db.GetContext(ctx, &obs, query, checked, observationID, exerciseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("set observation checked: %w", err)
	}
	return &obs, nil
}
