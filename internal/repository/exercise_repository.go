package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/cbta-eval-api/internal/models"
)

// ExerciseRepository persists exercises together with their observation checklist.
type ExerciseRepository struct {
	db *sqlx.DB
}

// NewExerciseRepository constructs the repository.
func NewExerciseRepository(db *sqlx.DB) *ExerciseRepository {
	return &ExerciseRepository{db: db}
}

type exerciseRow struct {
	ID          string         `db:"id"`
	SessionID   string         `db:"session_id"`
	Name        string         `db:"name"`
	Date        time.Time      `db:"date"`
	StudentName string         `db:"student_name"`
	Competences pq.StringArray `db:"competences"`
	IsCompleted bool           `db:"is_completed"`
}

func (row exerciseRow) model() models.Exercise {
	competences := make([]models.Competence, 0, len(row.Competences))
	for _, c := range row.Competences {
		competences = append(competences, models.Competence(c))
	}
	return models.Exercise{
		ID:           row.ID,
		SessionID:    row.SessionID,
		Name:         row.Name,
		Date:         row.Date,
		StudentName:  row.StudentName,
		Competences:  competences,
		IsCompleted:  row.IsCompleted,
		Observations: []models.Observation{},
	}
}

const exerciseColumns = `id, session_id, name, date, student_name, competences, is_completed`
const observationColumns = `id, exercise_id, student_name, competence, ob_code, text, is_checked, position, timestamp`

// Create inserts the exercise and all of its observations in one transaction.
func (r *ExerciseRepository) Create(ctx context.Context, exercise *models.Exercise) (err error) {
	if exercise.ID == "" {
		exercise.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exercise.Date.IsZero() {
		exercise.Date = now
	}

	competences := make(pq.StringArray, 0, len(exercise.Competences))
	for _, c := range exercise.Competences {
		competences = append(competences, string(c))
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create exercise: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertExercise = `INSERT INTO exercises (` + exerciseColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, insertExercise, exercise.ID, exercise.SessionID, exercise.Name, exercise.Date, exercise.StudentName, competences, exercise.IsCompleted); err != nil {
		return fmt.Errorf("insert exercise: %w", err)
	}

	const insertObservation = `INSERT INTO observations (` + observationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for i := range exercise.Observations {
		obs := &exercise.Observations[i]
		if obs.ID == "" {
			obs.ID = uuid.NewString()
		}
		obs.ExerciseID = exercise.ID
		obs.StudentName = exercise.StudentName
		obs.Position = i
		if obs.Timestamp.IsZero() {
			obs.Timestamp = now
		}
		if _, err = tx.ExecContext(ctx, insertObservation, obs.ID, obs.ExerciseID, obs.StudentName, obs.Competence, obs.ObCode, obs.Text, obs.IsChecked, obs.Position, obs.Timestamp); err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create exercise: %w", err)
	}
	return nil
}

// FindByID returns an exercise with its observations in checklist order.
func (r *ExerciseRepository) FindByID(ctx context.Context, id string) (*models.Exercise, error) {
	const query = `SELECT ` + exerciseColumns + ` FROM exercises WHERE id = $1`
	var row exerciseRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find exercise: %w", err)
	}

	exercise := row.model()
	const obsQuery = `SELECT ` + observationColumns + ` FROM observations WHERE exercise_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &exercise.Observations, obsQuery, id); err != nil {
		return nil, fmt.Errorf("list exercise observations: %w", err)
	}
	return &exercise, nil
}

// ListBySession returns the session's exercises in creation order with observations attached.
func (r *ExerciseRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Exercise, error) {
	const query = `SELECT ` + exerciseColumns + ` FROM exercises WHERE session_id = $1 ORDER BY date ASC, id ASC`
	var rows []exerciseRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session exercises: %w", err)
	}
	exercises := make([]models.Exercise, 0, len(rows))
	if len(rows) == 0 {
		return exercises, nil
	}

	index := make(map[string]int, len(rows))
	for i, row := range rows {
		index[row.ID] = i
		exercises = append(exercises, row.model())
	}

	const obsQuery = `SELECT o.id, o.exercise_id, o.student_name, o.competence, o.ob_code, o.text, o.is_checked, o.position, o.timestamp
FROM observations o
JOIN exercises e ON e.id = o.exercise_id
WHERE e.session_id = $1
ORDER BY o.exercise_id, o.position ASC`
	var observations []models.Observation
	if err := r.db.SelectContext(ctx, &observations, obsQuery, sessionID); err != nil {
		return nil, fmt.Errorf("list session observations: %w", err)
	}
	for _, obs := range observations {
		if i, ok := index[obs.ExerciseID]; ok {
			exercises[i].Observations = append(exercises[i].Observations, obs)
		}
	}
	return exercises, nil
}

// MarkCompleted flips is_completed once. It reports false when the exercise was
// already completed or does not exist.
func (r *ExerciseRepository) MarkCompleted(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE exercises SET is_completed = TRUE WHERE id = $1 AND is_completed = FALSE`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("complete exercise: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete exercise rows: %w", err)
	}
	return affected == 1, nil
}
