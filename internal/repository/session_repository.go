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

// SessionRepository persists evaluation sessions and their rosters.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts the session and its roster within a transaction.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (err error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.Date.IsZero() {
		session.Date = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertSession = `INSERT INTO sessions (id, date, created_by, created_at) VALUES (:id, :date, :created_by, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertSession, session); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	const insertStudent = `INSERT INTO session_students (session_id, name, position) VALUES ($1, $2, $3)`
	for i := range session.Students {
		student := &session.Students[i]
		student.SessionID = session.ID
		student.Position = i
		if _, err = tx.ExecContext(ctx, insertStudent, student.SessionID, student.Name, student.Position); err != nil {
			return fmt.Errorf("insert session student: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

// FindByID returns a session with its roster.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, date, created_by, created_at FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	students, err := r.studentsFor(ctx, []string{session.ID})
	if err != nil {
		return nil, err
	}
	session.Students = students[session.ID]
	return &session, nil
}

// List returns every session, most recent first, with rosters.
func (r *SessionRepository) List(ctx context.Context) ([]models.Session, error) {
	const query = `SELECT id, date, created_by, created_at FROM sessions ORDER BY created_at DESC, id ASC`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	students, err := r.studentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Students = students[sessions[i].ID]
	}
	return sessions, nil
}

func (r *SessionRepository) studentsFor(ctx context.Context, sessionIDs []string) (map[string][]models.Student, error) {
	const query = `SELECT session_id, name, position FROM session_students WHERE session_id = ANY($1) ORDER BY session_id, position ASC`
	var rows []models.Student
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(sessionIDs)); err != nil {
		return nil, fmt.Errorf("list session students: %w", err)
	}
	out := make(map[string][]models.Student, len(sessionIDs))
	for _, st := range rows {
		out[st.SessionID] = append(out[st.SessionID], st)
	}
	return out, nil
}
