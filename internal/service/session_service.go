package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cbta-eval-api/internal/dto"
	"github.com/noah-isme/cbta-eval-api/internal/models"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context) ([]models.Session, error)
}

type exerciseStore interface {
	Create(ctx context.Context, exercise *models.Exercise) error
	FindByID(ctx context.Context, id string) (*models.Exercise, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Exercise, error)
	MarkCompleted(ctx context.Context, id string) (bool, error)
}

type observationStore interface {
	SetChecked(ctx context.Context, exerciseID, observationID string, checked bool) (*models.Observation, error)
}

type behaviorCatalog interface {
	Has(competence models.Competence) bool
	BehaviorsFor(competence models.Competence) ([]models.ObservableBehavior, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
	Bump(ctx context.Context, key string) error
}

// SessionService manages sessions, exercises and their checklists.
type SessionService struct {
	sessions     sessionStore
	exercises    exerciseStore
	observations observationStore
	catalog      behaviorCatalog
	cache        cacheInvalidator
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewSessionService constructs SessionService. cache may be nil.
func NewSessionService(sessions sessionStore, exercises exerciseStore, observations observationStore, catalog behaviorCatalog, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:     sessions,
		exercises:    exercises,
		observations: observations,
		catalog:      catalog,
		cache:        cache,
		validator:    validate,
		logger:       logger,
	}
}

// Create registers a session with its roster. Names are trimmed and must be unique.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest, actorID string) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	seen := make(map[string]struct{}, len(req.Students))
	students := make([]models.Student, 0, len(req.Students))
	for _, raw := range req.Students {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate student %q", name))
		}
		seen[name] = struct{}{}
		students = append(students, models.Student{Name: name})
	}

	session := &models.Session{Students: students}
	if actorID != "" {
		session.CreatedBy = &actorID
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Internal(err, "failed to create session")
	}
	s.logger.Info("session created", zap.String("session_id", session.ID), zap.Int("students", len(students)))
	return session, nil
}

// List returns every session with its roster.
func (s *SessionService) List(ctx context.Context) ([]models.Session, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

// Graph resolves the session with its exercises and observations.
func (s *SessionService) Graph(ctx context.Context, id string) (*models.SessionGraph, error) {
	session, err := s.findSession(ctx, id)
	if err != nil {
		return nil, err
	}
	exercises, err := s.exercises.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load exercises")
	}
	if exercises == nil {
		exercises = []models.Exercise{}
	}
	return &models.SessionGraph{Session: *session, Exercises: exercises}, nil
}

// CreateExercise adds an exercise for one rostered student and seeds an unchecked
// observation for every catalog behavior of the chosen competences.
func (s *SessionService) CreateExercise(ctx context.Context, sessionID string, req dto.CreateExerciseRequest) (*models.Exercise, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exercise payload")
	}
	session, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	student := strings.TrimSpace(req.StudentName)
	if !session.HasStudent(student) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %q is not part of the session", student))
	}
	competences, err := s.resolveCompetences(req.Competences)
	if err != nil {
		return nil, err
	}

	exercise := &models.Exercise{
		SessionID:   session.ID,
		Name:        strings.TrimSpace(req.Name),
		StudentName: student,
		Competences: competences,
	}
	for _, competence := range competences {
		behaviors, err := s.catalog.BehaviorsFor(competence)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrUnknownCompetence.Code, appErrors.ErrUnknownCompetence.Status, fmt.Sprintf("unknown competence %q", competence))
		}
		for _, behavior := range behaviors {
			obs := models.Observation{
				StudentName: student,
				Competence:  competence,
				Text:        behavior.Text,
			}
			if behavior.Code != "" {
				code := behavior.Code
				obs.ObCode = &code
			}
			exercise.Observations = append(exercise.Observations, obs)
		}
	}

	if err := s.exercises.Create(ctx, exercise); err != nil {
		return nil, appErrors.Internal(err, "failed to create exercise")
	}
	s.invalidate(ctx, session.ID)
	return exercise, nil
}

// ToggleObservation sets the checked flag of an observation inside an exercise.
func (s *SessionService) ToggleObservation(ctx context.Context, exerciseID, observationID string, req dto.ToggleObservationRequest) (*models.Observation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid observation payload")
	}
	exercise, err := s.findExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	obs, err := s.observations.SetChecked(ctx, exercise.ID, observationID, *req.IsChecked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "observation not found in exercise")
		}
		return nil, appErrors.Internal(err, "failed to update observation")
	}
	s.invalidate(ctx, exercise.SessionID)
	return obs, nil
}

// CompleteExercise finalises an exercise. A second call reports FINALIZED.
func (s *SessionService) CompleteExercise(ctx context.Context, exerciseID string) (*models.Exercise, error) {
	exercise, err := s.findExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	changed, err := s.exercises.MarkCompleted(ctx, exercise.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to complete exercise")
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "exercise already completed")
	}
	exercise.IsCompleted = true
	s.invalidate(ctx, exercise.SessionID)
	return exercise, nil
}

func (s *SessionService) findSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	return session, nil
}

func (s *SessionService) findExercise(ctx context.Context, id string) (*models.Exercise, error) {
	exercise, err := s.exercises.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exercise not found")
		}
		return nil, appErrors.Internal(err, "failed to load exercise")
	}
	return exercise, nil
}

// resolveCompetences normalises, deduplicates and orders codes by the enumeration.
func (s *SessionService) resolveCompetences(raw []string) ([]models.Competence, error) {
	set := make(map[models.Competence]struct{}, len(raw))
	for _, value := range raw {
		competence := models.ParseCompetence(value)
		if !competence.Valid() || !s.catalog.Has(competence) {
			return nil, appErrors.Clone(appErrors.ErrUnknownCompetence, fmt.Sprintf("unknown competence %q", value))
		}
		set[competence] = struct{}{}
	}
	rank := make(map[models.Competence]int)
	for i, c := range models.Competences() {
		rank[c] = i
	}
	out := make([]models.Competence, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out, nil
}

func (s *SessionService) invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, sessionReportGenerationKey(sessionID)); err != nil {
		s.logger.Warn("report cache generation bump failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, sessionReportCachePattern(sessionID)); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}
