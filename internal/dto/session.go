package dto

import "github.com/noah-isme/cbta-eval-api/internal/models"

// CreateSessionRequest captures POST /sessions payload.
type CreateSessionRequest struct {
	Students []string `json:"students" validate:"required,min=1,dive,required"`
}

// CreateExerciseRequest captures POST /sessions/:id/exercises payload.
type CreateExerciseRequest struct {
	Name        string   `json:"name" validate:"required"`
	StudentName string   `json:"student_name" validate:"required"`
	Competences []string `json:"competences" validate:"required,min=1,dive,required"`
}

// ToggleObservationRequest captures PUT /exercises/:id/observations/:observationId payload.
type ToggleObservationRequest struct {
	IsChecked *bool `json:"is_checked" validate:"required"`
}

// SessionReportRequest captures POST /sessions/:id/report payload.
type SessionReportRequest struct {
	SafetyRatings map[string]int `json:"safety_ratings"`
}

// CompletionResponse is returned after an exercise is finalised.
type CompletionResponse struct {
	ID          string `json:"id"`
	IsCompleted bool   `json:"is_completed"`
}

// CompetenceListResponse wraps the catalog listing.
type CompetenceListResponse struct {
	Competences []models.CompetenceInfo `json:"competences"`
}
