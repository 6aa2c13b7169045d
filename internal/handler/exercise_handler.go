package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbta-eval-api/internal/dto"
	"github.com/noah-isme/cbta-eval-api/internal/models"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
	"github.com/noah-isme/cbta-eval-api/pkg/response"
)

type exerciseService interface {
	ToggleObservation(ctx context.Context, exerciseID, observationID string, req dto.ToggleObservationRequest) (*models.Observation, error)
	CompleteExercise(ctx context.Context, exerciseID string) (*models.Exercise, error)
}

// ExerciseHandler exposes checklist mutations.
type ExerciseHandler struct {
	service exerciseService
}

// NewExerciseHandler constructs the handler.
func NewExerciseHandler(svc exerciseService) *ExerciseHandler {
	return &ExerciseHandler{service: svc}
}

// ToggleObservation godoc
// @Summary Check or uncheck an observation
// @Tags Exercises
// @Accept json
// @Produce json
// @Param id path string true "Exercise ID"
// @Param observationId path string true "Observation ID"
// @Param payload body dto.ToggleObservationRequest true "Checked flag"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exercises/{id}/observations/{observationId} [put]
func (h *ExerciseHandler) ToggleObservation(c *gin.Context) {
	var req dto.ToggleObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid observation payload"))
		return
	}
	obs, err := h.service.ToggleObservation(c.Request.Context(), c.Param("id"), c.Param("observationId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, obs, nil)
}

// Complete godoc
// @Summary Complete exercise
// @Description Marks the exercise completed. A second call returns FINALIZED.
// @Tags Exercises
// @Produce json
// @Param id path string true "Exercise ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exercises/{id}/complete [put]
func (h *ExerciseHandler) Complete(c *gin.Context) {
	exercise, err := h.service.CompleteExercise(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CompletionResponse{ID: exercise.ID, IsCompleted: exercise.IsCompleted}, nil)
}
