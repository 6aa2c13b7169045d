package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbta-eval-api/internal/dto"
	"github.com/noah-isme/cbta-eval-api/internal/middleware"
	"github.com/noah-isme/cbta-eval-api/internal/models"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
	"github.com/noah-isme/cbta-eval-api/pkg/response"
)

const maxPageSize = 100

type sessionService interface {
	Create(ctx context.Context, req dto.CreateSessionRequest, actorID string) (*models.Session, error)
	List(ctx context.Context) ([]models.Session, error)
	Graph(ctx context.Context, id string) (*models.SessionGraph, error)
	CreateExercise(ctx context.Context, sessionID string, req dto.CreateExerciseRequest) (*models.Exercise, error)
}

type evaluationService interface {
	SessionReportCached(ctx context.Context, sessionID string, ratings map[string]int) (models.SessionReport, bool, error)
}

// SessionHandler exposes session, roster and report endpoints.
type SessionHandler struct {
	sessions    sessionService
	evaluations evaluationService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions sessionService, evaluations evaluationService) *SessionHandler {
	return &SessionHandler{sessions: sessions, evaluations: evaluations}
}

// Create godoc
// @Summary Create session
// @Description Create an evaluation session with its student roster
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary List sessions
// @Description Newest first
// @Tags Sessions
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	page, pageSize := pageParams(c)
	start, end := pageBounds(page, pageSize, len(sessions))
	response.JSON(c, http.StatusOK, sessions[start:end], &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: len(sessions),
	})
}

// pageBounds returns the slice bounds of page within total items. Pages past
// the end yield an empty range.
func pageBounds(page, pageSize, total int) (int, int) {
	if page-1 >= (total+pageSize-1)/pageSize {
		return total, total
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || size < 1 {
		size = 20
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

// Get godoc
// @Summary Get session graph
// @Description Returns students, exercises and observations of a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	graph, err := h.sessions.Graph(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, graph, nil)
}

// CreateExercise godoc
// @Summary Create exercise
// @Description Create an exercise for one student and seed its checklist from the catalog
// @Tags Exercises
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CreateExerciseRequest true "Exercise payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/exercises [post]
func (h *SessionHandler) CreateExercise(c *gin.Context) {
	var req dto.CreateExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid exercise payload"))
		return
	}
	exercise, err := h.sessions.CreateExercise(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exercise)
}

// Report godoc
// @Summary Session competence report
// @Description Consolidated report per student. safety_scores is a JSON object of student name to rating 1-5.
// @Tags Reports
// @Produce json
// @Param id path string true "Session ID"
// @Param safety_scores query string false "JSON object of safety ratings"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/report [get]
func (h *SessionHandler) Report(c *gin.Context) {
	ratings, err := parseSafetyRatings(c.Query("safety_scores"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeReport(c, ratings)
}

// ReportWithRatings godoc
// @Summary Session competence report
// @Description Same as the GET variant with ratings in the request body
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SessionReportRequest false "Safety ratings"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/report [post]
func (h *SessionHandler) ReportWithRatings(c *gin.Context) {
	var req dto.SessionReportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report payload"))
			return
		}
	}
	h.writeReport(c, req.SafetyRatings)
}

func (h *SessionHandler) writeReport(c *gin.Context, ratings map[string]int) {
	report, hit, err := h.evaluations.SessionReportCached(c.Request.Context(), c.Param("id"), ratings)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}
