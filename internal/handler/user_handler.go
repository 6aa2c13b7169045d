package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbta-eval-api/internal/models"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
	"github.com/noah-isme/cbta-eval-api/pkg/response"
)

type userProvisioner interface {
	CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error)
}

// UserHandler lets administrators provision evaluator accounts.
type UserHandler struct {
	service userProvisioner
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userProvisioner) *UserHandler {
	return &UserHandler{service: svc}
}

// Create godoc
// @Summary Create evaluator account
// @Description Create an ADMIN or INSTRUCTOR account. Restricted to administrators.
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.CreateUserRequest true "Create user payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	if claimsFromContext(c) == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}
