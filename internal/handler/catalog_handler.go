package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbta-eval-api/internal/dto"
	"github.com/noah-isme/cbta-eval-api/internal/models"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
	"github.com/noah-isme/cbta-eval-api/pkg/response"
)

type competenceCatalog interface {
	Competences() []models.CompetenceInfo
	Info(competence models.Competence) (models.CompetenceInfo, error)
}

// CatalogHandler exposes the observable behavior catalog.
type CatalogHandler struct {
	catalog competenceCatalog
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(catalog competenceCatalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListCompetences godoc
// @Summary List competences
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /competences [get]
func (h *CatalogHandler) ListCompetences(c *gin.Context) {
	response.JSON(c, http.StatusOK, dto.CompetenceListResponse{Competences: h.catalog.Competences()}, nil)
}

// Behaviors godoc
// @Summary List observable behaviors of a competence
// @Tags Catalog
// @Produce json
// @Param code path string true "Competence code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /competences/{code}/behaviors [get]
func (h *CatalogHandler) Behaviors(c *gin.Context) {
	code := models.ParseCompetence(c.Param("code"))
	info, err := h.catalog.Info(code)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnknownCompetence.Code, appErrors.ErrUnknownCompetence.Status, "unknown competence "+string(code)))
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}
