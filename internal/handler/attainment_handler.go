package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/internal/service"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/response"
)

// AttainmentHandler exposes computed attainment and the override path.
type AttainmentHandler struct {
	attainment *service.AttainmentService
}

// NewAttainmentHandler constructs handler.
func NewAttainmentHandler(attainment *service.AttainmentService) *AttainmentHandler {
	return &AttainmentHandler{attainment: attainment}
}

// Get godoc
// @Summary Attainment for one subject and outcome
// @Tags Attainment
// @Produce json
// @Param id path string true "Outcome ID"
// @Param kind query string true "Subject kind (STUDENT or COHORT)"
// @Param subjectId query string true "Student, course offering, or program ID"
// @Param strategy query string false "Rollup strategy (marks-first or student-first)"
// @Success 200 {object} response.Envelope
// @Router /attainment/{id} [get]
func (h *AttainmentHandler) Get(c *gin.Context) {
	kind := models.SubjectKind(c.Query("kind"))
	subjectID := c.Query("subjectId")
	if (kind != models.SubjectStudent && kind != models.SubjectCohort) || subjectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "kind and subjectId required"))
		return
	}
	strategy := models.RollupStrategy(c.Query("strategy"))
	result, err := h.attainment.GetAttainment(c.Request.Context(), kind, subjectID, c.Param("id"), strategy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Override godoc
// @Summary Manually override a computed attainment
// @Tags Attainment
// @Accept json
// @Produce json
// @Param payload body service.OverrideRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Router /attainment/overrides [post]
func (h *AttainmentHandler) Override(c *gin.Context) {
	var req service.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	req.ActorID = actorFromContext(c)
	override, err := h.attainment.Override(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, override)
}

// Overrides godoc
// @Summary Override history for an outcome
// @Tags Attainment
// @Produce json
// @Param id path string true "Outcome ID"
// @Success 200 {object} response.Envelope
// @Router /attainment/{id}/overrides [get]
func (h *AttainmentHandler) Overrides(c *gin.Context) {
	overrides, err := h.attainment.Overrides(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overrides, nil)
}
