package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/internal/service"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/response"
)

// OutcomeHandler exposes the outcome hierarchy endpoints.
type OutcomeHandler struct {
	hierarchy *service.HierarchyService
}

// NewOutcomeHandler constructs handler.
func NewOutcomeHandler(hierarchy *service.HierarchyService) *OutcomeHandler {
	return &OutcomeHandler{hierarchy: hierarchy}
}

// Create godoc
// @Summary Create an outcome
// @Tags Outcomes
// @Accept json
// @Produce json
// @Param payload body service.CreateOutcomeRequest true "Outcome payload"
// @Success 201 {object} response.Envelope
// @Router /outcomes [post]
func (h *OutcomeHandler) Create(c *gin.Context) {
	var req service.CreateOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	outcome, err := h.hierarchy.CreateOutcome(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, outcome)
}

// Get godoc
// @Summary Get one outcome
// @Tags Outcomes
// @Produce json
// @Param id path string true "Outcome ID"
// @Success 200 {object} response.Envelope
// @Router /outcomes/{id} [get]
func (h *OutcomeHandler) Get(c *gin.Context) {
	outcome, err := h.hierarchy.GetOutcome(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// List godoc
// @Summary List outcomes
// @Tags Outcomes
// @Produce json
// @Param tier query string false "Outcome tier (CLO, PLO, PEO)"
// @Param scopeId query string false "Course offering or program ID"
// @Success 200 {object} response.Envelope
// @Router /outcomes [get]
func (h *OutcomeHandler) List(c *gin.Context) {
	filter := models.OutcomeFilter{
		Tier:    models.OutcomeTier(c.Query("tier")),
		ScopeID: c.Query("scopeId"),
	}
	outcomes, err := h.hierarchy.ListOutcomes(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcomes, nil)
}

type updateDescriptionRequest struct {
	Description string `json:"description" binding:"required"`
}

// UpdateDescription godoc
// @Summary Update an outcome description
// @Tags Outcomes
// @Accept json
// @Produce json
// @Param id path string true "Outcome ID"
// @Param payload body updateDescriptionRequest true "Description payload"
// @Success 204
// @Router /outcomes/{id} [patch]
func (h *OutcomeHandler) UpdateDescription(c *gin.Context) {
	var req updateDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.hierarchy.UpdateDescription(c.Request.Context(), c.Param("id"), req.Description); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete an outcome and its dependents
// @Tags Outcomes
// @Produce json
// @Param id path string true "Outcome ID"
// @Success 200 {object} response.Envelope
// @Router /outcomes/{id} [delete]
func (h *OutcomeHandler) Delete(c *gin.Context) {
	cascade, err := h.hierarchy.DeleteOutcome(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cascade, nil)
}

// SetMapping godoc
// @Summary Toggle a mapping edge between adjacent tiers
// @Tags Outcomes
// @Accept json
// @Produce json
// @Param payload body service.SetMappingRequest true "Mapping payload"
// @Success 204
// @Router /outcomes/mappings [put]
func (h *OutcomeHandler) SetMapping(c *gin.Context) {
	var req service.SetMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.hierarchy.SetMapping(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Children godoc
// @Summary List an outcome's mapped children
// @Tags Outcomes
// @Produce json
// @Param id path string true "Outcome ID"
// @Success 200 {object} response.Envelope
// @Router /outcomes/{id}/children [get]
func (h *OutcomeHandler) Children(c *gin.Context) {
	children, err := h.hierarchy.ListChildren(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, children, nil)
}

// Parents godoc
// @Summary List an outcome's mapped parents
// @Tags Outcomes
// @Produce json
// @Param id path string true "Outcome ID"
// @Success 200 {object} response.Envelope
// @Router /outcomes/{id}/parents [get]
func (h *OutcomeHandler) Parents(c *gin.Context) {
	parents, err := h.hierarchy.ListParents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parents, nil)
}
