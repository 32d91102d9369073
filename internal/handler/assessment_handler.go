package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SaddamHosen42/obe-engine-api/internal/service"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/response"
)

// AssessmentHandler exposes assessment items and their CLO allocations.
type AssessmentHandler struct {
	allocations *service.AllocationService
}

// NewAssessmentHandler constructs handler.
func NewAssessmentHandler(allocations *service.AllocationService) *AssessmentHandler {
	return &AssessmentHandler{allocations: allocations}
}

// CreateItem godoc
// @Summary Create an assessment item
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body service.CreateItemRequest true "Item payload"
// @Success 201 {object} response.Envelope
// @Router /assessment-items [post]
func (h *AssessmentHandler) CreateItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	item, err := h.allocations.CreateItem(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// GetItem godoc
// @Summary Get one assessment item
// @Tags Assessments
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /assessment-items/{id} [get]
func (h *AssessmentHandler) GetItem(c *gin.Context) {
	item, err := h.allocations.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// ListItems godoc
// @Summary List assessment items for a course offering
// @Tags Assessments
// @Produce json
// @Param courseOfferingId query string true "Course offering ID"
// @Success 200 {object} response.Envelope
// @Router /assessment-items [get]
func (h *AssessmentHandler) ListItems(c *gin.Context) {
	courseOfferingID := c.Query("courseOfferingId")
	if courseOfferingID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courseOfferingId required"))
		return
	}
	items, err := h.allocations.ListItems(c.Request.Context(), courseOfferingID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

type updateItemTotalRequest struct {
	TotalMarks float64 `json:"total_marks" binding:"required,gt=0"`
}

// UpdateItemTotal godoc
// @Summary Change an item's total marks
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body updateItemTotalRequest true "Total marks payload"
// @Success 204
// @Failure 422 {object} response.Envelope
// @Router /assessment-items/{id}/total [put]
func (h *AssessmentHandler) UpdateItemTotal(c *gin.Context) {
	var req updateItemTotalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.allocations.UpdateItemTotal(c.Request.Context(), c.Param("id"), req.TotalMarks); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type setAllocationsBody struct {
	Allocations []service.AllocationInput `json:"allocations"`
}

// SetAllocations godoc
// @Summary Replace the allocation set of an item
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body setAllocationsBody true "Allocation rows"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assessment-items/{id}/allocations [put]
func (h *AssessmentHandler) SetAllocations(c *gin.Context) {
	var body setAllocationsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	rows, err := h.allocations.SetAllocations(c.Request.Context(), service.SetAllocationsRequest{
		AssessmentItemID: c.Param("id"),
		Allocations:      body.Allocations,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// GetAllocations godoc
// @Summary List the stored allocations of an item
// @Tags Assessments
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /assessment-items/{id}/allocations [get]
func (h *AssessmentHandler) GetAllocations(c *gin.Context) {
	rows, err := h.allocations.GetAllocations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
