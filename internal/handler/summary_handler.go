package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SaddamHosen42/obe-engine-api/internal/middleware"
	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/internal/service"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/response"
)

// SummaryHandler exposes chart-ready summary endpoints.
type SummaryHandler struct {
	summaries *service.SummaryService
}

// NewSummaryHandler constructs handler.
func NewSummaryHandler(summaries *service.SummaryService) *SummaryHandler {
	return &SummaryHandler{summaries: summaries}
}

// Course godoc
// @Summary Cohort CLO series for a course offering
// @Tags Summaries
// @Produce json
// @Param id path string true "Course offering ID"
// @Success 200 {object} response.Envelope
// @Router /summaries/courses/{id} [get]
func (h *SummaryHandler) Course(c *gin.Context) {
	points, cached, err := h.summaries.CourseSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, points, nil, middleware.ExtractMeta(c))
}

// Program godoc
// @Summary Cohort PLO or PEO series for a program
// @Tags Summaries
// @Produce json
// @Param id path string true "Program ID"
// @Param tier query string false "Outcome tier (PLO or PEO, default PLO)"
// @Success 200 {object} response.Envelope
// @Router /summaries/programs/{id} [get]
func (h *SummaryHandler) Program(c *gin.Context) {
	tier := models.OutcomeTier(c.DefaultQuery("tier", string(models.TierPLO)))
	points, cached, err := h.summaries.ProgramSummary(c.Request.Context(), c.Param("id"), tier)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, points, nil, middleware.ExtractMeta(c))
}

// Trend godoc
// @Summary PLO trend matrix for a program
// @Tags Summaries
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /summaries/programs/{id}/trend [get]
func (h *SummaryHandler) Trend(c *gin.Context) {
	rows, cached, err := h.summaries.Trend(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, rows, nil, middleware.ExtractMeta(c))
}

// Student godoc
// @Summary Per-student CLO breakdown across courses
// @Tags Summaries
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /summaries/students/{id} [get]
func (h *SummaryHandler) Student(c *gin.Context) {
	if c.Param("id") == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student id required"))
		return
	}
	breakdown, cached, err := h.summaries.StudentBreakdown(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, breakdown, nil, middleware.ExtractMeta(c))
}
