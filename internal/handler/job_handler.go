package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SaddamHosen42/obe-engine-api/internal/dto"
	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/internal/service"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/response"
)

// JobHandler exposes recompute and export job endpoints.
type JobHandler struct {
	recompute *service.RecomputeService
	exports   *service.ExportJobService
}

// NewJobHandler constructs handler.
func NewJobHandler(recompute *service.RecomputeService, exports *service.ExportJobService) *JobHandler {
	return &JobHandler{recompute: recompute, exports: exports}
}

// Recompute godoc
// @Summary Trigger a recompute for one scope
// @Tags Jobs
// @Accept json
// @Produce json
// @Param payload body dto.RecomputeRequest true "Recompute scope"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attainment/recompute [post]
func (h *JobHandler) Recompute(c *gin.Context) {
	var req dto.RecomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	job, err := h.recompute.Request(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusAccepted
	if job.Status == models.JobStatusFinished {
		status = http.StatusOK
	}
	response.JSON(c, status, job, nil)
}

// Status godoc
// @Summary Job status
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id} [get]
func (h *JobHandler) Status(c *gin.Context) {
	status, err := h.recompute.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Export godoc
// @Summary Queue a summary export
// @Tags Jobs
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Router /exports [post]
func (h *JobHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	job, err := h.exports.Request(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Download godoc
// @Summary Download a finished export by signed token
// @Tags Jobs
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200
// @Failure 403 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *JobHandler) Download(c *gin.Context) {
	download, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	contentType := "text/csv"
	if download.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Content-Type", contentType)
	c.File(download.File.Name())
}
