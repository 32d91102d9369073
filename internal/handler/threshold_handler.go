package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/internal/service"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/response"
)

// ThresholdHandler exposes classification band configuration.
type ThresholdHandler struct {
	thresholds *service.ThresholdService
}

// NewThresholdHandler constructs handler.
func NewThresholdHandler(thresholds *service.ThresholdService) *ThresholdHandler {
	return &ThresholdHandler{thresholds: thresholds}
}

// Get godoc
// @Summary Active threshold bands for an outcome
// @Tags Thresholds
// @Produce json
// @Param id path string true "Outcome ID"
// @Success 200 {object} response.Envelope
// @Router /thresholds/{id} [get]
func (h *ThresholdHandler) Get(c *gin.Context) {
	cfg, err := h.thresholds.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

type thresholdBody struct {
	Bands []models.ThresholdBand `json:"bands"`
}

// Set godoc
// @Summary Override threshold bands for an outcome
// @Tags Thresholds
// @Accept json
// @Produce json
// @Param id path string true "Outcome ID"
// @Param payload body thresholdBody true "Band configuration"
// @Success 204
// @Router /thresholds/{id} [put]
func (h *ThresholdHandler) Set(c *gin.Context) {
	var body thresholdBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	cfg := models.ThresholdConfig{OutcomeID: c.Param("id"), Bands: body.Bands}
	if err := h.thresholds.SetOverride(c.Request.Context(), cfg); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Clear godoc
// @Summary Remove a per-outcome threshold override
// @Tags Thresholds
// @Produce json
// @Param id path string true "Outcome ID"
// @Success 204
// @Router /thresholds/{id} [delete]
func (h *ThresholdHandler) Clear(c *gin.Context) {
	if err := h.thresholds.ClearOverride(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Defaults godoc
// @Summary The scheme-wide default bands
// @Tags Thresholds
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /thresholds/defaults [get]
func (h *ThresholdHandler) Defaults(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.thresholds.Defaults(), nil)
}
