package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SaddamHosen42/obe-engine-api/internal/service"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/response"
)

// ScoreHandler accepts score batches from the surrounding system.
type ScoreHandler struct {
	scores *service.ScoreService
}

// NewScoreHandler constructs handler.
func NewScoreHandler(scores *service.ScoreService) *ScoreHandler {
	return &ScoreHandler{scores: scores}
}

// Ingest godoc
// @Summary Ingest a score batch for one assessment item
// @Tags Scores
// @Accept json
// @Produce json
// @Param payload body service.IngestScoresRequest true "Score batch"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /scores [post]
func (h *ScoreHandler) Ingest(c *gin.Context) {
	var req service.IngestScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	stored, err := h.scores.Ingest(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"stored": stored}, nil)
}
