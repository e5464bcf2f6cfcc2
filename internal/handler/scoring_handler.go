package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendly-api/internal/service"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
	"github.com/noah-isme/attendly-api/pkg/response"
)

// ScoringHandler exposes scoring condition management and the calculator.
type ScoringHandler struct {
	scoring *service.ScoringService
}

// NewScoringHandler constructs a scoring handler.
func NewScoringHandler(scoring *service.ScoringService) *ScoringHandler {
	return &ScoringHandler{scoring: scoring}
}

// ListConditions godoc
// @Summary List scoring conditions
// @Tags Scoring
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scoring/conditions [get]
func (h *ScoringHandler) ListConditions(c *gin.Context) {
	conditions, err := h.scoring.ListConditions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conditions, nil)
}

// GetCondition godoc
// @Summary Fetch one scoring condition
// @Tags Scoring
// @Produce json
// @Param id path string true "Condition id"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scoring/conditions/{id} [get]
func (h *ScoringHandler) GetCondition(c *gin.Context) {
	condition, err := h.scoring.GetCondition(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, condition, nil)
}

// CreateCondition godoc
// @Summary Create a scoring condition
// @Tags Scoring
// @Accept json
// @Produce json
// @Param payload body service.ConditionRequest true "Condition payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /scoring/conditions [post]
func (h *ScoringHandler) CreateCondition(c *gin.Context) {
	var req service.ConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	condition, err := h.scoring.CreateCondition(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, condition)
}

// UpdateCondition godoc
// @Summary Update a scoring condition
// @Tags Scoring
// @Accept json
// @Produce json
// @Param id path string true "Condition id"
// @Param payload body service.ConditionRequest true "Condition payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scoring/conditions/{id} [put]
func (h *ScoringHandler) UpdateCondition(c *gin.Context) {
	var req service.ConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	condition, err := h.scoring.UpdateCondition(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, condition, nil)
}

// DeleteCondition godoc
// @Summary Delete a scoring condition
// @Tags Scoring
// @Param id path string true "Condition id"
// @Success 204
// @Security BearerAuth
// @Router /scoring/conditions/{id} [delete]
func (h *ScoringHandler) DeleteCondition(c *gin.Context) {
	if err := h.scoring.DeleteCondition(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Calculate godoc
// @Summary Apply the configured condition to one student outcome
// @Tags Scoring
// @Accept json
// @Produce json
// @Param payload body service.CalculateRequest true "Outcome payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scoring/calculate [post]
func (h *ScoringHandler) Calculate(c *gin.Context) {
	var req service.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.scoring.Calculate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// LastHistory godoc
// @Summary Fetch the latest applied delta for a student and type
// @Tags Scoring
// @Accept json
// @Produce json
// @Param payload body service.LastHistoryRequest true "History probe"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scoring/history/last [post]
func (h *ScoringHandler) LastHistory(c *gin.Context) {
	var req service.LastHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.scoring.LastHistory(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
