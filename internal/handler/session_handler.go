package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendly-api/internal/models"
	"github.com/noah-isme/attendly-api/internal/service"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
	"github.com/noah-isme/attendly-api/pkg/response"
)

// SessionHandler exposes homework video session endpoints.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List godoc
// @Summary List homework video sessions
// @Tags Sessions
// @Produce json
// @Param grade query string false "Filter by grade"
// @Param week query int false "Filter by week"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	filter := models.SessionFilter{Grade: c.Query("grade")}
	if raw := c.Query("week"); raw != "" {
		if week, err := strconv.Atoi(raw); err == nil {
			filter.Week = &week
		}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	sessions, pagination, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Fetch one session with its videos
// @Tags Sessions
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Create godoc
// @Summary Create a homework video session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.SessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Update godoc
// @Summary Update a homework video session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param payload body service.SessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	var req service.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.sessions.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete a homework video session
// @Tags Sessions
// @Param id path string true "Session id"
// @Success 204
// @Security BearerAuth
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
