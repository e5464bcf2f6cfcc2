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

// RankingHandler exposes ranking endpoints.
type RankingHandler struct {
	rankings *service.RankingService
}

// NewRankingHandler constructs a ranking handler.
func NewRankingHandler(rankings *service.RankingService) *RankingHandler {
	return &RankingHandler{rankings: rankings}
}

// MyRanking godoc
// @Summary Return the calling student's ranking
// @Tags Rankings
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /rankings/me [get]
func (h *RankingHandler) MyRanking(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.StudentID == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "a student account is required"))
		return
	}
	ranking, err := h.rankings.MyRanking(c.Request.Context(), *claims.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ranking, nil)
}

// ViewScores godoc
// @Summary List students with computed ranks
// @Tags Rankings
// @Produce json
// @Param grade query string false "Filter by grade"
// @Param main_center query string false "Filter by center"
// @Param search query string false "Search by name"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /rankings/scores [get]
func (h *RankingHandler) ViewScores(c *gin.Context) {
	filter := models.StudentFilter{
		Grade:      c.Query("grade"),
		MainCenter: c.Query("main_center"),
		Search:     c.Query("search"),
		SortBy:     c.Query("sort_by"),
		SortOrder:  c.Query("sort_order"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	ranked, pagination, err := h.rankings.ViewScores(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ranked, pagination)
}
