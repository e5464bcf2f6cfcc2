package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendly-api/internal/models"
	"github.com/noah-isme/attendly-api/internal/service"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
	"github.com/noah-isme/attendly-api/pkg/response"
)

// ExportHandler exposes score-table export endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// CreateExportRequest selects the artifact format.
type CreateExportRequest struct {
	Format models.ExportFormat `json:"format" binding:"required"`
}

// Create godoc
// @Summary Queue a score-table export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body handler.CreateExportRequest true "Format payload"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	requestedBy := ""
	if claims := claimsFromContext(c); claims != nil {
		requestedBy = claims.UserID
	}

	job, err := h.exports.CreateJob(c.Request.Context(), req.Format, requestedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Report export job progress
// @Tags Exports
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	status, err := h.exports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished export artifact
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, job, err := h.exports.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("scores-%s.%s", job.ID, job.Format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export artifact"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentTypeFor(job.Format), file, nil)
}

func contentTypeFor(format models.ExportFormat) string {
	switch format {
	case models.ExportCSV:
		return "text/csv"
	case models.ExportPDF:
		return "application/pdf"
	case models.ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}
