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

// VoucherHandler exposes voucher management and the playback gate.
type VoucherHandler struct {
	vouchers *service.VoucherService
	metrics  *service.MetricsService
}

// NewVoucherHandler constructs a voucher handler.
func NewVoucherHandler(vouchers *service.VoucherService, metrics *service.MetricsService) *VoucherHandler {
	return &VoucherHandler{vouchers: vouchers, metrics: metrics}
}

// List godoc
// @Summary List vouchers
// @Tags Vouchers
// @Produce json
// @Param search query string false "Search by code prefix or creator name"
// @Param viewed query bool false "Filter by viewed flag"
// @Param code_state query string false "Filter by activation state"
// @Param payment_state query string false "Filter by payment state"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /vouchers [get]
func (h *VoucherHandler) List(c *gin.Context) {
	filter := models.VoucherFilter{
		Search:       c.Query("search"),
		CodeState:    models.CodeState(c.Query("code_state")),
		PaymentState: models.PaymentState(c.Query("payment_state")),
		SortBy:       c.Query("sort_by"),
		SortOrder:    c.Query("sort_order"),
	}
	if raw := c.Query("viewed"); raw != "" {
		viewed := raw == "true"
		filter.Viewed = &viewed
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	vouchers, pagination, err := h.vouchers.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vouchers, pagination)
}

// Create godoc
// @Summary Create a batch of voucher codes
// @Tags Vouchers
// @Accept json
// @Produce json
// @Param payload body service.CreateVouchersRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /vouchers [post]
func (h *VoucherHandler) Create(c *gin.Context) {
	var req service.CreateVouchersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	creator := ""
	if claims := claimsFromContext(c); claims != nil {
		creator = claims.FullName
	}

	vouchers, err := h.vouchers.Create(c.Request.Context(), req, creator)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, vouchers)
}

// Update godoc
// @Summary Update a voucher
// @Tags Vouchers
// @Accept json
// @Produce json
// @Param id path string true "Voucher id"
// @Param payload body service.UpdateVoucherRequest true "Partial voucher payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /vouchers/{id} [put]
func (h *VoucherHandler) Update(c *gin.Context) {
	var req service.UpdateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	voucher, err := h.vouchers.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, voucher, nil)
}

// Delete godoc
// @Summary Delete a voucher
// @Tags Vouchers
// @Param id path string true "Voucher id"
// @Success 204
// @Security BearerAuth
// @Router /vouchers/{id} [delete]
func (h *VoucherHandler) Delete(c *gin.Context) {
	if err := h.vouchers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Check godoc
// @Summary Check a voucher code before playback
// @Tags Vouchers
// @Accept json
// @Produce json
// @Param payload body service.CheckVoucherRequest true "Code payload"
// @Success 200 {object} models.VoucherCheckResult
// @Security BearerAuth
// @Router /vouchers/check [post]
func (h *VoucherHandler) Check(c *gin.Context) {
	var req service.CheckVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.vouchers.Check(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		h.metrics.RecordVoucherCheck("error")
		response.Error(c, err)
		return
	}
	if result.Success {
		h.metrics.RecordVoucherCheck("accepted")
	} else {
		h.metrics.RecordVoucherCheck("rejected")
	}
	c.JSON(http.StatusOK, result)
}

// ConfirmView godoc
// @Summary Confirm that playback started
// @Tags Vouchers
// @Accept json
// @Produce json
// @Param payload body handler.ConfirmViewRequest true "Voucher id payload"
// @Success 200 {object} models.VoucherCheckResult
// @Security BearerAuth
// @Router /vouchers/confirm-view [post]
func (h *VoucherHandler) ConfirmView(c *gin.Context) {
	var req ConfirmViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.vouchers.ConfirmView(c.Request.Context(), req.VoucherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ConfirmViewRequest identifies the voucher whose playback is confirmed.
type ConfirmViewRequest struct {
	VoucherID string `json:"voucher_id" binding:"required"`
}
