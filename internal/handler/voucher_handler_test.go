package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendly-api/internal/middleware"
	"github.com/noah-isme/attendly-api/internal/models"
	"github.com/noah-isme/attendly-api/internal/service"
	"github.com/noah-isme/attendly-api/pkg/config"
	"github.com/noah-isme/attendly-api/pkg/response"
)

func newTestContext(t *testing.T, method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestVoucherHandlerCheckInvalidBody(t *testing.T) {
	handler := NewVoucherHandler(nil, nil)
	c, w := newTestContext(t, http.MethodPost, "/vouchers/check", []byte(`not json`))

	handler.Check(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestVoucherHandlerCheckMissingCode(t *testing.T) {
	// The code field is enforced by the service validator, not by binding,
	// so the handler needs a real service to produce the 400.
	svc := service.NewVoucherService(nil, nil, nil, nil, nil, config.VouchersConfig{})
	handler := NewVoucherHandler(svc, nil)
	c, w := newTestContext(t, http.MethodPost, "/vouchers/check", []byte(`{}`))

	handler.Check(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestVoucherHandlerConfirmViewMissingVoucherID(t *testing.T) {
	handler := NewVoucherHandler(nil, nil)
	c, w := newTestContext(t, http.MethodPost, "/vouchers/confirm-view", []byte(`{}`))

	handler.ConfirmView(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoucherHandlerCreateInvalidBody(t *testing.T) {
	handler := NewVoucherHandler(nil, nil)
	c, w := newTestContext(t, http.MethodPost, "/vouchers", []byte(`{"number_of_codes": "five"}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin, FullName: "Staff"})

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRankingHandlerMyRankingRequiresStudentAccount(t *testing.T) {
	handler := NewRankingHandler(nil)
	c, w := newTestContext(t, http.MethodGet, "/rankings/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin})

	handler.MyRanking(c)
	require.Equal(t, http.StatusForbidden, w.Code)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "a student account is required", env.Error.Message)
}
