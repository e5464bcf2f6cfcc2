package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendly-api/internal/models"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
)

// Envelope is the wire contract every JSON endpoint replies with. Exactly one
// of Data or Error is set; Pagination and Meta ride along when relevant.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON writes a success envelope. Pass a nil pagination for unpaged payloads;
// an optional single meta map is folded into the envelope.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	env := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		env.Meta = meta[0]
	}
	noStore(c)
	c.JSON(status, env)
}

// Created writes a 201 envelope around the freshly created resource.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error normalizes err into the envelope's error shape and writes it with
// the status the domain error dictates.
func Error(c *gin.Context, err error) {
	domain := appErrors.FromError(err)
	noStore(c)
	c.JSON(domain.Status, Envelope{Error: domain})
}

// NoContent writes an empty 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Responses carry per-user data, so proxies must never cache them.
func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
