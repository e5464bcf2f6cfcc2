package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendly-api/internal/middleware"
	"github.com/noah-isme/attendly-api/internal/models"
)

// claimsFromContext returns the JWT claims the auth middleware stored, or nil
// on routes where it did not run.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, _ := c.Value(middleware.ContextUserKey).(*models.JWTClaims)
	return claims
}
