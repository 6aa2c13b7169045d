package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbta-eval-api/internal/middleware"
	"github.com/noah-isme/cbta-eval-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
