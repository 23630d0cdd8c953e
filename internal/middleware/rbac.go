package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/response"
)

// RequireReviewer allows only reviewing roles (reviewer, admin).
func RequireReviewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !claims.Role.IsReviewer() {
			response.AbortFail(c, http.StatusForbidden, response.ErrReviewerOnly)
			return
		}
		c.Next()
	}
}
