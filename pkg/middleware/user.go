package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/pkg/response"
)

const (
	// UserIDHeader carries the caller identity set by the upstream gateway
	UserIDHeader = "X-User-ID"
	// ContextKeyUserID is the gin context key for the caller identity
	ContextKeyUserID = "user_id"
)

// UserID copies the gateway-provided user id into the gin context.
// Authentication itself happens upstream.
func UserID(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" && required {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing "+UserIDHeader+" header", "")
			c.Abort()
			return
		}
		if userID != "" {
			c.Set(ContextKeyUserID, userID)
		}
		c.Next()
	}
}

// GetUserID returns the caller identity from the gin context
func GetUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
