package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// TokenMiddleware extracts the bearer token and stashes it on the
// request context. Authorization itself happens per operation in the
// service layer, where the operation name and target scope are known;
// this layer only rejects requests carrying no token at all.
type TokenMiddleware struct {
	log *logger.Logger
}

func NewTokenMiddleware(log *logger.Logger) *TokenMiddleware {
	return &TokenMiddleware{log: log.With("middleware", "TokenMiddleware")}
}

func (tm *TokenMiddleware) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		ctx := auth.WithRawToken(c.Request.Context(), token)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	// Query-param tokens support EventSource clients that cannot set
	// headers.
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
