package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/contextbrain/internal/platform/apierr"
)

// respondError maps an internal error onto the stable external status
// and code set. Explicit call at the boundary, not middleware.
func respondError(c *gin.Context, err error) {
	boundary := apierr.FromError(err)
	c.JSON(boundary.Status, gin.H{
		"error": boundary.Error(),
		"code":  string(boundary.Code),
	})
}

// apiErrorPayload is the SSE-friendly form of the same mapping, used
// where the status line has already been sent.
func apiErrorPayload(err error) gin.H {
	boundary := apierr.FromError(err)
	return gin.H{
		"error": boundary.Error(),
		"code":  string(boundary.Code),
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
