package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/contextbrain/internal/platform/ctxutil"
)

// RequestTrace stamps every request with a request id and the active
// otel trace id so handlers and services can correlate log lines.
func RequestTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		td := &ctxutil.TraceData{RequestID: requestID}
		if span := trace.SpanContextFromContext(c.Request.Context()); span.HasTraceID() {
			td.TraceID = span.TraceID().String()
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
