package middleware

import (
	"time"

	"streamgate/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogMiddleware emits one structured line per request, enriched with
// the request id the RequestIDMiddleware placed in the context.
func RequestLogMiddleware(zapLogger *zap.Logger) gin.HandlerFunc {
	cl := logger.NewContextLogger(zapLogger)

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		cl.LogRequest(c.Request.Context(), c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
