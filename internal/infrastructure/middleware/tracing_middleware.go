package middleware

import (
	"time"

	"streamgate/pkg/errors"
	"streamgate/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TracingMiddleware opens a span per request and annotates it with the
// issuance error taxonomy, so a trace shows not just that a request failed
// but which error code and client-facing category it produced.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, c.FullPath())
		defer span.End()

		span.SetAttributes(
			attribute.String("http.host", c.Request.Host),
			attribute.String("http.user_agent", c.Request.UserAgent()),
			attribute.String("http.remote_addr", c.ClientIP()),
		)
		if requestID := c.Writer.Header().Get(RequestIDHeader); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		span.SetAttributes(
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.duration_ms", duration.Milliseconds()),
		)

		if c.Writer.Status() < 400 {
			span.SetStatus(codes.Ok, "")
			return
		}

		// Prefer the structured error over gin's concatenated string.
		if len(c.Errors) > 0 {
			if appErr := errors.GetAppError(c.Errors.Last().Err); appErr != nil {
				span.SetAttributes(
					attribute.String("issuance.error_code", string(appErr.Code)),
					attribute.String("issuance.error_category", string(errors.Categorize(appErr))),
				)
				span.SetStatus(codes.Error, appErr.Message)
				return
			}
		}
		span.SetStatus(codes.Error, c.Errors.String())
	}
}
