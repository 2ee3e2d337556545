package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mailwave/pkg/errors"
	"mailwave/pkg/logging"
)

const RequestIDHeader = "X-Request-ID"

// Logger is the subset of the service logger the middlewares write to.
type Logger interface {
	InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
}

// RequestIDMiddleware reuses the caller's X-Request-ID or mints one, and
// stores it on the request context so every log line of the request carries it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(logging.RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// CampaignContext tags the request context with the :id route parameter as
// the campaign being operated on.
func CampaignContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Param("id"); id != "" {
			c.Request = c.Request.WithContext(logging.WithCampaignID(c.Request.Context(), id))
		}
		c.Next()
	}
}

// LoggerMiddleware writes one access line per request. Paths starting with a
// quiet prefix are only logged when they fail.
func LoggerMiddleware(logger Logger, quiet ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if status < 500 && hasPrefix(path, quiet) {
			return
		}

		fields := []interface{}{
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, "route", route)
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			fields = append(fields, "error", msg)
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			logger.ErrorwCtx(ctx, "HTTP request", fields...)
		case status >= 400:
			logger.WarnwCtx(ctx, "HTTP request", fields...)
		default:
			logger.InfowCtx(ctx, "HTTP request", fields...)
		}
	}
}

// RecoveryMiddleware answers a panicking handler with the standard internal
// error body.
func RecoveryMiddleware(logger Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := errors.FromPanic(recovered)
		logger.ErrorwCtx(c.Request.Context(), "Panic recovered",
			"error", err.Cause,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"stack_trace", err.Details["stack_trace"],
		)
		c.AbortWithStatusJSON(err.Status, errors.ToErrorResponse(errors.ErrInternal))
	})
}

// BearerAuth rejects requests whose Authorization header does not carry
// secret as a bearer token. An empty secret lets every request through.
func BearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" && !bearerMatches(c.GetHeader("Authorization"), secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ToErrorResponse(errors.ErrUnauthorized))
			return
		}
		c.Next()
	}
}

func bearerMatches(header, secret string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
