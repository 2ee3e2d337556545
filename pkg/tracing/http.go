package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware starts a server span per request. Paths under one of the
// untraced prefixes (health checks, scrapes, pixel hits) are served without a span.
func GinMiddleware(serviceName string, untraced ...string) gin.HandlerFunc {
	if len(untraced) == 0 {
		return otelgin.Middleware(serviceName)
	}
	return otelgin.Middleware(serviceName, otelgin.WithFilter(pathFilter(untraced)))
}

func pathFilter(prefixes []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, prefix := range prefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				return false
			}
		}
		return true
	}
}

// AnnotateRequest copies the :id route parameter onto the active span under key.
func AnnotateRequest(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Param("id"); id != "" {
			trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String(key, id))
		}
		c.Next()
	}
}
