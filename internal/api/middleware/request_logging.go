// Package middleware provides HTTP middleware for the proxy server,
// currently full request/response capture for the request logger.
package middleware

import (
	"bytes"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/cursor-proxy/CursorProxyAPI/internal/logging"
)

// RequestLoggingMiddleware creates a Gin middleware that records complete
// request and response bodies through the given logger. Disabled logging
// costs nothing on the request path.
func RequestLoggingMiddleware(logger logging.RequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !logger.IsEnabled() {
			c.Next()
			return
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		wrapper := newResponseCapture(c.Writer)
		c.Writer = wrapper

		c.Next()

		logger.LogExchange(c.Request.Method, c.Request.URL.Path, wrapper.Status(), requestBody, wrapper.Body())
	}
}
