package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sleepstars/nimbridge/internal/models"
)

const (
	headerRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
	redactedValue   = "[REDACTED]"
)

// sensitiveHeaders are masked in request logs when redaction is on
var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
	"X-Api-Key":           true,
}

// requestID reuses the client's X-Request-ID or assigns a new one, and echoes
// it on the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// cors allows browser clients from any origin. Preflight requests on any path
// are answered here with 204.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", headerRequestID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// recovery turns a panic into a 500 error envelope
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered interface{}) {
		s.logger.Error("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		apiErr := models.AsAPIError(nil)
		c.AbortWithStatusJSON(apiErr.Status, apiErr.Envelope())
	})
}

// requestLogger logs inbound requests when debug request logging is enabled
func (s *Server) requestLogger() gin.HandlerFunc {
	dbg := s.cfg.Debug
	return func(c *gin.Context) {
		if !dbg.LogRequests {
			c.Next()
			return
		}

		id := c.GetString(requestIDKey)
		s.logger.Info("--> %s %s request_id=%s", c.Request.Method, c.Request.URL.Path, id)
		if dbg.LogHeaders {
			s.logger.Info("    headers: %v", headerSnapshot(c.Request.Header, dbg.RedactHeaders))
		}
		if dbg.LogBodies && c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewReader(body))
				s.logger.Info("    body: %s", truncateBody(body, dbg.MaxBodyLogSize))
			}
		}

		start := time.Now()
		c.Next()
		s.logger.Info("<-- %d %s %s request_id=%s (%s)", c.Writer.Status(), c.Request.Method, c.Request.URL.Path, id, time.Since(start))
	}
}

// headerSnapshot flattens headers for logging, masking credentials when redact is set
func headerSnapshot(h http.Header, redact bool) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if redact && sensitiveHeaders[http.CanonicalHeaderKey(name)] {
			out[name] = redactedValue
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func truncateBody(body []byte, max int) string {
	if max <= 0 || len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "...(truncated)"
}
