package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sleepstars/nimbridge/internal/metrics"
	"github.com/sleepstars/nimbridge/internal/models"
	"github.com/sleepstars/nimbridge/internal/orchestrator"
)

func (s *Server) chatCompletions(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.writeError(c, metrics.ModeBuffered, models.NewInvalidRequest("could not read request body", ""))
		return
	}

	req, err := s.proxy.Prepare(body, c.GetString(requestIDKey))
	if err != nil {
		s.writeError(c, metrics.ModeBuffered, err)
		return
	}

	if req.Stream {
		s.stream(c, req)
		return
	}

	resp, err := s.proxy.Complete(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, metrics.ModeBuffered, err)
		return
	}

	c.JSON(http.StatusOK, resp)
	s.metrics.RecordRequest(metrics.ModeBuffered, http.StatusOK)
}

func (s *Server) stream(c *gin.Context, req *orchestrator.Request) {
	err := s.proxy.Stream(c.Request.Context(), req, &ginSink{c: c})
	if err != nil && !c.Writer.Written() {
		s.writeError(c, metrics.ModeStreaming, err)
		return
	}
	s.metrics.RecordRequest(metrics.ModeStreaming, c.Writer.Status())
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, models.Health{
		Status:           "ok",
		Service:          ServiceName,
		Upstream:         s.cfg.Upstream.BaseURL,
		APIKeyConfigured: s.cfg.HasAPIKey(),
		ShowReasoning:    s.cfg.Reasoning.Show,
		ThinkingMode:     s.cfg.Reasoning.ThinkingMode,
	})
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, models.EmptyModelList())
}

func (s *Server) notFound(c *gin.Context) {
	msg := fmt.Sprintf("Route not found: %s %s", c.Request.Method, c.Request.URL.Path)
	apiErr := models.NewNotFound(msg)
	c.JSON(apiErr.Status, apiErr.Envelope())
}

func (s *Server) writeError(c *gin.Context, mode string, err error) {
	apiErr := models.AsAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request %s failed with %d", c.GetString(requestIDKey), apiErr.Status)
	}
	c.JSON(apiErr.Status, apiErr.Envelope())
	s.metrics.RecordRequest(mode, apiErr.Status)
}

// ginSink writes an event stream through the gin response writer
type ginSink struct {
	c *gin.Context
}

func (s *ginSink) Begin() {
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.c.Writer.WriteHeaderNow()
}

func (s *ginSink) Write(p []byte) error {
	_, err := s.c.Writer.Write(p)
	return err
}

func (s *ginSink) Flush() {
	s.c.Writer.Flush()
}
