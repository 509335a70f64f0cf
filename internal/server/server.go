// Package server exposes the proxy over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sleepstars/nimbridge/internal/config"
	"github.com/sleepstars/nimbridge/internal/logger"
	"github.com/sleepstars/nimbridge/internal/metrics"
	"github.com/sleepstars/nimbridge/internal/orchestrator"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "nimbridge"

const shutdownGrace = 10 * time.Second

// Server wires the gin router to the proxy
type Server struct {
	cfg     *config.Config
	proxy   *orchestrator.Proxy
	metrics *metrics.Collector
	engine  *gin.Engine
	logger  *logger.Logger
}

// New creates the router and registers every route. metrics may be nil, in
// which case /metrics is not served.
func New(cfg *config.Config, proxy *orchestrator.Proxy, m *metrics.Collector) *Server {
	s := &Server{
		cfg:     cfg,
		proxy:   proxy,
		metrics: m,
		engine:  gin.New(),
		logger:  logger.GetLogger().WithComponent("server"),
	}

	s.engine.Use(
		s.recovery(),
		requestID(),
		cors(),
		s.requestLogger(),
	)

	for _, path := range []string{"/v1/chat/completions", "/chat/completions"} {
		s.engine.POST(path, s.chatCompletions)
	}
	for _, path := range []string{"/v1/models", "/models"} {
		s.engine.GET(path, s.listModels)
	}
	s.engine.GET("/health", s.health)
	if m != nil {
		s.engine.GET("/metrics", gin.WrapH(m.Handler()))
	}
	s.engine.NoRoute(s.notFound)

	return s
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s, forwarding to %s", srv.Addr, s.cfg.ChatCompletionsURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
