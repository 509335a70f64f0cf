package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sleepstars/nimbridge/internal/clients"
	"github.com/sleepstars/nimbridge/internal/logger"
	"github.com/sleepstars/nimbridge/internal/metrics"
	"github.com/sleepstars/nimbridge/internal/models"
	"github.com/sleepstars/nimbridge/internal/translate"
)

// Phase is a step in the life of one proxied request
type Phase int

const (
	PhaseValidating Phase = iota
	PhaseBuildingUpstreamCall
	PhaseAwaitingUpstream
	PhaseStreamingRelay
	PhaseBufferedRelay
	PhaseCompleted
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseValidating:           "validating",
	PhaseBuildingUpstreamCall: "building_upstream_call",
	PhaseAwaitingUpstream:     "awaiting_upstream",
	PhaseStreamingRelay:       "streaming_relay",
	PhaseBufferedRelay:        "buffered_relay",
	PhaseCompleted:            "completed",
	PhaseFailed:               "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Options contains the settings the proxy applies to every request
type Options struct {
	ShowReasoning    bool
	ThinkingMode     bool
	APIKeyConfigured bool
}

// Proxy drives a request from the inbound body to the translated response
type Proxy struct {
	client  clients.UpstreamClient
	opts    Options
	metrics *metrics.Collector
	logger  *logger.Logger
}

// NewProxy creates a proxy over the given upstream client. metrics may be nil.
func NewProxy(client clients.UpstreamClient, opts Options, m *metrics.Collector) *Proxy {
	log := logger.GetLogger().WithComponent("proxy")
	log.Info("Creating proxy: show_reasoning=%t thinking_mode=%t api_key_configured=%t",
		opts.ShowReasoning, opts.ThinkingMode, opts.APIKeyConfigured)

	return &Proxy{
		client:  client,
		opts:    opts,
		metrics: m,
		logger:  log,
	}
}

func (p *Proxy) translateOptions() translate.Options {
	return translate.Options{ShowReasoning: p.opts.ShowReasoning, ThinkingMode: p.opts.ThinkingMode}
}

// Request is one inbound request moving through the phases. It belongs to a
// single handler goroutine.
type Request struct {
	ID     string
	Model  string
	Stream bool
	Call   *clients.Call

	phase  Phase
	logger *logger.Logger
}

// Phase returns the current phase
func (r *Request) Phase() Phase {
	return r.phase
}

func (r *Request) enter(phase Phase) {
	r.phase = phase
	r.logger.Debug("Request %s entering phase %s", r.ID, phase)
}

func (r *Request) fail(err error) error {
	failed := r.phase
	r.phase = PhaseFailed
	r.logger.WithError(err).Warn("Request %s failed during %s", r.ID, failed)
	return err
}

// Prepare validates the inbound body and builds the upstream call. The
// correlation id is reused when the client supplied one. A request that fails
// is returned in PhaseFailed together with the error.
func (p *Proxy) Prepare(body []byte, correlationID string) (*Request, error) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req := &Request{ID: correlationID, logger: p.logger}
	req.enter(PhaseValidating)

	upstream, err := translate.Request(body, p.translateOptions())
	if err != nil {
		return req, req.fail(err)
	}
	if !p.opts.APIKeyConfigured {
		return req, req.fail(models.NewServerMisconfigured("NIM_API_KEY is not configured"))
	}

	req.enter(PhaseBuildingUpstreamCall)
	req.Model = upstream.Model
	req.Stream = upstream.Stream
	req.Call = &clients.Call{Request: upstream, CorrelationID: correlationID}
	p.logger.Info("Request %s: model=%s stream=%t messages=%d", req.ID, req.Model, req.Stream, len(upstream.Messages))
	return req, nil
}

// Complete performs the buffered relay
func (p *Proxy) Complete(ctx context.Context, req *Request) (*models.ChatCompletionResponse, error) {
	req.enter(PhaseAwaitingUpstream)

	start := time.Now()
	body, err := p.client.Complete(ctx, req.Call)
	p.metrics.ObserveUpstream(metrics.ModeBuffered, time.Since(start))
	if err != nil {
		return nil, req.fail(err)
	}

	req.enter(PhaseBufferedRelay)
	resp := p.translateResponse(body, req.Model)

	req.enter(PhaseCompleted)
	return resp, nil
}

func (p *Proxy) translateResponse(body map[string]interface{}, model string) *models.ChatCompletionResponse {
	return translate.Response(body, model, p.translateOptions())
}
