package clients

import (
	"context"
	"io"
	"net/http"

	"github.com/sleepstars/nimbridge/internal/models"
)

// UpstreamClient defines the interface for the upstream chat completions API
type UpstreamClient interface {
	// Complete sends a buffered request and returns the decoded response body
	Complete(ctx context.Context, call *Call) (map[string]interface{}, error)

	// Stream sends a streaming request and returns the open event stream body.
	// The caller must close it.
	Stream(ctx context.Context, call *Call) (io.ReadCloser, error)
}

// Call is one upstream request together with its correlation id
type Call struct {
	Request       *models.UpstreamRequest
	CorrelationID string
}

// UpstreamClientConfig contains configuration for upstream clients
type UpstreamClientConfig struct {
	BaseURL string
	APIKey  string
	// HTTPClient defaults to a client without timeouts
	HTTPClient *http.Client
}
