package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sleepstars/nimbridge/internal/logger"
)

const chatCompletionsPath = "/chat/completions"

// Header names set on upstream requests
const (
	HeaderRequestID = "X-Request-ID"
)

// NIMClient implements UpstreamClient for NIM style OpenAI-compatible endpoints
type NIMClient struct {
	config   UpstreamClientConfig
	endpoint string
	client   *http.Client
	log      *logger.Logger
}

// NewNIMClient creates a new upstream client
func NewNIMClient(config UpstreamClientConfig) *NIMClient {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &NIMClient{
		config:   config,
		endpoint: strings.TrimRight(config.BaseURL, "/") + chatCompletionsPath,
		client:   client,
		log:      logger.GetLogger().WithComponent("upstream"),
	}
}

// Endpoint returns the URL requests are posted to
func (c *NIMClient) Endpoint() string {
	return c.endpoint
}

func (c *NIMClient) newRequest(ctx context.Context, call *Call, stream bool) (*http.Request, error) {
	// Prepare request body
	body, err := json.Marshal(call.Request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if call.CorrelationID != "" {
		httpReq.Header.Set(HeaderRequestID, call.CorrelationID)
	}
	return httpReq, nil
}

// send performs the request and turns non-2xx responses into UpstreamError.
// On success the caller owns the response body.
func (c *NIMClient) send(ctx context.Context, call *Call, stream bool) (*http.Response, error) {
	httpReq, err := c.newRequest(ctx, call, stream)
	if err != nil {
		return nil, err
	}

	c.log.Debug("POST %s stream=%t request_id=%s", c.endpoint, stream, call.CorrelationID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("send request: %v", err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		upErr := &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    ExtractErrorMessage(resp.StatusCode, body),
		}
		c.log.Warn("upstream returned %d: %s", resp.StatusCode, upErr.Message)
		return nil, upErr
	}
	return resp, nil
}

// Complete sends a buffered request
func (c *NIMClient) Complete(ctx context.Context, call *Call) (map[string]interface{}, error) {
	resp, err := c.send(ctx, call, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Parse response
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &UpstreamError{
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("decode upstream response: %v", err),
			Err:        err,
		}
	}
	if result == nil {
		result = map[string]interface{}{}
	}
	return result, nil
}

// Stream sends a streaming request. Cancelling ctx aborts the transfer.
func (c *NIMClient) Stream(ctx context.Context, call *Call) (io.ReadCloser, error) {
	resp, err := c.send(ctx, call, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
