package mocks

import (
	"context"
	"io"
	"strings"

	"github.com/sleepstars/nimbridge/internal/clients"
)

// MockUpstreamClient implements clients.UpstreamClient for testing
type MockUpstreamClient struct {
	CompleteFunc func(ctx context.Context, call *clients.Call) (map[string]interface{}, error)
	StreamFunc   func(ctx context.Context, call *clients.Call) (io.ReadCloser, error)

	// Calls records every call in the order received
	Calls []*clients.Call
}

func (m *MockUpstreamClient) Complete(ctx context.Context, call *clients.Call) (map[string]interface{}, error) {
	m.Calls = append(m.Calls, call)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, call)
	}
	return map[string]interface{}{}, nil
}

func (m *MockUpstreamClient) Stream(ctx context.Context, call *clients.Call) (io.ReadCloser, error) {
	m.Calls = append(m.Calls, call)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, call)
	}
	return io.NopCloser(strings.NewReader("data: [DONE]\n\n")), nil
}

// StreamBody returns a StreamFunc that serves the given events as SSE frames
func StreamBody(events ...string) func(ctx context.Context, call *clients.Call) (io.ReadCloser, error) {
	return func(ctx context.Context, call *clients.Call) (io.ReadCloser, error) {
		var b strings.Builder
		for _, ev := range events {
			b.WriteString("data: ")
			b.WriteString(ev)
			b.WriteString("\n\n")
		}
		return io.NopCloser(strings.NewReader(b.String())), nil
	}
}
