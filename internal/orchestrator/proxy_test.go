package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleepstars/nimbridge/internal/clients"
	"github.com/sleepstars/nimbridge/internal/logger"
	"github.com/sleepstars/nimbridge/internal/metrics"
	"github.com/sleepstars/nimbridge/internal/mocks"
	"github.com/sleepstars/nimbridge/internal/models"
	"github.com/sleepstars/nimbridge/internal/sse"
)

func init() {
	logger.InitLogger(logger.INFO, "test")
}

const validBody = `{"model":"deepseek-ai/deepseek-r1","messages":[{"role":"user","content":"hi"}],"stream":true}`

// recordingSink captures a streamed response
type recordingSink struct {
	begun   bool
	buf     bytes.Buffer
	writes  int
	flushes int
	onWrite func(n int) error
}

func (s *recordingSink) Begin() { s.begun = true }

func (s *recordingSink) Write(p []byte) error {
	s.writes++
	if s.onWrite != nil {
		if err := s.onWrite(s.writes); err != nil {
			return err
		}
	}
	s.buf.Write(p)
	return nil
}

func (s *recordingSink) Flush() { s.flushes++ }

// contents decodes the recorded stream back into the delta content strings
func (s *recordingSink) contents(t *testing.T) []string {
	t.Helper()
	var d sse.Decoder
	var out []string
	for _, f := range d.Feed(s.buf.Bytes()) {
		if f.Kind != sse.KindData {
			continue
		}
		choices := f.Payload["choices"].([]interface{})
		delta := choices[0].(map[string]interface{})["delta"].(map[string]interface{})
		assert.NotContains(t, delta, "reasoning_content")
		assert.NotContains(t, delta, "reasoning")
		out = append(out, delta["content"].(string))
	}
	return out
}

func newTestProxy(client clients.UpstreamClient, show bool) (*Proxy, *metrics.Collector) {
	m := metrics.NewCollector(nil)
	return NewProxy(client, Options{ShowReasoning: show, APIKeyConfigured: true}, m), m
}

func TestProxy_Prepare(t *testing.T) {
	proxy, _ := newTestProxy(&mocks.MockUpstreamClient{}, false)

	req, err := proxy.Prepare([]byte(validBody), "client-id")
	require.NoError(t, err)
	assert.Equal(t, "client-id", req.ID)
	assert.Equal(t, "client-id", req.Call.CorrelationID)
	assert.Equal(t, "deepseek-ai/deepseek-r1", req.Model)
	assert.True(t, req.Stream)
	assert.Equal(t, PhaseBuildingUpstreamCall, req.Phase())

	req, err = proxy.Prepare([]byte(validBody), "")
	require.NoError(t, err)
	assert.NotEmpty(t, req.Call.CorrelationID, "correlation id is generated")
}

func TestProxy_PrepareErrors(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		apiKey     bool
		wantStatus int
		wantType   string
	}{
		{"missing model", `{"messages":[]}`, true, http.StatusBadRequest, models.ErrorTypeInvalidRequest},
		{"bad messages", `{"model":"m","messages":"x"}`, true, http.StatusBadRequest, models.ErrorTypeInvalidRequest},
		{"invalid json", `nope`, true, http.StatusBadRequest, models.ErrorTypeInvalidRequest},
		{"missing api key", validBody, false, http.StatusInternalServerError, models.ErrorTypeServer},
		{"validation precedes configuration", `{}`, false, http.StatusBadRequest, models.ErrorTypeInvalidRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mocks.MockUpstreamClient{}
			proxy := NewProxy(client, Options{APIKeyConfigured: tc.apiKey}, nil)

			req, err := proxy.Prepare([]byte(tc.body), "")
			require.Error(t, err)
			assert.Equal(t, PhaseFailed, req.Phase())

			apiErr := models.AsAPIError(err)
			assert.Equal(t, tc.wantStatus, apiErr.Status)
			assert.Equal(t, tc.wantType, apiErr.Type)
			assert.Empty(t, client.Calls, "upstream is never called")
		})
	}
}

func TestProxy_Complete(t *testing.T) {
	client := &mocks.MockUpstreamClient{
		CompleteFunc: func(ctx context.Context, call *clients.Call) (map[string]interface{}, error) {
			assert.False(t, call.Request.Stream)
			return map[string]interface{}{
				"model": "upstream-name",
				"choices": []interface{}{
					map[string]interface{}{
						"message": map[string]interface{}{
							"role":              "assistant",
							"reasoning_content": "let me think",
							"content":           "42",
						},
						"finish_reason": "stop",
					},
				},
			}, nil
		},
	}
	proxy, _ := newTestProxy(client, true)

	req, err := proxy.Prepare([]byte(`{"model":"client-name","messages":[]}`), "id")
	require.NoError(t, err)

	resp, err := proxy.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, req.Phase())
	assert.Equal(t, "client-name", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "<think>\nlet me think</think>\n\n42", resp.Choices[0].Message.Content)
	assert.Len(t, client.Calls, 1)
}

func TestProxy_CompleteUpstreamError(t *testing.T) {
	client := &mocks.MockUpstreamClient{
		CompleteFunc: func(ctx context.Context, call *clients.Call) (map[string]interface{}, error) {
			return nil, &clients.UpstreamError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
		},
	}
	proxy, _ := newTestProxy(client, false)

	req, err := proxy.Prepare([]byte(validBody), "")
	require.NoError(t, err)

	_, err = proxy.Complete(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, req.Phase())

	apiErr := models.AsAPIError(err)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, models.ErrorTypeUpstream, apiErr.Type)
	assert.Equal(t, "rate limited", apiErr.Message)
}

func TestProxy_Stream(t *testing.T) {
	events := []string{
		`{"choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":"a"}}]}`,
		`{"choices":[{"index":0,"delta":{"reasoning_content":"b"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"c"},"finish_reason":"stop"}]}`,
		`[DONE]`,
	}

	testCases := []struct {
		name string
		show bool
		want []string
	}{
		{"show reasoning", true, []string{"<think>\na", "b", "</think>\n\nc"}},
		{"hide reasoning", false, []string{"", "", "c"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mocks.MockUpstreamClient{StreamFunc: mocks.StreamBody(events...)}
			proxy, m := newTestProxy(client, tc.show)

			req, err := proxy.Prepare([]byte(validBody), "")
			require.NoError(t, err)

			sink := &recordingSink{}
			require.NoError(t, proxy.Stream(context.Background(), req, sink))

			assert.True(t, sink.begun)
			assert.Equal(t, PhaseCompleted, req.Phase())
			assert.True(t, strings.HasPrefix(sink.buf.String(), ": keepalive\n\n"))
			assert.True(t, strings.HasSuffix(sink.buf.String(), "data: [DONE]\n\n"))
			assert.Equal(t, tc.want, sink.contents(t))
			assert.Equal(t, sink.writes, sink.flushes, "every write is flushed")

			count, err := testutil.GatherAndCount(m.Registry(), "nimbridge_upstream_duration_seconds")
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestProxy_StreamRawFramesPassThrough(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\r\n\r\n" +
		"event: ping\n\n" +
		"data: not-json\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"y\"}}]}\n\n" +
		"data: [DONE]\n\n"

	client := &mocks.MockUpstreamClient{
		StreamFunc: func(ctx context.Context, call *clients.Call) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
	proxy, _ := newTestProxy(client, true)

	req, err := proxy.Prepare([]byte(validBody), "")
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, proxy.Stream(context.Background(), req, sink))

	assert.Contains(t, sink.buf.String(), "data: not-json\n\n")
	assert.NotContains(t, sink.buf.String(), "ping")
	assert.Equal(t, []string{"x", "y"}, sink.contents(t))
}

func TestProxy_StreamUpstreamErrorBeforeBegin(t *testing.T) {
	client := &mocks.MockUpstreamClient{
		StreamFunc: func(ctx context.Context, call *clients.Call) (io.ReadCloser, error) {
			return nil, &clients.UpstreamError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
		},
	}
	proxy, _ := newTestProxy(client, true)

	req, err := proxy.Prepare([]byte(validBody), "")
	require.NoError(t, err)

	sink := &recordingSink{}
	err = proxy.Stream(context.Background(), req, sink)
	require.Error(t, err)
	assert.False(t, sink.begun, "nothing is committed before the upstream answers")
	assert.Equal(t, http.StatusTooManyRequests, models.AsAPIError(err).Status)
	assert.Equal(t, PhaseFailed, req.Phase())
}

// failingReader returns its data and then an error
type failingReader struct {
	data io.Reader
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF {
		return n, r.err
	}
	return n, err
}

func TestProxy_StreamReadErrorEndsStream(t *testing.T) {
	boom := errors.New("connection reset by peer")
	client := &mocks.MockUpstreamClient{
		StreamFunc: func(ctx context.Context, call *clients.Call) (io.ReadCloser, error) {
			return io.NopCloser(&failingReader{
				data: strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n"),
				err:  boom,
			}), nil
		},
	}
	proxy, _ := newTestProxy(client, true)

	req, err := proxy.Prepare([]byte(validBody), "")
	require.NoError(t, err)

	sink := &recordingSink{}
	err = proxy.Stream(context.Background(), req, sink)
	assert.ErrorIs(t, err, boom)
	assert.True(t, sink.begun)
	assert.Equal(t, []string{"partial"}, sink.contents(t))
	assert.Equal(t, PhaseFailed, req.Phase())
}

func TestProxy_StreamClientDisconnectAbortsUpstream(t *testing.T) {
	upstreamGone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"thinking\"}}]}\n\n")
		w.(http.Flusher).Flush()

		// Keep the stream open until the proxy hangs up
		<-r.Context().Done()
		close(upstreamGone)
	}))
	defer server.Close()

	client := clients.NewNIMClient(clients.UpstreamClientConfig{BaseURL: server.URL, APIKey: "secret"})
	proxy, m := newTestProxy(client, true)

	req, err := proxy.Prepare([]byte(validBody), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keepalive is write 1, the first relayed frame write 2
	sink := &recordingSink{onWrite: func(n int) error {
		if n == 2 {
			cancel()
		}
		return nil
	}}

	err = proxy.Stream(ctx, req, sink)
	assert.ErrorIs(t, err, ErrClientGone)
	assert.Equal(t, PhaseFailed, req.Phase())

	select {
	case <-upstreamGone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not aborted")
	}

	expected := `
# HELP nimbridge_stream_disconnects_total Streams aborted because the client went away.
# TYPE nimbridge_stream_disconnects_total counter
nimbridge_stream_disconnects_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "nimbridge_stream_disconnects_total"))
}

func TestProxy_StreamWriteFailure(t *testing.T) {
	client := &mocks.MockUpstreamClient{StreamFunc: mocks.StreamBody(
		`{"choices":[{"delta":{"content":"a"}}]}`,
		`{"choices":[{"delta":{"content":"b"}}]}`,
	)}
	proxy, _ := newTestProxy(client, false)

	req, err := proxy.Prepare([]byte(validBody), "")
	require.NoError(t, err)

	sink := &recordingSink{onWrite: func(n int) error {
		if n == 2 {
			return errors.New("broken pipe")
		}
		return nil
	}}

	err = proxy.Stream(context.Background(), req, sink)
	assert.ErrorIs(t, err, ErrClientGone)
	assert.Equal(t, ": keepalive\n\n", sink.buf.String())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "validating", PhaseValidating.String())
	assert.Equal(t, "building_upstream_call", PhaseBuildingUpstreamCall.String())
	assert.Equal(t, "awaiting_upstream", PhaseAwaitingUpstream.String())
	assert.Equal(t, "streaming_relay", PhaseStreamingRelay.String())
	assert.Equal(t, "buffered_relay", PhaseBufferedRelay.String())
	assert.Equal(t, "completed", PhaseCompleted.String())
	assert.Equal(t, "failed", PhaseFailed.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
