package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sleepstars/nimbridge/internal/models"
)

// maxRawMessage bounds how much of an unstructured error body is reported.
const maxRawMessage = 512

// UpstreamError is a failed upstream call. StatusCode is zero when no
// response was received.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream: %s", e.Message)
	}
	return fmt.Sprintf("upstream %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// As lets errors.As view an UpstreamError as the client-facing APIError.
func (e *UpstreamError) As(target interface{}) bool {
	t, ok := target.(**models.APIError)
	if !ok {
		return false
	}
	*t = models.NewUpstreamError(e.StatusCode, e.Message)
	return true
}

// ExtractErrorMessage picks a human-readable message out of an upstream error
// body. Shapes are tried in order:
//
//	{"error": {"message": "..."}}
//	{"error": "..."}
//	{"message": "..."}
//	{"detail": "..."}
//
// then the raw body text, then the HTTP status text.
func ExtractErrorMessage(status int, body []byte) string {
	extractors := []func([]byte) string{
		structuredMessage,
		stringField("error"),
		stringField("message"),
		detailField,
		rawText,
	}
	for _, extract := range extractors {
		if msg := extract(body); msg != "" {
			return msg
		}
	}

	if text := http.StatusText(status); text != "" {
		return text
	}
	return "upstream request failed"
}

func structuredMessage(body []byte) string {
	var resp openai.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == nil {
		return ""
	}
	return resp.Error.Message
}

func fields(body []byte) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return m
}

func stringField(key string) func([]byte) string {
	return func(body []byte) string {
		var s string
		if err := json.Unmarshal(fields(body)[key], &s); err != nil {
			return ""
		}
		return s
	}
}

// detailField accepts FastAPI style details, which are either a string or a
// list of validation errors.
func detailField(body []byte) string {
	raw := bytes.TrimSpace(fields(body)["detail"])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func rawText(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxRawMessage {
		text = text[:maxRawMessage] + "..."
	}
	return text
}
