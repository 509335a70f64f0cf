// Package translate converts between the OpenAI chat-completion wire shapes and
// the upstream API's shapes.
package translate

import (
	"bytes"
	"encoding/json"

	"github.com/sleepstars/nimbridge/internal/models"
)

// Options carries the configuration switches that change translation.
type Options struct {
	// ShowReasoning surfaces upstream reasoning inside <think> blocks.
	ShowReasoning bool
	// ThinkingMode asks the upstream template to produce reasoning.
	ThinkingMode bool
}

// Inbound field names.
const (
	fieldModel               = "model"
	fieldMessages            = "messages"
	fieldTemperature         = "temperature"
	fieldMaxTokens           = "max_tokens"
	fieldMaxCompletionTokens = "max_completion_tokens"
	fieldStream              = "stream"
	fieldTopP                = "top_p"
	fieldPresencePenalty     = "presence_penalty"
	fieldFrequencyPenalty    = "frequency_penalty"
	fieldStop                = "stop"
)

var jsonNull = []byte("null")

// Request validates an inbound chat-completion body and builds the upstream
// request from it. Messages and sampling values are carried as raw JSON and
// never reinterpreted; unknown fields are dropped.
func Request(body []byte, opts Options) (*models.UpstreamRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, models.NewInvalidRequest("invalid JSON body", "")
	}

	model, err := modelName(fields[fieldModel])
	if err != nil {
		return nil, err
	}

	messages, err := messageList(fields[fieldMessages])
	if err != nil {
		return nil, err
	}

	req := &models.UpstreamRequest{
		Model:            model,
		Messages:         messages,
		Temperature:      firstPresent(json.RawMessage(models.DefaultTemperature), fields[fieldTemperature]),
		MaxTokens:        firstPresent(defaultMaxTokens, fields[fieldMaxTokens], fields[fieldMaxCompletionTokens]),
		Stream:           truthy(fields[fieldStream]),
		TopP:             fields[fieldTopP],
		PresencePenalty:  fields[fieldPresencePenalty],
		FrequencyPenalty: fields[fieldFrequencyPenalty],
		Stop:             fields[fieldStop],
	}

	if opts.ThinkingMode {
		req.ChatTemplateKwargs = map[string]interface{}{"thinking": true}
	}

	return req, nil
}

var defaultMaxTokens = mustMarshal(models.DefaultMaxTokens)

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func modelName(raw json.RawMessage) (string, error) {
	if !present(raw) {
		return "", models.NewInvalidRequest("model is required", fieldModel)
	}
	var model string
	if err := json.Unmarshal(raw, &model); err != nil {
		// Falsy non-strings (false, 0) read as missing, anything else as mistyped
		if !truthy(raw) {
			return "", models.NewInvalidRequest("model is required", fieldModel)
		}
		return "", models.NewInvalidRequest("model must be a string", fieldModel)
	}
	if model == "" {
		return "", models.NewInvalidRequest("model is required", fieldModel)
	}
	return model, nil
}

func messageList(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, models.NewInvalidRequest("messages must be an array", fieldMessages)
	}
	messages := []json.RawMessage{}
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return nil, models.NewInvalidRequest("messages must be an array", fieldMessages)
	}
	return messages, nil
}

// present reports whether a field was supplied with a non-null value.
func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, jsonNull)
}

// firstPresent returns the first supplied candidate, or def when none is.
func firstPresent(def json.RawMessage, candidates ...json.RawMessage) json.RawMessage {
	for _, c := range candidates {
		if present(c) {
			return c
		}
	}
	return def
}

// truthy applies loose truthiness to a raw JSON value: false, 0, "" and null
// are false, every other value is true.
func truthy(raw json.RawMessage) bool {
	if !present(raw) {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	}
	return true
}
