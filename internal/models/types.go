package models

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults applied by the request translator when the client leaves a field out.
const (
	DefaultTemperature = "0.6"
	DefaultMaxTokens   = 9024
)

// Object tags used in outgoing payloads.
const (
	ObjectChatCompletion = "chat.completion"
	ObjectList           = "list"
)

// UpstreamRequest is the body sent to the upstream chat completions endpoint.
// Optional sampling fields hold the client's raw JSON so values are forwarded
// exactly; an empty RawMessage means the field was absent and is omitted.
type UpstreamRequest struct {
	Model              string            `json:"model"`
	Messages           []json.RawMessage `json:"messages"`
	Temperature        json.RawMessage   `json:"temperature"`
	MaxTokens          json.RawMessage   `json:"max_tokens"`
	Stream             bool              `json:"stream"`
	TopP               json.RawMessage   `json:"top_p,omitempty"`
	PresencePenalty    json.RawMessage   `json:"presence_penalty,omitempty"`
	FrequencyPenalty   json.RawMessage   `json:"frequency_penalty,omitempty"`
	Stop               json.RawMessage   `json:"stop,omitempty"`
	ChatTemplateKwargs map[string]any    `json:"chat_template_kwargs,omitempty"`
}

// ChatCompletionMessage is an outgoing assistant message. Content is always a string.
type ChatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionChoice represents a completion choice
type ChatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason *string               `json:"finish_reason,omitempty"`
}

// ChatCompletionResponse represents the buffered response returned to the client
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   openai.Usage           `json:"usage"`
}

// ModelList is the body of the models endpoint.
type ModelList struct {
	Object string            `json:"object"`
	Data   []json.RawMessage `json:"data"`
}

// EmptyModelList returns the list served by the models endpoint; the proxy does
// not manage a catalog.
func EmptyModelList() ModelList {
	return ModelList{Object: ObjectList, Data: []json.RawMessage{}}
}

// Health is the body of the health endpoint.
type Health struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Upstream         string `json:"upstream"`
	APIKeyConfigured bool   `json:"api_key_configured"`
	ShowReasoning    bool   `json:"show_reasoning"`
	ThinkingMode     bool   `json:"thinking_mode"`
}
