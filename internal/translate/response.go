package translate

import (
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sleepstars/nimbridge/internal/models"
	"github.com/sleepstars/nimbridge/internal/reasoning"
)

const (
	defaultRole    = "assistant"
	responsePrefix = "chatcmpl-"
)

// now is replaced in tests.
var now = time.Now

// Response builds the client envelope from a decoded upstream response. The
// model reported back is the one the client asked for.
func Response(upstream map[string]interface{}, model string, opts Options) *models.ChatCompletionResponse {
	resp := &models.ChatCompletionResponse{
		ID:      responsePrefix + uuid.NewString(),
		Object:  models.ObjectChatCompletion,
		Created: now().Unix(),
		Model:   model,
		Choices: []models.ChatCompletionChoice{},
		Usage:   usageFrom(upstream["usage"]),
	}

	choices, _ := upstream["choices"].([]interface{})
	for i, c := range choices {
		choice, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		resp.Choices = append(resp.Choices, translateChoice(choice, i, opts))
	}
	return resp
}

func translateChoice(choice map[string]interface{}, position int, opts Options) models.ChatCompletionChoice {
	out := models.ChatCompletionChoice{
		Index:   position,
		Message: models.ChatCompletionMessage{Role: defaultRole},
	}
	if idx, ok := choice["index"].(float64); ok {
		out.Index = int(idx)
	}
	if reason, ok := choice["finish_reason"].(string); ok {
		out.FinishReason = &reason
	}

	message, _ := choice["message"].(map[string]interface{})
	if message == nil {
		return out
	}
	if role, ok := message["role"].(string); ok && role != "" {
		out.Message.Role = role
	}
	f := reasoning.FragmentFrom(message)
	out.Message.Content = reasoning.Combine(f.Reasoning, f.Content, opts.ShowReasoning)
	return out
}

func usageFrom(v interface{}) openai.Usage {
	usage, _ := v.(map[string]interface{})
	return openai.Usage{
		PromptTokens:     intField(usage, "prompt_tokens"),
		CompletionTokens: intField(usage, "completion_tokens"),
		TotalTokens:      intField(usage, "total_tokens"),
	}
}

func intField(obj map[string]interface{}, key string) int {
	n, _ := obj[key].(float64)
	return int(n)
}

// Chunk rewrites one decoded stream event in place. Every choice delta gets
// its content replaced by the recombined text and loses its reasoning fields;
// all other fields are left as the upstream sent them.
func Chunk(payload map[string]interface{}, rec *reasoning.Recombiner) {
	choices, _ := payload["choices"].([]interface{})
	for _, c := range choices {
		choice, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		delta, ok := choice["delta"].(map[string]interface{})
		if !ok {
			continue
		}
		delta["content"] = rec.Merge(reasoning.FragmentFrom(delta))
		reasoning.StripFields(delta)
	}
}
