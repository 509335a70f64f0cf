// Package mocknim serves a fake NIM chat completions endpoint that answers
// with a reasoning side channel. It backs the mock server binary and the
// integration tests.
package mocknim

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// Options control the canned answer
type Options struct {
	Reasoning string
	Content   string
	// FailStatus, when set, makes every request fail with that status
	FailStatus  int
	FailMessage string
	// ChunkDelay is slept between streamed chunks
	ChunkDelay time.Duration
}

// DefaultOptions returns a short reasoning trace and answer
func DefaultOptions() Options {
	return Options{
		Reasoning: "The user greets me. I should greet back.",
		Content:   "Hello! How can I help you today?",
	}
}

type completionRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// NewHandler returns the mock upstream router
func NewHandler(opts Options) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/v1/chat/completions", func(c *gin.Context) {
		if opts.FailStatus != 0 {
			c.JSON(opts.FailStatus, openai.ErrorResponse{Error: &openai.APIError{
				Message: opts.FailMessage,
				Type:    "mock_error",
			}})
			return
		}

		if !strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "missing bearer token"})
			return
		}

		var req completionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if req.Stream {
			streamAnswer(c, req.Model, opts)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":      "mock-" + uuid.NewString(),
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []gin.H{{
				"index": 0,
				"message": gin.H{
					"role":              openai.ChatMessageRoleAssistant,
					"reasoning_content": opts.Reasoning,
					"content":           opts.Content,
				},
				"finish_reason": openai.FinishReasonStop,
			}},
			"usage": usageFor(opts),
		})
	})

	return r
}

func usageFor(opts Options) openai.Usage {
	completion := len(strings.Fields(opts.Reasoning)) + len(strings.Fields(opts.Content))
	return openai.Usage{PromptTokens: 8, CompletionTokens: completion, TotalTokens: 8 + completion}
}

// words splits text into fragments that concatenate back to the original
func words(text string) []string {
	fields := strings.Fields(text)
	for i := range fields[:max(len(fields)-1, 0)] {
		fields[i] += " "
	}
	return fields
}

func streamAnswer(c *gin.Context, model string, opts Options) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	id := "mock-" + uuid.NewString()
	created := time.Now().Unix()
	emit := func(delta gin.H, finish interface{}) {
		chunk := gin.H{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   model,
			"choices": []gin.H{{"index": 0, "delta": delta, "finish_reason": finish}},
		}
		c.SSEvent("", chunk)
		c.Writer.Flush()
		if opts.ChunkDelay > 0 {
			time.Sleep(opts.ChunkDelay)
		}
	}

	emit(gin.H{"role": openai.ChatMessageRoleAssistant, "content": nil}, nil)
	for _, w := range words(opts.Reasoning) {
		emit(gin.H{"reasoning_content": w, "content": nil}, nil)
	}
	for _, w := range words(opts.Content) {
		emit(gin.H{"content": w}, nil)
	}
	emit(gin.H{}, openai.FinishReasonStop)

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}
