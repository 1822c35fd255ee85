package proxy

import "github.com/kalambet/sage/internal/llm"

// ChatRequest is the OpenAI-compatible chat completion request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	// Reasoning asks OpenRouter to return reasoning tokens alongside content.
	Reasoning *Reasoning `json:"reasoning,omitempty"`
}

// Reasoning configures OpenRouter's unified reasoning-token parameter.
type Reasoning struct {
	Effort  string `json:"effort,omitempty"`
	Exclude bool   `json:"exclude,omitempty"`
}

// streamChunk is one decoded SSE "data:" payload.
type streamChunk struct {
	ID      string         `json:"id"`
	Choices []streamChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamDelta struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

// apiError is the error object OpenRouter embeds in a response body or a
// mid-stream event.
type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// Model represents a model entry returned by the /models endpoint.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}

// ModelList is the response from /models.
type ModelList struct {
	Data []Model `json:"data"`
}
