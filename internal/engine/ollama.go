package engine

import (
	"context"
	"errors"

	"github.com/kalambet/sage/internal/llm"
	"github.com/kalambet/sage/internal/ollama"
)

var _ Engine = (*OllamaEngine)(nil)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
	// chatModel is used by Stream when the request leaves Model empty.
	chatModel string
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

// WithChatModel sets the default model for streamed generations.
func (e *OllamaEngine) WithChatModel(model string) *OllamaEngine {
	e.chatModel = model
	return e
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []llm.Message, reply JSONReply) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	return e.client.Chat(ctx, model, msgs, reply.schema())
}

// Stream runs a streaming chat on the local backend. Ollama's thinking
// field is surfaced as reasoning deltas.
func (e *OllamaEngine) Stream(ctx context.Context, req llm.Request, fn func(llm.Delta) error) error {
	model := req.Model
	if model == "" {
		model = e.chatModel
	}
	all := llm.WithSystem(req)
	msgs := make([]ollama.Message, len(all))
	for i, m := range all {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	err := e.client.ChatStream(ctx, ollama.StreamRequest{
		Model:    model,
		Messages: msgs,
		Think:    req.Think,
		Options: &ollama.Options{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}, func(m ollama.Message) error {
		if m.Thinking != "" {
			if err := fn(llm.Delta{Kind: llm.DeltaReasoning, Text: m.Thinking}); err != nil {
				return err
			}
		}
		if m.Content != "" {
			return fn(llm.Delta{Kind: llm.DeltaContent, Text: m.Content})
		}
		return nil
	})

	var se *ollama.StatusError
	if errors.As(err, &se) {
		return &llm.StatusError{Code: se.Code, Body: se.Body}
	}
	return err
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	return e.client.PullModel(ctx, name, onProgress)
}
