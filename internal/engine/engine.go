package engine

import (
	"context"

	"github.com/kalambet/sage/internal/llm"
)

// Engine abstracts a local inference backend. Embedding, LLM re-ranking and
// the local generation path all go through this interface rather than a
// concrete client.
type Engine interface {
	llm.Streamer

	// Chat returns one complete reply. A non-nil reply format asks for a
	// JSON object with those fields.
	Chat(ctx context.Context, model string, messages []llm.Message, reply JSONReply) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
