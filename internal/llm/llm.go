// Package llm defines the backend-neutral contract for streaming chat
// completions. Concrete backends live in internal/proxy (OpenRouter) and
// internal/engine (local Ollama).
package llm

import (
	"context"
	"fmt"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single streaming call to a language model.
type Request struct {
	// Model overrides the backend's default model when non-empty.
	Model string
	// System is the instruction text, sent as the leading system message.
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// Think asks the backend to surface reasoning tokens when it supports them.
	Think bool
}

// DeltaKind discriminates incremental output.
type DeltaKind int

const (
	DeltaContent DeltaKind = iota
	DeltaReasoning
)

func (k DeltaKind) String() string {
	if k == DeltaReasoning {
		return "reasoning"
	}
	return "content"
}

// Delta is one incremental piece of model output.
type Delta struct {
	Kind DeltaKind
	Text string
}

// Streamer opens a streaming completion and invokes fn for every delta in
// arrival order. Stream returns nil once the backend signals completion.
// If fn returns an error the stream is abandoned and that error returned.
type Streamer interface {
	Stream(ctx context.Context, req Request, fn func(Delta) error) error
}

// StreamerFunc adapts a function to the Streamer interface.
type StreamerFunc func(ctx context.Context, req Request, fn func(Delta) error) error

func (f StreamerFunc) Stream(ctx context.Context, req Request, fn func(Delta) error) error {
	return f(ctx, req, fn)
}

// StatusError reports a non-success HTTP status from a backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// WithSystem returns the request messages with the instruction prepended as
// a system message. Backends that take the instruction inline use this.
func WithSystem(req Request) []Message {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.System})
	}
	return append(msgs, req.Messages...)
}
