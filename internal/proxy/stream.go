package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/sage/internal/llm"
)

var _ llm.Streamer = (*Client)(nil)

// ErrIncompleteStream is returned when the event stream closes before a
// finish_reason or [DONE] marker arrives.
var ErrIncompleteStream = errors.New("openrouter: stream ended before completion")

const maxEventSize = 1 << 20

// Stream issues a streaming chat completion and maps each SSE chunk to
// reasoning and content deltas.
func (c *Client) Stream(ctx context.Context, req llm.Request, fn func(llm.Delta) error) error {
	cr := ChatRequest{
		Model:       req.Model,
		Messages:    llm.WithSystem(req),
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.Think {
		cr.Reasoning = &Reasoning{Effort: "medium"}
	}

	rc, err := c.Chat(ctx, cr)
	if err != nil {
		return err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	finished := false
	for sc.Scan() {
		line := sc.Text()
		// Blank separators, SSE comments (": OPENROUTER PROCESSING") and
		// non-data fields carry nothing.
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return fmt.Errorf("openrouter: %s", chunk.Error.Message)
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Reasoning != "" {
				if err := fn(llm.Delta{Kind: llm.DeltaReasoning, Text: ch.Delta.Reasoning}); err != nil {
					return err
				}
			}
			if ch.Delta.Content != "" {
				if err := fn(llm.Delta{Kind: llm.DeltaContent, Text: ch.Delta.Content}); err != nil {
					return err
				}
			}
			if ch.FinishReason != nil && *ch.FinishReason != "" {
				if *ch.FinishReason == "error" {
					return fmt.Errorf("openrouter: generation finished with error")
				}
				finished = true
			}
		}
	}
	if err := sc.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("reading stream: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !finished {
		return ErrIncompleteStream
	}
	return nil
}
