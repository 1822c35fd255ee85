package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sage/internal/composer"
	"github.com/kalambet/sage/internal/orchestrator"
	"github.com/kalambet/sage/internal/pipeline"
)

// NewMCPServer exposes classification, retrieval and answering as MCP tools.
func NewMCPServer(svc Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sage",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sage answers questions grounded in a fixed corpus of teaching material."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("classify",
			mcp.WithDescription("Classify a question into its intent archetype, emotion and concepts without calling a model."),
			mcp.WithString("query", mcp.Description("The question to classify"), mcp.Required()),
		),
		mcpClassify(svc),
	)

	s.AddTool(
		mcp.NewTool("retrieve",
			mcp.WithDescription("Return the corpus passages that would ground an answer to the question."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of passages (default 5)")),
		),
		mcpRetrieve(svc),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question through the staged reasoning pipeline and return the final answer."),
			mcp.WithString("query", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("variant", mcp.Description("Pipeline variant (see the sage://pipelines resource)")),
			mcp.WithString("memory", mcp.Description("Long-term notes about the asker")),
			mcp.WithString("history", mcp.Description("JSON array of {role, text} prior turns")),
		),
		mcpAsk(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"sage://pipelines",
			"Pipeline Variants",
			mcp.WithResourceDescription("Registered pipeline variants and their stages as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePipelines(svc),
	)

	return s
}

func mcpClassify(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}
		return mcpJSON(svc.Classify(query))
	}
}

func mcpRetrieve(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > maxTopK {
			limit = maxTopK
		}

		return mcpJSON(svc.Retrieve(ctx, query, limit))
	}
}

func mcpAsk(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}

		q := pipeline.Query{
			Text:    query,
			Variant: req.GetString("variant", ""),
			Memory:  req.GetString("memory", ""),
		}
		if raw := req.GetString("history", ""); raw != "" {
			var turns []composer.Turn
			if err := json.Unmarshal([]byte(raw), &turns); err != nil {
				return mcpError(fmt.Sprintf("invalid history JSON: %v", err)), nil
			}
			q.History = turns
		}

		var events orchestrator.Collector
		ans, err := svc.Respond(ctx, q, &events)
		if err != nil {
			var se *orchestrator.StageError
			if errors.As(err, &se) {
				return mcpError(fmt.Sprintf("stage %d (%s) failed: %v", se.Ordinal, se.Name, se.Err)), nil
			}
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		if strings.TrimSpace(ans.Text) == "" {
			return mcpError("pipeline produced an empty answer"), nil
		}
		return mcpText(ans.Text), nil
	}
}

func mcpResourcePipelines(svc Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		infos := describeVariants(svc.Variants())

		b, err := json.Marshal(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pipelines: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
