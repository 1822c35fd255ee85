package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kalambet/sage/internal/intent"
	"github.com/kalambet/sage/internal/orchestrator"
	"github.com/kalambet/sage/internal/pipeline"
	"github.com/kalambet/sage/internal/retrieval"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxTopK            = 50
)

// Service is what the API serves. *pipeline.Responder satisfies it.
type Service interface {
	Classify(query string) intent.Classification
	Retrieve(ctx context.Context, query string, topK int) retrieval.Result
	Respond(ctx context.Context, q pipeline.Query, sink orchestrator.Sink) (pipeline.Answer, error)
	Variants() []*orchestrator.Variant
}

// Deps holds the handler's collaborators.
type Deps struct {
	Service Service
	// Token enables bearer auth on /v1 when non-empty.
	Token string
	// AskLimiter throttles /v1/ask. Nil disables throttling.
	AskLimiter *rate.Limiter
	Logger     *zap.Logger
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	log := deps.Logger.Named("api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/pipelines", handlePipelines(deps.Service))
		r.Post("/classify", handleClassify(deps.Service))
		r.Post("/retrieve", handleRetrieve(deps.Service))
		r.With(RateLimit(deps.AskLimiter)).Post("/ask", handleAsk(deps.Service, log))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type pipelineInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Stages      []string `json:"stages"`
	Visible     []string `json:"visible"`
	Handoff     string   `json:"handoff,omitempty"`
}

func handlePipelines(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := describeVariants(svc.Variants())
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

func describeVariants(vs []*orchestrator.Variant) []pipelineInfo {
	out := make([]pipelineInfo, len(vs))
	for i, v := range vs {
		info := pipelineInfo{Name: v.Name, Description: v.Description, Handoff: v.Handoff, Stages: []string{}, Visible: []string{}}
		for _, st := range v.Stages {
			info.Stages = append(info.Stages, st.Name)
			if st.Visible {
				info.Visible = append(info.Visible, st.Name)
			}
		}
		out[i] = info
	}
	return out
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleClassify(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		writeJSON(w, http.StatusOK, svc.Classify(req.Query))
	}
}

func handleRetrieve(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		if req.TopK < 0 || req.TopK > maxTopK {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "top_k must be between 0 and %d", maxTopK)
			return
		}
		writeJSON(w, http.StatusOK, svc.Retrieve(r.Context(), req.Query, req.TopK))
	}
}

// countingSink records whether anything reached the client.
type countingSink struct {
	orchestrator.Sink
	sent atomic.Int64
}

func (c *countingSink) Send(ctx context.Context, e orchestrator.Event) error {
	c.sent.Add(1)
	return c.Sink.Send(ctx, e)
}

func handleAsk(svc Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q pipeline.Query
		if !decode(w, r, &q) {
			return
		}
		if strings.TrimSpace(q.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		if q.TopK < 0 || q.TopK > maxTopK {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "top_k must be between 0 and %d", maxTopK)
			return
		}
		if _, ok := w.(http.Flusher); !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		sink := &countingSink{Sink: orchestrator.NewNDJSONSink(w)}

		ans, err := svc.Respond(r.Context(), q, sink)
		switch {
		case err == nil:
			log.Debug("ask served", zap.String("run_id", ans.RunID), zap.String("variant", ans.Variant))
		case sink.sent.Load() == 0:
			status, typ := http.StatusInternalServerError, "api_error"
			if errors.Is(err, pipeline.ErrEmptyQuery) || errors.Is(err, pipeline.ErrUnknownVariant) {
				status, typ = http.StatusBadRequest, "invalid_request_error"
			}
			httpError(w, status, typ, "%v", err)
		case errors.Is(err, orchestrator.ErrCanceled):
			log.Info("ask canceled by client", zap.String("run_id", ans.RunID))
		default:
			// already reported in-stream as pipeline_error
			log.Warn("ask failed", zap.String("run_id", ans.RunID), zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
