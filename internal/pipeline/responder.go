// Package pipeline wires one request through the classifier, the retrieval
// engine and the orchestrator, reporting every step to an event sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kalambet/sage/internal/composer"
	"github.com/kalambet/sage/internal/intent"
	"github.com/kalambet/sage/internal/orchestrator"
	"github.com/kalambet/sage/internal/retrieval"
)

var (
	ErrEmptyQuery     = errors.New("query is empty")
	ErrUnknownVariant = errors.New("unknown pipeline variant")
)

// Retriever is the part of retrieval.Engine the responder uses.
type Retriever interface {
	Retrieve(ctx context.Context, query string, c intent.Classification, topK int) retrieval.Result
}

// Query is one inbound request.
type Query struct {
	Text    string          `json:"query"`
	History []composer.Turn `json:"history,omitempty"`
	Memory  string          `json:"memory,omitempty"`
	TopK    int             `json:"top_k,omitempty"`
	Variant string          `json:"variant,omitempty"`
	// Media lists attachment references. They are accepted for API
	// compatibility and not read.
	Media []string `json:"media,omitempty"`
}

// Answer summarizes a completed request.
type Answer struct {
	RunID          string                    `json:"run_id"`
	Variant        string                    `json:"variant"`
	Text           string                    `json:"text"`
	Classification intent.Classification     `json:"classification"`
	Mode           retrieval.Mode            `json:"mode"`
	Passes         []orchestrator.PassResult `json:"passes"`
	DurationMs     int64                     `json:"duration_ms"`
}

// Responder answers queries end to end.
type Responder struct {
	classifier     *intent.Classifier
	retriever      Retriever
	orchestrator   *orchestrator.Orchestrator
	registry       *orchestrator.Registry
	composer       *composer.Composer
	defaultVariant string
	logger         *zap.Logger
	tracer         trace.Tracer
}

// Config holds Responder settings.
type Config struct {
	// DefaultVariant runs when the request names none and the
	// classification does not pick one.
	DefaultVariant string
}

// NewResponder creates a Responder. The default variant must be registered.
func NewResponder(
	classifier *intent.Classifier,
	retriever Retriever,
	orch *orchestrator.Orchestrator,
	registry *orchestrator.Registry,
	comp *composer.Composer,
	cfg Config,
	logger *zap.Logger,
) (*Responder, error) {
	if cfg.DefaultVariant == "" {
		cfg.DefaultVariant = orchestrator.VariantDeep
	}
	if err := runnable(registry, cfg.DefaultVariant); err != nil {
		return nil, err
	}
	if comp == nil {
		comp = composer.New(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		classifier:     classifier,
		retriever:      retriever,
		orchestrator:   orch,
		registry:       registry,
		composer:       comp,
		defaultVariant: cfg.DefaultVariant,
		logger:         logger.Named("pipeline"),
		tracer:         otel.Tracer("github.com/kalambet/sage/internal/pipeline"),
	}, nil
}

// Classify runs the classifier alone.
func (r *Responder) Classify(query string) intent.Classification {
	return r.classifier.Classify(query)
}

// Retrieve classifies and retrieves without running a pipeline.
func (r *Responder) Retrieve(ctx context.Context, query string, topK int) retrieval.Result {
	return r.retriever.Retrieve(ctx, query, r.classifier.Classify(query), topK)
}

// Variants lists the registered pipeline variants.
func (r *Responder) Variants() []*orchestrator.Variant { return r.registry.List() }

// Respond classifies q, retrieves evidence, runs the chosen variant and, when
// that variant hands off, the handoff variant over its findings. Every step
// is reported to sink.
func (r *Responder) Respond(ctx context.Context, q Query, sink orchestrator.Sink) (ans Answer, err error) {
	start := time.Now()
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return ans, ErrEmptyQuery
	}
	if q.Variant != "" {
		if err := runnable(r.registry, q.Variant); err != nil {
			return ans, err
		}
	}

	ans.RunID = uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "pipeline.respond", trace.WithAttributes(attribute.String("run_id", ans.RunID)))
	defer span.End()

	emit := func(e orchestrator.Event) error {
		e.RunID, e.Time = ans.RunID, time.Now()
		return sink.Send(ctx, e)
	}

	c := r.classifier.Classify(q.Text)
	ans.Classification = c
	span.SetAttributes(attribute.String("archetype", string(c.Archetype)))
	if err := emit(orchestrator.Event{Type: orchestrator.EventClassification, Data: c}); err != nil {
		return ans, err
	}

	res := r.retriever.Retrieve(ctx, q.Text, c, q.TopK)
	ans.Mode = res.Mode
	if err := emit(orchestrator.Event{Type: orchestrator.EventRetrieval, Data: retrievalPayload{Mode: res.Mode, Passages: res.Passages}}); err != nil {
		return ans, err
	}

	v := r.choose(q.Variant, c, res)
	ans.Variant = v.Name
	span.SetAttributes(attribute.String("variant", v.Name))

	in := orchestrator.Input{
		RunID:    ans.RunID,
		Query:    q.Text,
		Evidence: r.composer.Evidence(res.Passages),
		Memory:   q.Memory,
		History:  q.History,
	}

	var handoff *orchestrator.Variant
	if v.Handoff != "" {
		handoff, _ = r.registry.Get(v.Handoff)
	}

	first := sink
	if handoff != nil {
		// the handoff run reports completion
		first = orchestrator.SinkFunc(func(ctx context.Context, e orchestrator.Event) error {
			if e.Type == orchestrator.EventPipelineCompleted {
				return nil
			}
			return sink.Send(ctx, e)
		})
	}

	out, err := r.orchestrator.Run(ctx, v, in, first)
	if err != nil {
		return ans, r.fail(ctx, emit, v.Name, err)
	}
	ans.Passes = out.Passes
	ans.Text = out.Answer

	if handoff != nil {
		in.Inputs = map[string]string{orchestrator.HandoffInput: out.Findings()}
		in.StageOffset = len(out.Passes)
		hout, err := r.orchestrator.Run(ctx, handoff, in, sink)
		if err != nil {
			return ans, r.fail(ctx, emit, handoff.Name, err)
		}
		ans.Passes = append(ans.Passes, hout.Passes...)
		ans.Text = hout.Answer
		ans.Variant = v.Name + "+" + handoff.Name
	}

	ans.DurationMs = time.Since(start).Milliseconds()
	r.logger.Info("responded",
		zap.String("run_id", ans.RunID),
		zap.String("archetype", string(c.Archetype)),
		zap.String("mode", string(res.Mode)),
		zap.Int("passages", len(res.Passages)),
		zap.String("variant", ans.Variant),
		zap.Int64("duration_ms", ans.DurationMs),
	)
	return ans, nil
}

// fail reports a run error the orchestrator did not already put on the
// stream, so the caller always sees a terminal event.
func (r *Responder) fail(ctx context.Context, emit func(orchestrator.Event) error, variant string, err error) error {
	var se *orchestrator.StageError
	switch {
	case errors.As(err, &se), errors.Is(err, orchestrator.ErrCanceled),
		errors.Is(err, orchestrator.ErrSink), ctx.Err() != nil:
		return err
	}
	r.logger.Warn("run failed", zap.String("variant", variant), zap.Error(err))
	if sendErr := emit(orchestrator.Event{
		Type:    orchestrator.EventPipelineError,
		Variant: variant,
		Error:   err.Error(),
	}); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return err
}

// runnable reports whether name can be requested directly. Variants that
// declare inputs only run as a handoff target.
func runnable(reg *orchestrator.Registry, name string) error {
	v, ok := reg.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	if len(v.Inputs) > 0 {
		return fmt.Errorf("%w: %q runs only as a handoff", ErrUnknownVariant, name)
	}
	return nil
}

type retrievalPayload struct {
	Mode     retrieval.Mode      `json:"mode"`
	Passages []retrieval.Passage `json:"passages"`
}

// choose picks the variant: greetings get chat, a successful direct read
// gets direct, otherwise the requested or default variant runs.
func (r *Responder) choose(requested string, c intent.Classification, res retrieval.Result) *orchestrator.Variant {
	name := r.defaultVariant
	switch {
	case c.FastPath || c.Archetype == intent.Chat:
		name = orchestrator.VariantChat
	case res.Mode == retrieval.ModeDirectRead && len(res.Passages) > 0:
		name = orchestrator.VariantDirect
	case requested != "":
		name = requested
	}
	if v, ok := r.registry.Get(name); ok {
		return v
	}
	v, _ := r.registry.Get(r.defaultVariant)
	return v
}
