// Package orchestrator runs a pipeline variant: an ordered list of LLM
// stages where later stages read the frozen output of earlier ones. Every
// reasoning and content delta is forwarded to a Sink as it arrives.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kalambet/sage/internal/composer"
	"github.com/kalambet/sage/internal/llm"
)

var (
	// ErrStalled is returned when a stage receives no delta within the
	// configured stall timeout.
	ErrStalled = errors.New("stage stalled: no output from model")
	// ErrCanceled is returned when the caller cancels a run. It wraps
	// context.Canceled.
	ErrCanceled = fmt.Errorf("pipeline canceled: %w", context.Canceled)
	// ErrSink matches errors returned when the sink refused an event.
	ErrSink = errors.New("sink failed")
)

// StageError reports the stage a run failed in.
type StageError struct {
	Ordinal int
	Name    string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Ordinal, e.Name, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// sinkError marks a failure to deliver an event; the run stops without
// trying to report it through the same sink.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return "sink: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }
func (e *sinkError) Is(target error) bool { return target == ErrSink }

// Config holds run defaults applied to stages that do not set their own.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// StallTimeout bounds the wait between deltas. Zero disables it.
	StallTimeout time.Duration
}

// Input is everything a run reads besides the variant.
type Input struct {
	RunID    string
	Query    string
	Evidence string
	Memory   string
	// History is given to the first stage only.
	History []composer.Turn
	Inputs  map[string]string
	// StageOffset shifts stage ordinals so a handoff run continues the
	// numbering of the run it follows.
	StageOffset int
}

// PassResult is the frozen output of one stage.
type PassResult struct {
	Ordinal   int    `json:"ordinal"`
	Name      string `json:"name"`
	Visible   bool   `json:"visible"`
	Text      string `json:"text"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Output is the result of a completed run.
type Output struct {
	RunID string
	// Answer is the final stage's text.
	Answer string
	Passes []PassResult
}

// Findings joins every stage output under its stage name, the form a
// handoff variant receives.
func (o Output) Findings() string {
	var sb strings.Builder
	for i, p := range o.Passes {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## %s\n%s", p.Name, strings.TrimSpace(p.Text))
	}
	return sb.String()
}

// Orchestrator runs variants against a streaming LLM backend.
type Orchestrator struct {
	streamer llm.Streamer
	composer *composer.Composer
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l.Named("orchestrator")
		}
	}
}

// WithComposer sets the composer used to build first-stage messages.
func WithComposer(c *composer.Composer) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.composer = c
		}
	}
}

// New creates an Orchestrator.
func New(s llm.Streamer, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		streamer: s,
		composer: composer.New(0, 0),
		cfg:      cfg,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/kalambet/sage/internal/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes v's stages strictly in order. Caller cancellation returns
// ErrCanceled and emits nothing further. A failed stage emits a single
// pipeline_error event and returns a *StageError.
func (o *Orchestrator) Run(ctx context.Context, v *Variant, in Input, sink Sink) (out Output, err error) {
	if !v.compiled {
		if err := v.Compile(); err != nil {
			return Output{}, err
		}
	}
	for _, name := range v.Inputs {
		if _, ok := in.Inputs[name]; !ok {
			return Output{}, fmt.Errorf("%w: variant %q requires input %q", ErrTemplate, v.Name, name)
		}
	}
	if in.RunID == "" {
		in.RunID = uuid.NewString()
	}
	out.RunID = in.RunID

	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("variant", v.Name),
		attribute.String("run_id", in.RunID),
		attribute.Int("stages", len(v.Stages)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := o.logger.With(zap.String("run_id", in.RunID), zap.String("variant", v.Name))
	start := time.Now()

	base := Event{RunID: in.RunID, Variant: v.Name}
	emit := func(e Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.RunID, e.Variant, e.Time = base.RunID, base.Variant, time.Now()
		if err := sink.Send(ctx, e); err != nil {
			return &sinkError{err}
		}
		return nil
	}

	outputs := make(map[string]string, len(v.Stages))
	for i := range v.Stages {
		st := &v.Stages[i]
		ordinal := in.StageOffset + i + 1

		if ctx.Err() != nil {
			log.Info("run canceled", zap.Int("stage", ordinal))
			return out, ErrCanceled
		}

		pass, err := o.runStage(ctx, st, ordinal, in, outputs, emit, log)
		if err != nil {
			var se *sinkError
			switch {
			case ctx.Err() != nil:
				log.Info("run canceled", zap.Int("stage", ordinal))
				return out, ErrCanceled
			case errors.As(err, &se):
				return out, err
			}
			stageErr := &StageError{Ordinal: ordinal, Name: st.Name, Err: err}
			log.Warn("stage failed", zap.Int("stage", ordinal), zap.String("name", st.Name), zap.Error(err))
			if sendErr := emit(Event{
				Type:      EventPipelineError,
				Stage:     ordinal,
				StageName: st.Name,
				Error:     err.Error(),
			}); sendErr != nil {
				return out, errors.Join(stageErr, sendErr)
			}
			return out, stageErr
		}

		outputs[st.Name] = pass.Text
		out.Passes = append(out.Passes, pass)
	}

	out.Answer = out.Passes[len(out.Passes)-1].Text
	if err := emit(Event{Type: EventPipelineCompleted, Text: out.Answer}); err != nil {
		if ctx.Err() != nil {
			return out, ErrCanceled
		}
		return out, err
	}
	log.Info("run completed",
		zap.Int("stages", len(out.Passes)),
		zap.Int("answer_len", len(out.Answer)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (o *Orchestrator) runStage(
	ctx context.Context,
	st *Stage,
	ordinal int,
	in Input,
	outputs map[string]string,
	emit func(Event) error,
	log *zap.Logger,
) (pass PassResult, err error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.stage", trace.WithAttributes(
		attribute.Int("ordinal", ordinal),
		attribute.String("name", st.Name),
		attribute.Bool("visible", st.Visible),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("output_len", len(pass.Text)))
		span.End()
	}()

	if err := emit(Event{Type: EventStageStarted, Stage: ordinal, StageName: st.Name, Visible: st.Visible}); err != nil {
		return pass, err
	}

	system, err := st.tmpl.Render(Slots{
		Query:    in.Query,
		Evidence: in.Evidence,
		Memory:   in.Memory,
		Stages:   outputs,
		Inputs:   in.Inputs,
	})
	if err != nil {
		return pass, err
	}

	var msgs []llm.Message
	if ordinal == in.StageOffset+1 {
		msgs = o.composer.Messages(in.History, in.Query)
	} else {
		msgs = []llm.Message{{Role: llm.RoleUser, Content: in.Query}}
	}

	req := llm.Request{
		Model:       firstNonEmpty(st.Model, o.cfg.Model),
		System:      system,
		Messages:    msgs,
		MaxTokens:   firstPositive(st.MaxTokens, o.cfg.MaxTokens),
		Temperature: st.Temperature,
		Think:       st.Think,
	}
	if req.Temperature == 0 {
		req.Temperature = o.cfg.Temperature
	}

	var content, reasoning strings.Builder
	err = o.stream(ctx, req, func(d llm.Delta) error {
		e := Event{Stage: ordinal, StageName: st.Name, Visible: st.Visible, Text: d.Text}
		if d.Kind == llm.DeltaReasoning {
			e.Type = EventReasoningDelta
			reasoning.WriteString(d.Text)
		} else {
			e.Type = EventContentDelta
			content.WriteString(d.Text)
		}
		return emit(e)
	})
	if err != nil {
		return pass, err
	}

	pass = PassResult{
		Ordinal:   ordinal,
		Name:      st.Name,
		Visible:   st.Visible,
		Text:      content.String(),
		Reasoning: reasoning.String(),
	}
	log.Debug("stage completed",
		zap.Int("stage", ordinal),
		zap.String("name", st.Name),
		zap.Int("content_len", len(pass.Text)),
		zap.Int("reasoning_len", len(pass.Reasoning)),
	)
	return pass, emit(Event{
		Type:      EventStageCompleted,
		Stage:     ordinal,
		StageName: st.Name,
		Visible:   st.Visible,
		Summary:   summarize(strings.TrimSpace(pass.Text)),
	})
}

// stream runs one backend call, cancelling it with ErrStalled when no delta
// arrives within the stall timeout.
func (o *Orchestrator) stream(ctx context.Context, req llm.Request, fn func(llm.Delta) error) error {
	if o.cfg.StallTimeout <= 0 {
		return o.streamer.Stream(ctx, req, fn)
	}

	sctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	timer := time.AfterFunc(o.cfg.StallTimeout, func() { cancel(ErrStalled) })
	defer timer.Stop()

	err := o.streamer.Stream(sctx, req, func(d llm.Delta) error {
		timer.Reset(o.cfg.StallTimeout)
		return fn(d)
	})
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(sctx), ErrStalled) {
		return ErrStalled
	}
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
