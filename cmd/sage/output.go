package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/kalambet/sage/internal/orchestrator"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	stepColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
	dimColor     = color.New(color.Faint)
)

func printSuccess(format string, args ...any) {
	successColor.Fprintln(os.Stderr, "✓ "+fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	errorColor.Fprintln(os.Stderr, "✗ "+fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	warningColor.Fprintln(os.Stderr, "⚠ "+fmt.Sprintf(format, args...))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", labelColor.Sprint(label+":"), fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	stepColor.Fprintln(os.Stderr, "→ "+fmt.Sprintf(format, args...))
}

// eventRenderer prints a run's events as a terminal transcript: visible
// content on out, progress and reasoning on status.
type eventRenderer struct {
	out           io.Writer
	status        io.Writer
	showReasoning bool

	inReasoning bool
	answer      strings.Builder
}

func (r *eventRenderer) render(e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventClassification:
		if m, ok := e.Data.(map[string]any); ok {
			fmt.Fprintf(r.status, "%s %v (%v)\n", labelColor.Sprint("intent:"), m["archetype"], m["emotion"])
		}
	case orchestrator.EventRetrieval:
		if m, ok := e.Data.(map[string]any); ok {
			n := 0
			if ps, ok := m["passages"].([]any); ok {
				n = len(ps)
			}
			fmt.Fprintf(r.status, "%s %v, %d passages\n", labelColor.Sprint("retrieval:"), m["mode"], n)
		}
	case orchestrator.EventStageStarted:
		stepColor.Fprintf(r.status, "→ stage %d: %s\n", e.Stage, e.StageName)
	case orchestrator.EventReasoningDelta:
		if r.showReasoning {
			r.inReasoning = true
			dimColor.Fprint(r.status, e.Text)
		}
	case orchestrator.EventContentDelta:
		r.endReasoning()
		if e.Visible {
			fmt.Fprint(r.out, e.Text)
			r.answer.WriteString(e.Text)
		}
	case orchestrator.EventStageCompleted:
		r.endReasoning()
		if e.Visible {
			fmt.Fprintln(r.out)
		}
	case orchestrator.EventPipelineError:
		r.endReasoning()
		errorColor.Fprintf(r.status, "✗ stage %d (%s) failed: %s\n", e.Stage, e.StageName, e.Error)
	case orchestrator.EventPipelineCompleted:
		r.endReasoning()
		// Answers from non-streaming paths arrive only here.
		if r.answer.Len() == 0 && e.Text != "" {
			fmt.Fprintln(r.out, e.Text)
		}
	}
}

func (r *eventRenderer) endReasoning() {
	if r.inReasoning {
		fmt.Fprintln(r.status)
		r.inReasoning = false
	}
}
