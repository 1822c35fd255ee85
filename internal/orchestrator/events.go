package orchestrator

import (
	"time"
	"unicode/utf8"
)

// EventType tags a StreamEvent.
type EventType string

const (
	EventClassification    EventType = "classification"
	EventRetrieval         EventType = "retrieval"
	EventStageStarted      EventType = "stage_started"
	EventReasoningDelta    EventType = "reasoning_delta"
	EventContentDelta      EventType = "content_delta"
	EventStageCompleted    EventType = "stage_completed"
	EventPipelineError     EventType = "pipeline_error"
	EventPipelineCompleted EventType = "pipeline_completed"
)

// Event is one message written to a Sink. Stage is the 1-based ordinal of
// the stage it belongs to, zero for run-level events.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Variant   string    `json:"variant,omitempty"`
	Stage     int       `json:"stage,omitempty"`
	StageName string    `json:"stage_name,omitempty"`
	Visible   bool      `json:"visible,omitempty"`
	// Text carries delta text, or the answer on pipeline_completed.
	Text    string `json:"text,omitempty"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
	// Data carries the classification or retrieval payload.
	Data any       `json:"data,omitempty"`
	Time time.Time `json:"time"`
}

// Terminal reports whether e ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventPipelineError || e.Type == EventPipelineCompleted
}

const summaryRunes = 200

func summarize(s string) string {
	if utf8.RuneCountInString(s) <= summaryRunes {
		return s
	}
	r := []rune(s)
	return string(r[:summaryRunes]) + "..."
}
