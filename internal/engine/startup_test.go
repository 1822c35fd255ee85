package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kalambet/sage/internal/llm"
)

type mockEngine struct {
	isRunning bool
	models    map[string]bool
	pulled    []string
	warmed    []string
	chatErr   error
}

func (m *mockEngine) Chat(_ context.Context, model string, _ []llm.Message, _ JSONReply) (string, error) {
	m.warmed = append(m.warmed, model)
	return "pong", m.chatErr
}
func (m *mockEngine) Stream(_ context.Context, _ llm.Request, _ func(llm.Delta) error) error {
	return nil
}
func (m *mockEngine) Embed(_ context.Context, _ string, _ string) ([]float32, error) {
	return nil, nil
}
func (m *mockEngine) IsRunning(_ context.Context) bool { return m.isRunning }
func (m *mockEngine) ListModels(_ context.Context) ([]string, error) {
	var names []string
	for n := range m.models {
		names = append(names, n)
	}
	return names, nil
}
func (m *mockEngine) HasModel(_ context.Context, name string) bool { return m.models[name] }
func (m *mockEngine) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	m.pulled = append(m.pulled, name)
	if cb != nil {
		cb(PullProgress{Status: "success"})
	}
	return nil
}

func TestEnsureReady_AllModelsPresent(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{"qwen3": true, "nomic-embed-text": true},
	}
	err := EnsureReady(context.Background(), m, "qwen3", "nomic-embed-text", io.Discard)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
	if len(m.warmed) != 1 || m.warmed[0] != "qwen3" {
		t.Errorf("expected warm-up of qwen3, got %v", m.warmed)
	}
}

func TestEnsureReady_WarmUpFailureIsNonFatal(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{"qwen3": true, "nomic-embed-text": true},
		chatErr:   errors.New("loading"),
	}
	var out strings.Builder
	err := EnsureReady(context.Background(), m, "qwen3", "nomic-embed-text", &out)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !strings.Contains(out.String(), "warm-up failed") {
		t.Errorf("output missing warm-up notice:\n%s", out.String())
	}
}

func TestEnsureReady_EmbedOnly(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{}}
	if err := EnsureReady(context.Background(), m, "", "nomic-embed-text", io.Discard); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.warmed) != 0 {
		t.Errorf("unexpected warm-up: %v", m.warmed)
	}
}

func TestEnsureReady_PullsMissing(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{"qwen3": true},
	}
	err := EnsureReady(context.Background(), m, "qwen3", "nomic-embed-text", io.Discard)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 || m.pulled[0] != "nomic-embed-text" {
		t.Errorf("expected pull of nomic-embed-text, got %v", m.pulled)
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	m := &mockEngine{isRunning: false, models: map[string]bool{}}
	err := EnsureReady(context.Background(), m, "qwen3", "nomic-embed-text", io.Discard)
	if err == nil {
		t.Fatal("expected error when engine is down")
	}
	if !strings.Contains(err.Error(), "ollama serve") {
		t.Errorf("error should suggest starting ollama, got %v", err)
	}
}
