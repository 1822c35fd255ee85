//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sage", "config.json")
	f := newFileSettings(path)

	for key, val := range map[string]any{
		"server.port":       4200,
		"llm.model":         "openai/gpt-4o",
		"corpus.watch":      false,
		"server.rate_limit": 0.5,
	} {
		if err := f.Write(key, val); err != nil {
			t.Fatalf("Write(%s): %v", key, err)
		}
	}

	reloaded := newFileSettings(path)
	for key, want := range map[string]string{
		"server.port":       "4200",
		"llm.model":         "openai/gpt-4o",
		"corpus.watch":      "false",
		"server.rate_limit": "0.5",
	} {
		got, ok, err := reloaded.Read(key)
		if err != nil || !ok || got != want {
			t.Errorf("Read(%s) = %q, %v, %v; want %q", key, got, ok, err, want)
		}
	}

	if err := reloaded.Remove("llm.model"); err != nil {
		t.Fatal(err)
	}
	if err := reloaded.Remove("llm.model"); err != nil {
		t.Fatalf("removing a missing key: %v", err)
	}
	if _, ok, _ := newFileSettings(path).Read("llm.model"); ok {
		t.Error("removed key still present")
	}
}

func TestFileSettingsLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": 5100, "retrieval.top_k": {"nested": 1}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(newFileSettings(path), mockKeychain{"llm.openrouter_api_key": "k"})
	if err == nil {
		t.Fatal("expected error for a non-scalar value")
	}

	if err := os.WriteFile(path, []byte(`{"server.port": 5100}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadWith(newFileSettings(path), mockKeychain{"llm.openrouter_api_key": "k"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 5100 {
		t.Errorf("Server.Port = %d, want 5100", cfg.Server.Port)
	}
}

func TestSecretsFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainExec(keychainService, "llm.openrouter_api_key"); err == nil {
		t.Fatal("expected error before any secret is stored")
	}
	if err := keychainSet(keychainService, "llm.openrouter_api_key", "sk-1"); err != nil {
		t.Fatal(err)
	}
	got, err := keychainReader{}.Get(keychainService, "llm.openrouter_api_key")
	if err != nil || got != "sk-1" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}
