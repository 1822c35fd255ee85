//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "sage-data"
		}
	}
	return filepath.Join(dir, "sage")
}

func apiKeyHint() string {
	return " or the secrets file " + secretsFilePath()
}

// fileSettings keeps settings as one flat JSON object under
// $XDG_CONFIG_HOME/sage. The file is rewritten on every change.
type fileSettings struct {
	path   string
	values map[string]any
}

func newPlatformBackend() Settings {
	return newFileSettings(configFilePath())
}

func newFileSettings(path string) *fileSettings {
	f := &fileSettings{path: path, values: map[string]any{}}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		if err := json.Unmarshal(data, &f.values); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
			f.values = map[string]any{}
		}
	}
	return f
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "sage", "config.json")
}

func (f *fileSettings) Read(key string) (string, bool, error) {
	v, ok := f.values[key]
	if !ok || v == nil {
		return "", false, nil
	}
	switch v.(type) {
	case string, float64, bool:
		return formatStored(v), true, nil
	default:
		return "", true, fmt.Errorf("%s holds a %T, want a scalar", key, v)
	}
}

func (f *fileSettings) Write(key string, val any) error {
	f.values[key] = val
	return f.flush()
}

func (f *fileSettings) Remove(key string) error {
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.flush()
}

func (f *fileSettings) flush() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}
