package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings is the platform store for non-secret keys: a JSON file on Linux,
// UserDefaults on macOS. Read returns the stored value in text form; Write
// keeps the Go type where the store can represent it.
type Settings interface {
	Read(key string) (raw string, ok bool, err error)
	Write(key string, val any) error
	Remove(key string) error
}

// storedValue converts a parsed value into the form Settings.Write takes.
func storedValue(s keySpec, v any) any {
	if s.typ == kDuration {
		return v.(time.Duration).String()
	}
	return v
}

// formatStored renders a value decoded from a store back to text.
func formatStored(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// applySettings overlays every non-secret key found in st. A value that does
// not parse keeps the default with a warning.
func applySettings(cfg *Config, st Settings) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := st.Read(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}
