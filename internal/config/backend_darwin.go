//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.sage.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "sage")
	}
	return "sage-data"
}

func apiKeyHint() string {
	return " or macOS Keychain (service: sage, account: llm.openrouter_api_key)"
}

// userDefaults stores settings in the com.sage.app defaults domain through
// the defaults(1) tool.
type userDefaults struct {
	domain string
}

func newPlatformBackend() Settings {
	return userDefaults{domain: defaultsDomain}
}

func (u userDefaults) Read(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", u.domain, key).CombinedOutput()
	text := strings.TrimSpace(string(out))
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		// key or domain does not exist
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("defaults read %s: %w: %s", key, err, text)
	}
	return text, true, nil
}

func (u userDefaults) Write(key string, val any) error {
	var typ, text string
	switch v := val.(type) {
	case int:
		typ, text = "-int", strconv.Itoa(v)
	case bool:
		typ, text = "-bool", strconv.FormatBool(v)
	case float64:
		typ, text = "-float", strconv.FormatFloat(v, 'f', -1, 64)
	default:
		typ, text = "-string", formatStored(v)
	}
	if out, err := exec.Command("defaults", "write", u.domain, key, typ, text).CombinedOutput(); err != nil {
		return fmt.Errorf("defaults write %s: %w: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (u userDefaults) Remove(key string) error {
	if _, ok, err := u.Read(key); err != nil || !ok {
		return err
	}
	return exec.Command("defaults", "delete", u.domain, key).Run()
}
