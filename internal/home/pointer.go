package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CurrentSession reads the current-session pointer. An absent or empty
// pointer file yields "".
func CurrentSession(homeDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(homeDir, PointerFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read session pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetCurrentSession points the home at a session id.
func SetCurrentSession(homeDir, sessionID string) error {
	if err := os.WriteFile(filepath.Join(homeDir, PointerFileName), []byte(sessionID), 0o644); err != nil {
		return fmt.Errorf("write session pointer: %w", err)
	}
	return nil
}

// ClearCurrentSession empties the pointer file without removing it.
func ClearCurrentSession(homeDir string) error {
	return SetCurrentSession(homeDir, "")
}

// ResolveSession picks the target session id: the explicit flag value, then
// PLANLOOP_SESSION, then the current-session pointer. Empty means none found.
func ResolveSession(homeDir, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvSession); env != "" {
		return env, nil
	}
	return CurrentSession(homeDir)
}
