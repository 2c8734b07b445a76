// Package home resolves and bootstraps the per-user planloop root directory:
// config, session registry file, current-session pointer, and prompt templates.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// EnvHome overrides the home root (default ~/.planloop).
	EnvHome = "PLANLOOP_HOME"
	// EnvSession is the fallback session id when --session is omitted.
	EnvSession = "PLANLOOP_SESSION"
	// EnvAgentName identifies a caller in lock metadata and queue views.
	EnvAgentName = "PLANLOOP_AGENT_NAME"

	// DefaultHomeName is the directory under $HOME used when EnvHome is unset.
	DefaultHomeName = ".planloop"

	ConfigFileName   = "config.yml"
	RegistryFileName = "index.json"
	PointerFileName  = "current_session"
	SessionsDirName  = "sessions"
	TemplatesDirName = "templates"
)

// Resolve returns the planloop home directory without creating it.
func Resolve() (string, error) {
	if override := os.Getenv(EnvHome); override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", EnvHome, err)
		}
		return abs, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(userHome, DefaultHomeName), nil
}

// Initialize creates the home directory skeleton if missing: config.yml with
// defaults, an empty registry, the pointer file, sessions/, and the embedded
// prompt templates. Existing files are left alone.
func Initialize(homeDir string) error {
	if err := os.MkdirAll(filepath.Join(homeDir, SessionsDirName), 0o755); err != nil {
		return fmt.Errorf("initialize home: %w", err)
	}

	configPath := filepath.Join(homeDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0o644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}

	registryPath := filepath.Join(homeDir, RegistryFileName)
	if _, err := os.Stat(registryPath); os.IsNotExist(err) {
		if err := os.WriteFile(registryPath, []byte("{\"sessions\": []}\n"), 0o644); err != nil {
			return fmt.Errorf("write empty registry: %w", err)
		}
	}

	pointerPath := filepath.Join(homeDir, PointerFileName)
	if _, err := os.Stat(pointerPath); os.IsNotExist(err) {
		if err := os.WriteFile(pointerPath, nil, 0o644); err != nil {
			return fmt.Errorf("write session pointer: %w", err)
		}
	}

	if err := SeedTemplates(homeDir); err != nil {
		return err
	}
	return nil
}

// InitializeResolved resolves the home directory and bootstraps it.
func InitializeResolved() (string, error) {
	homeDir, err := Resolve()
	if err != nil {
		return "", err
	}
	if err := Initialize(homeDir); err != nil {
		return "", err
	}
	return homeDir, nil
}

// SessionsDir returns <home>/sessions.
func SessionsDir(homeDir string) string {
	return filepath.Join(homeDir, SessionsDirName)
}

// SessionDir returns the directory owning one session's state, lock files,
// queue, deadlock tracker, and logs.
func SessionDir(homeDir, sessionID string) string {
	return filepath.Join(homeDir, SessionsDirName, sessionID)
}

// AgentName returns the caller identity used in queue entries: the
// PLANLOOP_AGENT_NAME env var when set, else pid:<pid>.
func AgentName() string {
	if name := os.Getenv(EnvAgentName); name != "" {
		return name
	}
	return fmt.Sprintf("pid:%d", os.Getpid())
}
