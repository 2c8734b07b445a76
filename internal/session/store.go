// Package session persists session state and its derived artifacts: the
// canonical state.json, the rendered PLAN.md, and the home-level registry.
// All writes go through atomic rename so readers never observe torn files.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/logging"
)

const (
	// StateFileName is the canonical session state document.
	StateFileName = "state.json"
	// PlanFileName is the rendered markdown view.
	PlanFileName = "PLAN.md"
)

// ErrNotFound means the session id has no directory or state file on disk.
var ErrNotFound = errors.New("session not found")

// Store reads and writes sessions under one home directory.
type Store struct {
	HomeDir string
}

// NewStore returns a store rooted at homeDir.
func NewStore(homeDir string) *Store {
	return &Store{HomeDir: homeDir}
}

// Dir returns the directory owning the session's files.
func (st *Store) Dir(sessionID string) string {
	return home.SessionDir(st.HomeDir, sessionID)
}

// Load reads and revalidates a session state.
func (st *Store) Load(sessionID string) (*domain.SessionState, error) {
	path := filepath.Join(st.Dir(sessionID), StateFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save persists the state: revalidate, bump last_updated_at, write
// state.json and PLAN.md atomically, then upsert the registry entry.
// A failure at any step leaves the previous on-disk state intact.
func (st *Store) Save(state *domain.SessionState, message string) error {
	if err := state.Validate(); err != nil {
		return err
	}
	state.LastUpdatedAt = time.Now().UTC()

	dir := st.Dir(state.Session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, StateFileName), raw); err != nil {
		return err
	}

	plan, err := RenderPlan(state)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, PlanFileName), []byte(plan)); err != nil {
		return err
	}

	if err := st.upsertRegistry(summaryOf(state)); err != nil {
		return err
	}

	if message != "" {
		logging.LogEvent(dir, "state saved (v%d): %s", state.Version, message)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target's directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
