// Package deadlock tracks state-hash stagnation across status calls and
// queue-head stagnation across lock scans, escalating both into synthetic
// blocker signals instead of taking corrective action.
package deadlock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaakkos/planloop/internal/domain"
)

const (
	// TrackerFile persists the counters between process invocations.
	TrackerFile = "deadlock.json"

	// DefaultThreshold is how many no-progress status calls suspend the
	// session into a deadlock signal.
	DefaultThreshold = 10

	// SignalID is the idempotent id of the synthetic deadlock blocker.
	SignalID = "deadlock"
)

// Tracker is the small persisted state behind both liveness guards. Writes
// are last-writer-wins; the hash comparison self-corrects on the next call.
type Tracker struct {
	LastStateHash     string `json:"last_state_hash"`
	NoProgressCounter int    `json:"no_progress_counter"`
	QueueHead         string `json:"queue_head,omitempty"`
	QueueStallCounter int    `json:"queue_stall_counter"`
}

// LoadTracker reads the tracker file; a missing or empty file yields a zero
// tracker.
func LoadTracker(sessionDir string) (*Tracker, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, TrackerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Tracker{}, nil
		}
		return nil, fmt.Errorf("read deadlock tracker: %w", err)
	}
	if len(data) == 0 {
		return &Tracker{}, nil
	}
	var t Tracker
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse deadlock tracker: %w", err)
	}
	return &t, nil
}

// Persist writes the tracker file.
func (t *Tracker) Persist(sessionDir string) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal deadlock tracker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sessionDir, TrackerFile), data, 0o644); err != nil {
		return fmt.Errorf("write deadlock tracker: %w", err)
	}
	return nil
}

// RegisterQueueHead feeds one lock-queue scan into the stall counter.
// shouldTrack is false when the caller is itself the head or the queue has
// at most one entry; that resets the counter. A changed head restarts the
// count at 1. Returns true once the counter reaches the threshold.
func (t *Tracker) RegisterQueueHead(headAgent string, shouldTrack bool, threshold int) bool {
	if !shouldTrack || headAgent == "" {
		t.QueueHead = ""
		t.QueueStallCounter = 0
		return false
	}
	if t.QueueHead != headAgent {
		t.QueueHead = headAgent
		t.QueueStallCounter = 1
	} else {
		t.QueueStallCounter++
	}
	return t.QueueStallCounter >= threshold
}

// StateHash returns the SHA-256 of the state serialization with the
// top-level last_updated_at excluded, so a pure timestamp touch does not
// count as progress.
func StateHash(state *domain.SessionState) (string, error) {
	clone := *state
	clone.LastUpdatedAt = time.Time{}
	payload, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("hash state: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Check runs the no-progress detector for one status call. An unchanged
// state hash increments the counter; a changed hash stores it and resets the
// counter. At the threshold a system/deadlock_suspected blocker is appended
// (idempotent on id) and now is overridden to deadlocked. Only the tracker
// file is persisted here; the state mutation is the caller's in-memory
// snapshot, never written back from the read path.
func Check(state *domain.SessionState, sessionDir string, threshold int) error {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	tracker, err := LoadTracker(sessionDir)
	if err != nil {
		return err
	}

	hash, err := StateHash(state)
	if err != nil {
		return err
	}
	if hash == tracker.LastStateHash {
		tracker.NoProgressCounter++
	} else {
		tracker.LastStateHash = hash
		tracker.NoProgressCounter = 0
	}

	if tracker.NoProgressCounter >= threshold {
		if state.Signal(SignalID) == nil {
			state.Signals = append(state.Signals, domain.Signal{
				ID:      SignalID,
				Type:    domain.SignalSystem,
				Kind:    "deadlock_suspected",
				Level:   domain.LevelBlocker,
				Open:    true,
				Title:   "Potential deadlock detected",
				Message: "Agent called status without making progress",
			})
		}
		state.Now = domain.Now{Reason: domain.ReasonDeadlocked, SignalID: SignalID}
	}

	return tracker.Persist(sessionDir)
}
