// Package status assembles the read-side report agents poll: a snapshot of
// the session state plus lock, queue, safe-mode, and instruction context.
// The same report backs the CLI status command and the MCP status tool.
package status

import (
	"github.com/jaakkos/planloop/internal/deadlock"
	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/lock"
	"github.com/jaakkos/planloop/internal/session"
)

// Report is the full status payload for one session.
type Report struct {
	Session           string                `json:"session"`
	Version           int                   `json:"version"`
	Done              bool                  `json:"done"`
	Now               domain.Now            `json:"now"`
	Tasks             []domain.Task         `json:"tasks"`
	Signals           []domain.Signal       `json:"signals"`
	LockInfo          lock.Status           `json:"lock_info"`
	LockQueue         lock.QueueStatus      `json:"lock_queue"`
	SafeModeDefaults  home.SafeModeDefaults `json:"safe_mode_defaults"`
	AgentInstructions string                `json:"agent_instructions"`
}

// Build loads a snapshot of the session, runs one deadlock-detector tick
// against it, and attaches the lock and queue views. Reads are never
// serialized against writers; the snapshot is whatever state.json held at
// read time.
func Build(st *session.Store, cfg *home.Config, sessionID string) (*Report, error) {
	state, err := st.Load(sessionID)
	if err != nil {
		return nil, err
	}
	dir := st.Dir(sessionID)
	if err := deadlock.Check(state, dir, cfg.Deadlock.Threshold); err != nil {
		return nil, err
	}

	return &Report{
		Session:           state.Session,
		Version:           state.Version,
		Done:              state.Done,
		Now:               state.Now,
		Tasks:             state.Tasks,
		Signals:           state.Signals,
		LockInfo:          lock.GetStatus(dir),
		LockQueue:         lock.GetQueueStatus(dir, home.AgentName(), cfg.LockTimeout()),
		SafeModeDefaults:  cfg.SafeModes.Update,
		AgentInstructions: home.AgentInstructions(),
	}, nil
}
