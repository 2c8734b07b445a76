// Package update is the write pipeline for session state: payload decoding,
// safe-mode gates, optimistic version checking, apply, and persistence under
// the session lock. Alerts (signal open/close) go through the same lock and
// validation path.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/lock"
	"github.com/jaakkos/planloop/internal/session"
)

// Sentinel errors for the distinct rejection classes. The CLI maps these to
// error codes without string matching.
var (
	ErrMalformedInput  = errors.New("malformed update payload")
	ErrSessionMismatch = errors.New("payload session does not match state")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrUnknownFields   = errors.New("unknown payload fields")
	ErrPlanEditBlocked = errors.New("plan edits are disabled")
	ErrUnknownTask     = errors.New("unknown task id")
)

// Options are the per-invocation safe-mode switches, already merged from
// config defaults and CLI flags by the caller.
type Options struct {
	DryRun      bool
	NoPlanEdit  bool
	Strict      bool
	LockTimeout time.Duration
}

// Result is the structured outcome printed by the update command.
type Result struct {
	Status  string         `json:"status"`
	Session string         `json:"session"`
	Version int            `json:"version,omitempty"`
	Now     domain.Now     `json:"now"`
	Diff    map[string]any `json:"diff,omitempty"`
}

// Runner binds the pipeline to a session store.
type Runner struct {
	Store *session.Store
}

// DecodePayload parses the raw payload and returns it together with the set
// of top-level keys actually present, which the strict gate checks against
// the known-field list.
func DecodePayload(raw []byte) (*domain.UpdatePayload, []string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	var payload domain.UpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &payload, keys, nil
}

// Run executes the full update pipeline. sessionID may be empty, in which
// case the payload's session field is authoritative. Dry runs read a
// snapshot without taking the lock; real updates hold the lock from load to
// save.
func (r *Runner) Run(ctx context.Context, sessionID string, raw []byte, opts Options) (*Result, error) {
	payload, keys, err := DecodePayload(raw)
	if err != nil {
		return nil, err
	}

	if opts.Strict {
		known := domain.KnownPayloadFields()
		var unknown []string
		for _, k := range keys {
			if !known[k] {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrUnknownFields, unknown)
		}
	}
	if opts.NoPlanEdit && payload.HasPlanEdits() {
		return nil, ErrPlanEditBlocked
	}

	if sessionID == "" {
		sessionID = payload.Session
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: no session given", ErrMalformedInput)
	}

	if opts.DryRun {
		return r.dryRun(sessionID, payload)
	}

	release, err := lock.Acquire(ctx, r.Store, sessionID, "update", opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := r.Store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkPreconditions(state, payload); err != nil {
		return nil, err
	}
	if err := Apply(state, payload); err != nil {
		return nil, err
	}
	if err := r.Store.Save(state, saveMessage(payload)); err != nil {
		return nil, err
	}
	return &Result{Status: "ok", Session: state.Session, Version: state.Version, Now: state.Now}, nil
}

func (r *Runner) dryRun(sessionID string, payload *domain.UpdatePayload) (*Result, error) {
	state, err := r.Store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkPreconditions(state, payload); err != nil {
		return nil, err
	}
	after, err := state.Clone()
	if err != nil {
		return nil, err
	}
	if err := Apply(after, payload); err != nil {
		return nil, err
	}
	if err := after.Validate(); err != nil {
		return nil, err
	}
	return &Result{
		Status:  "dry_run",
		Session: state.Session,
		Version: state.Version,
		Now:     after.Now,
		Diff:    Diff(state, after),
	}, nil
}

// checkPreconditions enforces the session and optimistic-version guards.
// Both fields are optional in the payload; an absent token skips the check.
func checkPreconditions(state *domain.SessionState, payload *domain.UpdatePayload) error {
	if payload.Session != "" && payload.Session != state.Session {
		return fmt.Errorf("%w: payload %q, state %q", ErrSessionMismatch, payload.Session, state.Session)
	}
	if payload.LastSeenVersion != "" && string(payload.LastSeenVersion) != strconv.Itoa(state.Version) {
		return fmt.Errorf("%w: payload saw %s, state is at %d", ErrVersionMismatch, payload.LastSeenVersion, state.Version)
	}
	return nil
}

func saveMessage(payload *domain.UpdatePayload) string {
	if payload.Agent != nil && payload.Agent.Name != "" {
		return "Update from " + payload.Agent.Name
	}
	return "Update command"
}

// Apply mutates state according to the payload. Any unknown task id fails
// the whole update before persistence. Empty note and step lists mean "no
// change"; artifacts always append; done can only be set, never cleared.
func Apply(state *domain.SessionState, payload *domain.UpdatePayload) error {
	now := time.Now().UTC()

	for _, patch := range payload.Tasks {
		task := state.Task(patch.ID)
		if task == nil {
			return fmt.Errorf("%w: %d", ErrUnknownTask, patch.ID)
		}
		if patch.Status != nil {
			if !domain.ValidTaskStatus(*patch.Status) {
				return fmt.Errorf("%w: invalid status %q for task %d", ErrMalformedInput, *patch.Status, patch.ID)
			}
			task.Status = *patch.Status
		}
		if patch.NewTitle != nil {
			task.Title = *patch.NewTitle
		}
		ts := now
		task.LastUpdatedAt = &ts
	}

	for _, upd := range payload.UpdateTasks {
		task := state.Task(upd.ID)
		if task == nil {
			return fmt.Errorf("%w: %d", ErrUnknownTask, upd.ID)
		}
		if upd.NewTitle != nil {
			task.Title = *upd.NewTitle
		}
		if upd.NewType != nil {
			if !domain.ValidTaskType(*upd.NewType) {
				return fmt.Errorf("%w: invalid type %q for task %d", ErrMalformedInput, *upd.NewType, upd.ID)
			}
			task.Type = *upd.NewType
		}
		if upd.Status != nil {
			if !domain.ValidTaskStatus(*upd.Status) {
				return fmt.Errorf("%w: invalid status %q for task %d", ErrMalformedInput, *upd.Status, upd.ID)
			}
			task.Status = *upd.Status
		}
		ts := now
		task.LastUpdatedAt = &ts
	}

	nextID := state.NextTaskID()
	for _, add := range payload.AddTasks {
		if add.Title == "" {
			return fmt.Errorf("%w: add_tasks entry without title", ErrMalformedInput)
		}
		taskType := domain.TaskFeature
		if add.Type != nil {
			if !domain.ValidTaskType(*add.Type) {
				return fmt.Errorf("%w: invalid type %q for new task", ErrMalformedInput, *add.Type)
			}
			taskType = *add.Type
		}
		deps := add.DependsOn
		if deps == nil {
			deps = []int{}
		}
		state.Tasks = append(state.Tasks, domain.Task{
			ID:        nextID,
			Title:     add.Title,
			Type:      taskType,
			Status:    domain.StatusTodo,
			DependsOn: deps,
		})
		nextID++
	}

	if len(payload.ContextNotes) > 0 {
		state.ContextNotes = payload.ContextNotes
	}
	if len(payload.NextSteps) > 0 {
		state.NextSteps = payload.NextSteps
	}
	if len(payload.Artifacts) > 0 {
		state.Artifacts = append(state.Artifacts, payload.Artifacts...)
	}
	if payload.FinalSummary != nil {
		state.FinalSummary = payload.FinalSummary
	}
	if payload.Done != nil && *payload.Done {
		state.Done = true
	}

	state.LastUpdatedAt = now
	state.Version++
	state.Now = state.ComputeNow()
	return nil
}
