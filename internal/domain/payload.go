package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// VersionToken is the optimistic-concurrency token agents echo back on
// updates. It is a string on the wire, but older clients sent the raw
// integer; both decode to the same string form.
type VersionToken string

// UnmarshalJSON accepts either a JSON string or a JSON integer.
func (v *VersionToken) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = VersionToken(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = VersionToken(strconv.FormatInt(n, 10))
		return nil
	}
	return fmt.Errorf("last_seen_version must be a string or integer, got %s", data)
}

// TaskStatusPatch is the status-only update channel. It stays usable under
// the no_plan_edit safe mode.
type TaskStatusPatch struct {
	ID       int         `json:"id"`
	Status   *TaskStatus `json:"status,omitempty"`
	NewTitle *string     `json:"new_title,omitempty"`
}

// UpdateTaskInput is the full-edit channel for existing tasks.
type UpdateTaskInput struct {
	ID       int         `json:"id"`
	NewTitle *string     `json:"new_title,omitempty"`
	NewType  *TaskType   `json:"new_type,omitempty"`
	Status   *TaskStatus `json:"status,omitempty"`
}

// AddTaskInput describes a new task. Fresh ids are assigned by the pipeline.
type AddTaskInput struct {
	Title               string    `json:"title"`
	Type                *TaskType `json:"type,omitempty"`
	DependsOn           []int     `json:"depends_on,omitempty"`
	ImplementationNotes string    `json:"implementation_notes,omitempty"`
}

// AgentInfo identifies the agent submitting an update.
type AgentInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// UpdatePayload is the wire format of the update command. Absent fields mean
// "no change": an empty context_notes list does not clear the stored notes.
type UpdatePayload struct {
	Session         string            `json:"session"`
	LastSeenVersion VersionToken      `json:"last_seen_version,omitempty"`
	Tasks           []TaskStatusPatch `json:"tasks,omitempty"`
	AddTasks        []AddTaskInput    `json:"add_tasks,omitempty"`
	UpdateTasks     []UpdateTaskInput `json:"update_tasks,omitempty"`
	ContextNotes    []string          `json:"context_notes,omitempty"`
	NextSteps       []string          `json:"next_steps,omitempty"`
	Artifacts       []Artifact        `json:"artifacts,omitempty"`
	Agent           *AgentInfo        `json:"agent,omitempty"`
	FinalSummary    *string           `json:"final_summary,omitempty"`
	Done            *bool             `json:"done,omitempty"`
}

// KnownPayloadFields is the set of recognized top-level payload keys; the
// strict safe mode rejects anything outside it.
func KnownPayloadFields() map[string]bool {
	return map[string]bool{
		"session":           true,
		"last_seen_version": true,
		"tasks":             true,
		"add_tasks":         true,
		"update_tasks":      true,
		"context_notes":     true,
		"next_steps":        true,
		"artifacts":         true,
		"agent":             true,
		"final_summary":     true,
		"done":              true,
	}
}

// HasPlanEdits reports whether the payload would change plan structure
// (anything beyond status patches). Used by the no_plan_edit safe mode.
func (p *UpdatePayload) HasPlanEdits() bool {
	return len(p.AddTasks) > 0 || len(p.UpdateTasks) > 0 ||
		len(p.ContextNotes) > 0 || len(p.NextSteps) > 0 || len(p.Artifacts) > 0
}
