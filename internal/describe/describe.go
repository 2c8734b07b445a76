// Package describe exports the machine-readable contract of the coordinator:
// JSON schemas for the state and update payload, the enum value lists, and
// the error codes the CLI can return. Agents bootstrap themselves from this.
package describe

import (
	"github.com/invopop/jsonschema"

	"github.com/jaakkos/planloop/internal/domain"
)

// ErrorCode is one machine-readable failure class with a hint for recovery.
type ErrorCode struct {
	Code string `json:"code"`
	Hint string `json:"hint"`
}

// ErrorCodes lists every code the update and alert pipelines can emit.
func ErrorCodes() []ErrorCode {
	return []ErrorCode{
		{Code: "malformed_input", Hint: "payload is not valid JSON or has invalid field values"},
		{Code: "session_mismatch", Hint: "payload session does not match the targeted session"},
		{Code: "version_mismatch", Hint: "re-read status and retry with the current last_seen_version"},
		{Code: "unknown_fields", Hint: "strict mode rejected unrecognized payload fields"},
		{Code: "plan_edit_blocked", Hint: "no_plan_edit mode allows only status patches"},
		{Code: "unknown_task", Hint: "a referenced task id does not exist"},
		{Code: "signal_error", Hint: "duplicate signal open or close of an unknown signal"},
		{Code: "lock_timeout", Hint: "another agent held the session lock past the timeout"},
		{Code: "session_not_found", Hint: "no session with that id exists in this home"},
		{Code: "invalid_state", Hint: "the update would violate a state invariant"},
	}
}

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		DoNotReference: false,
		ExpandedStruct: true,
	}
}

// StateSchema returns the JSON schema of the persisted session state.
func StateSchema() *jsonschema.Schema {
	return newReflector().Reflect(&domain.SessionState{})
}

// UpdateSchema returns the JSON schema of the update payload.
func UpdateSchema() *jsonschema.Schema {
	return newReflector().Reflect(&domain.UpdatePayload{})
}

// EnumReference returns every enum value list agents care about.
func EnumReference() map[string]any {
	return map[string]any{
		"task_types":     domain.TaskTypes(),
		"task_statuses":  domain.TaskStatuses(),
		"signal_levels":  domain.SignalLevels(),
		"signal_types":   domain.SignalTypes(),
		"artifact_types": domain.ArtifactTypes(),
		"now_reasons":    domain.NowReasons(),
	}
}

// Payload aggregates the full describe output.
func Payload() map[string]any {
	return map[string]any{
		"state_schema":  StateSchema(),
		"update_schema": UpdateSchema(),
		"enums":         EnumReference(),
		"error_codes":   ErrorCodes(),
		"usage_hints": map[string]any{
			"update_payload": map[string]any{
				"required_fields": []string{"session"},
				"common_fields":   []string{"last_seen_version", "add_tasks", "update_tasks", "context_notes", "next_steps"},
				"note":            "Use 'add_tasks' to create new tasks, 'update_tasks' to modify existing ones, 'tasks' for status-only patches",
			},
		},
	}
}
