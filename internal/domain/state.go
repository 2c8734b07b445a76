package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the only schema_version this build reads or writes.
const SchemaVersion = 1

// SessionState is the root aggregate persisted as state.json. It exclusively
// owns its task, signal, and artifact collections.
type SessionState struct {
	SchemaVersion int            `json:"schema_version"`
	Version       int            `json:"version"`
	Session       string         `json:"session"`
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	Purpose       string         `json:"purpose"`
	Tags          []string       `json:"tags"`
	CreatedAt     time.Time      `json:"created_at"`
	LastUpdatedAt time.Time      `json:"last_updated_at"`
	ProjectRoot   string         `json:"project_root"`
	Branch        string         `json:"branch,omitempty"`
	Prompts       PromptMetadata `json:"prompts"`
	Environment   Environment    `json:"environment"`
	Tasks         []Task         `json:"tasks"`
	Signals       []Signal       `json:"signals"`
	NextSteps     []string       `json:"next_steps"`
	ContextNotes  []string       `json:"context_notes"`
	Artifacts     []Artifact     `json:"artifacts"`
	Now           Now            `json:"now"`
	Done          bool           `json:"done"`
	FinalSummary  *string        `json:"final_summary,omitempty"`
}

// ComputeNow derives the next-action descriptor from the current state.
// Rule order is load-bearing: open blockers beat in-progress work, in-progress
// work beats ready TODOs, and BLOCKED/WAITING/FAILED tasks never count as
// fresh work. "First" always means earliest in task insertion order.
func (s *SessionState) ComputeNow() Now {
	for _, sig := range s.Signals {
		if sig.Open && sig.Level == LevelBlocker {
			return Now{Reason: ReasonCIBlocker, SignalID: sig.ID}
		}
	}

	for _, t := range s.Tasks {
		if t.Status == StatusInProgress {
			return Now{Reason: ReasonTask, TaskID: t.ID}
		}
	}

	for _, t := range s.Tasks {
		if t.Status == StatusTodo && s.depsDone(t.DependsOn) {
			return Now{Reason: ReasonTask, TaskID: t.ID}
		}
	}

	if len(s.Tasks) > 0 && s.allTasksSettled() {
		return Now{Reason: ReasonCompleted}
	}

	return Now{Reason: ReasonIdle}
}

func (s *SessionState) depsDone(deps []int) bool {
	for _, id := range deps {
		if s.taskStatus(id) != StatusDone {
			return false
		}
	}
	return true
}

func (s *SessionState) taskStatus(id int) TaskStatus {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t.Status
		}
	}
	return ""
}

func (s *SessionState) allTasksSettled() bool {
	for _, t := range s.Tasks {
		switch t.Status {
		case StatusDone, StatusOutOfScope, StatusSkipped:
		default:
			return false
		}
	}
	return true
}

// Task returns a pointer to the task with the given id, or nil.
func (s *SessionState) Task(id int) *Task {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	return nil
}

// Signal returns a pointer to the signal with the given id, or nil.
func (s *SessionState) Signal(id string) *Signal {
	for i := range s.Signals {
		if s.Signals[i].ID == id {
			return &s.Signals[i]
		}
	}
	return nil
}

// NextTaskID returns max(existing ids)+1, or 1 for an empty plan.
func (s *SessionState) NextTaskID() int {
	next := 1
	for _, t := range s.Tasks {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next
}

// Clone returns a deep copy of the state via a JSON round-trip. Used by the
// dry-run path so the on-disk state is never touched.
func (s *SessionState) Clone() (*SessionState, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	var out SessionState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	return &out, nil
}

// ErrSignal covers duplicate-open and close-of-unknown signal operations.
var ErrSignal = errors.New("signal error")

// OpenSignal appends a signal and recomputes now. Duplicate ids are rejected.
func (s *SessionState) OpenSignal(sig Signal) error {
	if s.Signal(sig.ID) != nil {
		return fmt.Errorf("%w: signal %s already exists", ErrSignal, sig.ID)
	}
	s.Signals = append(s.Signals, sig)
	s.LastUpdatedAt = time.Now().UTC()
	s.Now = s.ComputeNow()
	return nil
}

// CloseSignal marks a signal closed (never removed; history is kept) and
// recomputes now. Closing an unknown signal is an error.
func (s *SessionState) CloseSignal(id string) error {
	sig := s.Signal(id)
	if sig == nil {
		return fmt.Errorf("%w: signal %s not found", ErrSignal, id)
	}
	sig.Open = false
	s.LastUpdatedAt = time.Now().UTC()
	s.Now = s.ComputeNow()
	return nil
}

// ValidationError carries every invariant violation found in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid session state: " + strings.Join(e.Problems, "; ")
}

// Validate checks all persisted-write invariants: unique task ids, dependency
// targets exist and are not self-loops, the dependency graph is acyclic, the
// schema version is known, and the stored now matches a fresh ComputeNow.
// The now check is skipped for the post-compute override reasons
// (waiting_on_lock, deadlocked, escalated), which are written by the lock
// queue and deadlock detector after scheduling ran.
func (s *SessionState) Validate() error {
	var problems []string

	if s.SchemaVersion != SchemaVersion {
		problems = append(problems, fmt.Sprintf("unknown schema_version %d", s.SchemaVersion))
	}

	seen := make(map[int]bool, len(s.Tasks))
	for _, t := range s.Tasks {
		if seen[t.ID] {
			problems = append(problems, fmt.Sprintf("duplicate task id %d", t.ID))
		}
		seen[t.ID] = true
	}

	ids := make(map[int]bool, len(s.Tasks))
	for _, t := range s.Tasks {
		ids[t.ID] = true
	}
	for _, t := range s.Tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				problems = append(problems, fmt.Sprintf("task %d depends on unknown task %d", t.ID, dep))
			}
			if dep == t.ID {
				problems = append(problems, fmt.Sprintf("task %d cannot depend on itself", t.ID))
			}
		}
	}

	if hasCycle(s.Tasks) {
		problems = append(problems, "circular dependency detected")
	}

	if !OverrideReason(s.Now.Reason) {
		if expected := s.ComputeNow(); s.Now != expected {
			problems = append(problems, "stored now is out of sync with ComputeNow")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// hasCycle runs a DFS with visiting/visited sets over the dependency graph.
func hasCycle(tasks []Task) bool {
	graph := make(map[int][]int, len(tasks))
	for _, t := range tasks {
		graph[t.ID] = t.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	color := make(map[int]int, len(graph))

	var dfs func(node int) bool
	dfs = func(node int) bool {
		switch color[node] {
		case visiting:
			return true
		case visited:
			return false
		}
		color[node] = visiting
		for _, dep := range graph[node] {
			if _, ok := graph[dep]; ok && dfs(dep) {
				return true
			}
		}
		color[node] = visited
		return false
	}

	for _, t := range tasks {
		if dfs(t.ID) {
			return true
		}
	}
	return false
}
