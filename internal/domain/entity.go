// Package domain holds planloop session entities and the scheduling rules
// that derive the "now" pointer from them. It has no dependencies on other
// packages.
package domain

import "time"

// TaskType classifies a task.
type TaskType string

const (
	TaskTest        TaskType = "test"
	TaskFix         TaskType = "fix"
	TaskRefactor    TaskType = "refactor"
	TaskFeature     TaskType = "feature"
	TaskDoc         TaskType = "doc"
	TaskChore       TaskType = "chore"
	TaskDesign      TaskType = "design"
	TaskInvestigate TaskType = "investigate"
)

// TaskTypes lists all valid task types in declaration order.
func TaskTypes() []TaskType {
	return []TaskType{TaskTest, TaskFix, TaskRefactor, TaskFeature, TaskDoc, TaskChore, TaskDesign, TaskInvestigate}
}

// ValidTaskType reports whether t is a known task type.
func ValidTaskType(t TaskType) bool {
	for _, v := range TaskTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
	StatusBlocked    TaskStatus = "BLOCKED"
	StatusSkipped    TaskStatus = "SKIPPED"
	StatusOutOfScope TaskStatus = "OUT_OF_SCOPE"
	StatusCancelled  TaskStatus = "CANCELLED"
	StatusFailed     TaskStatus = "FAILED"
	StatusWaiting    TaskStatus = "WAITING"
)

// TaskStatuses lists all valid task statuses in declaration order.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{
		StatusTodo, StatusInProgress, StatusDone, StatusBlocked, StatusSkipped,
		StatusOutOfScope, StatusCancelled, StatusFailed, StatusWaiting,
	}
}

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	for _, v := range TaskStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// Task is a unit of work in a session plan. The id is immutable and unique
// within the session; everything else may change through updates.
type Task struct {
	ID            int        `json:"id"`
	Title         string     `json:"title"`
	Type          TaskType   `json:"type"`
	Status        TaskStatus `json:"status"`
	DependsOn     []int      `json:"depends_on"`
	CommitSHA     string     `json:"commit_sha,omitempty"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
}

// SignalLevel is the severity of a signal. Blockers preempt task scheduling.
type SignalLevel string

const (
	LevelBlocker SignalLevel = "blocker"
	LevelHigh    SignalLevel = "high"
	LevelInfo    SignalLevel = "info"
)

// SignalLevels lists all valid signal levels.
func SignalLevels() []SignalLevel {
	return []SignalLevel{LevelBlocker, LevelHigh, LevelInfo}
}

// ValidSignalLevel reports whether l is a known signal level.
func ValidSignalLevel(l SignalLevel) bool {
	return l == LevelBlocker || l == LevelHigh || l == LevelInfo
}

// SignalType classifies the origin of a signal.
type SignalType string

const (
	SignalCI     SignalType = "ci"
	SignalLint   SignalType = "lint"
	SignalBench  SignalType = "bench"
	SignalSystem SignalType = "system"
	SignalOther  SignalType = "other"
)

// SignalTypes lists all valid signal types.
func SignalTypes() []SignalType {
	return []SignalType{SignalCI, SignalLint, SignalBench, SignalSystem, SignalOther}
}

// ValidSignalType reports whether t is a known signal type.
func ValidSignalType(t SignalType) bool {
	for _, v := range SignalTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Signal is an out-of-band event attached to a session. Closed signals are
// kept for history; only open blockers affect scheduling.
type Signal struct {
	ID       string         `json:"id"`
	Type     SignalType     `json:"type"`
	Kind     string         `json:"kind"`
	Level    SignalLevel    `json:"level"`
	Open     bool           `json:"open"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Link     string         `json:"link,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
	Attempts int            `json:"attempts"`
}

// NowReason is why the coordinator points an agent at a particular action.
type NowReason string

const (
	ReasonCIBlocker     NowReason = "ci_blocker"
	ReasonTask          NowReason = "task"
	ReasonCompleted     NowReason = "completed"
	ReasonIdle          NowReason = "idle"
	ReasonWaitingOnLock NowReason = "waiting_on_lock"
	ReasonDeadlocked    NowReason = "deadlocked"
	ReasonEscalated     NowReason = "escalated"
)

// NowReasons lists all reasons, including the write-time overrides injected
// by the lock and deadlock subsystems.
func NowReasons() []NowReason {
	return []NowReason{
		ReasonCIBlocker, ReasonTask, ReasonCompleted, ReasonIdle,
		ReasonWaitingOnLock, ReasonDeadlocked, ReasonEscalated,
	}
}

// OverrideReason reports whether r is one of the reasons injected after
// ComputeNow runs (by the lock queue or the deadlock detector). The stored
// now is allowed to disagree with a fresh recomputation for these.
func OverrideReason(r NowReason) bool {
	return r == ReasonWaitingOnLock || r == ReasonDeadlocked || r == ReasonEscalated
}

// Now is the single-action descriptor handed to an agent on each poll.
type Now struct {
	Reason   NowReason `json:"reason"`
	TaskID   int       `json:"task_id,omitempty"`
	SignalID string    `json:"signal_id,omitempty"`
}

// ArtifactType classifies a recorded artifact.
type ArtifactType string

const (
	ArtifactDiff  ArtifactType = "diff"
	ArtifactLog   ArtifactType = "log"
	ArtifactFile  ArtifactType = "file"
	ArtifactURL   ArtifactType = "url"
	ArtifactOther ArtifactType = "other"
)

// ArtifactTypes lists all valid artifact types.
func ArtifactTypes() []ArtifactType {
	return []ArtifactType{ArtifactDiff, ArtifactLog, ArtifactFile, ArtifactURL, ArtifactOther}
}

// Artifact is a pointer to something an agent produced (diff, log, file, url).
type Artifact struct {
	Type      ArtifactType   `json:"type"`
	Path      string         `json:"path,omitempty"`
	Summary   string         `json:"summary"`
	CommitSHA string         `json:"commit_sha,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Environment is a fingerprint of the machine the session was created on.
type Environment struct {
	OS   string `json:"os"`
	Arch string `json:"arch,omitempty"`
	Go   string `json:"go,omitempty"`
	Node string `json:"node,omitempty"`
}

// PromptMetadata records which prompt template set the session was created with.
type PromptMetadata struct {
	Set              string `json:"set"`
	GoalVersion      string `json:"goal_version,omitempty"`
	HandshakeVersion string `json:"handshake_version,omitempty"`
	SummaryVersion   string `json:"summary_version,omitempty"`
}
