package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func testState(tasks []Task, signals []Signal) *SessionState {
	s := &SessionState{
		SchemaVersion: SchemaVersion,
		Version:       1,
		Session:       "test-20260101T000000Z-abcd",
		Name:          "test",
		Title:         "Test",
		CreatedAt:     time.Now().UTC(),
		LastUpdatedAt: time.Now().UTC(),
		ProjectRoot:   "/repo",
		Tasks:         tasks,
		Signals:       signals,
	}
	s.Now = s.ComputeNow()
	return s
}

// ========== ComputeNow rule ordering ==========

func TestComputeNow_IdleWhenEmpty(t *testing.T) {
	s := testState(nil, nil)
	now := s.ComputeNow()
	if now.Reason != ReasonIdle {
		t.Errorf("expected idle, got %s", now.Reason)
	}
}

func TestComputeNow_OpenBlockerWins(t *testing.T) {
	s := testState(
		[]Task{{ID: 1, Title: "work", Type: TaskFeature, Status: StatusInProgress}},
		[]Signal{
			{ID: "info1", Type: SignalCI, Kind: "build", Level: LevelInfo, Open: true},
			{ID: "ci1", Type: SignalCI, Kind: "build", Level: LevelBlocker, Open: true},
			{ID: "ci2", Type: SignalCI, Kind: "build", Level: LevelBlocker, Open: true},
		},
	)
	now := s.ComputeNow()
	if now.Reason != ReasonCIBlocker {
		t.Fatalf("expected ci_blocker, got %s", now.Reason)
	}
	if now.SignalID != "ci1" {
		t.Errorf("expected first open blocker ci1, got %s", now.SignalID)
	}
}

func TestComputeNow_ClosedBlockerIgnored(t *testing.T) {
	s := testState(
		[]Task{{ID: 1, Title: "work", Type: TaskFeature, Status: StatusInProgress}},
		[]Signal{{ID: "ci1", Type: SignalCI, Kind: "build", Level: LevelBlocker, Open: false}},
	)
	now := s.ComputeNow()
	if now.Reason != ReasonTask || now.TaskID != 1 {
		t.Errorf("expected task 1, got %+v", now)
	}
}

func TestComputeNow_InProgressBeatsTodo(t *testing.T) {
	s := testState([]Task{
		{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo},
		{ID: 2, Title: "b", Type: TaskFeature, Status: StatusInProgress},
	}, nil)
	now := s.ComputeNow()
	if now.Reason != ReasonTask || now.TaskID != 2 {
		t.Errorf("expected in-progress task 2, got %+v", now)
	}
}

func TestComputeNow_ReadyTodoRespectsDependencies(t *testing.T) {
	s := testState([]Task{
		{ID: 1, Title: "a", Type: TaskTest, Status: StatusTodo},
		{ID: 2, Title: "b", Type: TaskRefactor, Status: StatusTodo, DependsOn: []int{1}},
	}, nil)

	now := s.ComputeNow()
	if now.Reason != ReasonTask || now.TaskID != 1 {
		t.Fatalf("expected task 1 first, got %+v", now)
	}

	s.Tasks[0].Status = StatusDone
	now = s.ComputeNow()
	if now.Reason != ReasonTask || now.TaskID != 2 {
		t.Errorf("expected dependent task 2 to unlock, got %+v", now)
	}
}

func TestComputeNow_BlockedWaitingFailedNotFreshWork(t *testing.T) {
	for _, status := range []TaskStatus{StatusBlocked, StatusWaiting, StatusFailed, StatusCancelled} {
		s := testState([]Task{{ID: 1, Title: "a", Type: TaskFix, Status: status}}, nil)
		now := s.ComputeNow()
		if now.Reason != ReasonIdle {
			t.Errorf("status %s: expected idle, got %+v", status, now)
		}
	}
}

func TestComputeNow_CompletedNeedsAllSettled(t *testing.T) {
	s := testState([]Task{
		{ID: 1, Title: "a", Type: TaskFeature, Status: StatusDone},
		{ID: 2, Title: "b", Type: TaskDoc, Status: StatusSkipped},
		{ID: 3, Title: "c", Type: TaskChore, Status: StatusOutOfScope},
	}, nil)
	now := s.ComputeNow()
	if now.Reason != ReasonCompleted {
		t.Fatalf("expected completed, got %+v", now)
	}

	s.Tasks[1].Status = StatusFailed
	now = s.ComputeNow()
	if now.Reason != ReasonIdle {
		t.Errorf("expected idle with a failed task, got %+v", now)
	}
}

func TestComputeNow_TodoWithUnmetDepsIsIdle(t *testing.T) {
	s := testState([]Task{
		{ID: 1, Title: "a", Type: TaskFeature, Status: StatusBlocked},
		{ID: 2, Title: "b", Type: TaskFeature, Status: StatusTodo, DependsOn: []int{1}},
	}, nil)
	now := s.ComputeNow()
	if now.Reason != ReasonIdle {
		t.Errorf("expected idle, got %+v", now)
	}
}

// ========== Validate ==========

func TestValidate_CleanState(t *testing.T) {
	s := testState([]Task{{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo}}, nil)
	if err := s.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_DuplicateTaskIDs(t *testing.T) {
	s := testState([]Task{
		{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo},
		{ID: 1, Title: "b", Type: TaskFeature, Status: StatusTodo},
	}, nil)
	s.Now = s.ComputeNow()
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate task id 1") {
		t.Errorf("expected duplicate id error, got %v", err)
	}
}

func TestValidate_UnknownDependency(t *testing.T) {
	s := testState([]Task{{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo, DependsOn: []int{9}}}, nil)
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown task 9") {
		t.Errorf("expected unknown dependency error, got %v", err)
	}
}

func TestValidate_SelfDependency(t *testing.T) {
	s := testState([]Task{{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo, DependsOn: []int{1}}}, nil)
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "cannot depend on itself") {
		t.Errorf("expected self-dependency error, got %v", err)
	}
}

func TestValidate_Cycle(t *testing.T) {
	s := testState([]Task{
		{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo, DependsOn: []int{2}},
		{ID: 2, Title: "b", Type: TaskFeature, Status: StatusTodo, DependsOn: []int{3}},
		{ID: 3, Title: "c", Type: TaskFeature, Status: StatusTodo, DependsOn: []int{1}},
	}, nil)
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("expected cycle error, got %v", err)
	}
}

func TestValidate_StaleNow(t *testing.T) {
	s := testState([]Task{{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo}}, nil)
	s.Now = Now{Reason: ReasonIdle}
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "out of sync") {
		t.Errorf("expected now drift error, got %v", err)
	}
}

func TestValidate_OverrideReasonsAccepted(t *testing.T) {
	for _, reason := range []NowReason{ReasonWaitingOnLock, ReasonDeadlocked, ReasonEscalated} {
		s := testState([]Task{{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo}}, nil)
		s.Now = Now{Reason: reason, SignalID: "x"}
		if err := s.Validate(); err != nil {
			t.Errorf("reason %s: unexpected error: %v", reason, err)
		}
	}
}

func TestValidate_UnknownSchemaVersion(t *testing.T) {
	s := testState(nil, nil)
	s.SchemaVersion = 99
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "schema_version") {
		t.Errorf("expected schema version error, got %v", err)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	s := testState([]Task{
		{ID: 1, Title: "a", Type: TaskFeature, Status: StatusTodo, DependsOn: []int{1}},
		{ID: 1, Title: "b", Type: TaskFeature, Status: StatusTodo, DependsOn: []int{7}},
	}, nil)
	s.Now = s.ComputeNow()
	err := s.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Problems) < 3 {
		t.Errorf("expected at least 3 problems, got %v", verr.Problems)
	}
}

// ========== signals ==========

func TestOpenSignal_DuplicateRejected(t *testing.T) {
	s := testState(nil, nil)
	sig := Signal{ID: "ci1", Type: SignalCI, Kind: "build", Level: LevelBlocker, Open: true, Title: "CI", Message: "fail"}
	if err := s.OpenSignal(sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Now.Reason != ReasonCIBlocker {
		t.Errorf("expected now to track blocker, got %+v", s.Now)
	}
	if err := s.OpenSignal(sig); err == nil {
		t.Error("expected duplicate signal error")
	}
}

func TestCloseSignal_PreservesRecord(t *testing.T) {
	s := testState([]Task{{ID: 1, Title: "a", Type: TaskFix, Status: StatusInProgress}}, nil)
	sig := Signal{ID: "ci1", Type: SignalCI, Kind: "build", Level: LevelBlocker, Open: true, Title: "CI", Message: "fail"}
	if err := s.OpenSignal(sig); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.CloseSignal("ci1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(s.Signals) != 1 || s.Signals[0].Open {
		t.Errorf("expected closed signal kept in history, got %+v", s.Signals)
	}
	if s.Now.Reason != ReasonTask || s.Now.TaskID != 1 {
		t.Errorf("expected now back to task 1, got %+v", s.Now)
	}
}

func TestCloseSignal_UnknownFails(t *testing.T) {
	s := testState(nil, nil)
	if err := s.CloseSignal("nope"); err == nil {
		t.Error("expected error closing unknown signal")
	}
}

// ========== payload decoding ==========

func TestVersionToken_AcceptsStringAndInt(t *testing.T) {
	var p UpdatePayload
	if err := json.Unmarshal([]byte(`{"session":"s","last_seen_version":"5"}`), &p); err != nil {
		t.Fatalf("string token: %v", err)
	}
	if p.LastSeenVersion != "5" {
		t.Errorf("expected \"5\", got %q", p.LastSeenVersion)
	}

	if err := json.Unmarshal([]byte(`{"session":"s","last_seen_version":5}`), &p); err != nil {
		t.Fatalf("int token: %v", err)
	}
	if p.LastSeenVersion != "5" {
		t.Errorf("expected coerced \"5\", got %q", p.LastSeenVersion)
	}

	if err := json.Unmarshal([]byte(`{"session":"s","last_seen_version":true}`), &p); err == nil {
		t.Error("expected error for boolean token")
	}
}

func TestHasPlanEdits(t *testing.T) {
	status := StatusDone
	p := UpdatePayload{Session: "s", Tasks: []TaskStatusPatch{{ID: 1, Status: &status}}}
	if p.HasPlanEdits() {
		t.Error("status-only payload should not count as a plan edit")
	}
	p.AddTasks = []AddTaskInput{{Title: "x"}}
	if !p.HasPlanEdits() {
		t.Error("add_tasks should count as a plan edit")
	}
}

func TestNextTaskID(t *testing.T) {
	s := testState(nil, nil)
	if got := s.NextTaskID(); got != 1 {
		t.Errorf("empty plan: expected 1, got %d", got)
	}
	s.Tasks = []Task{{ID: 3, Title: "a", Type: TaskFeature, Status: StatusTodo}}
	if got := s.NextTaskID(); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
}
