package status

import (
	"context"
	"testing"
	"time"

	"github.com/jaakkos/planloop/internal/deadlock"
	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/lock"
	"github.com/jaakkos/planloop/internal/session"
)

func newReportFixture(t *testing.T) (*session.Store, *home.Config, string) {
	t.Helper()
	dir := t.TempDir()
	if err := home.Initialize(dir); err != nil {
		t.Fatal(err)
	}
	cfg, err := home.LoadConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	st := session.NewStore(dir)
	state, err := st.Create("Status", "Status report", "/repo")
	if err != nil {
		t.Fatal(err)
	}
	return st, cfg, state.Session
}

func TestBuild_FullReport(t *testing.T) {
	st, cfg, id := newReportFixture(t)

	report, err := Build(st, cfg, id)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Session != id || report.Version != 1 {
		t.Errorf("unexpected identity: %+v", report)
	}
	if report.Now.Reason != domain.ReasonIdle {
		t.Errorf("expected idle now, got %+v", report.Now)
	}
	if report.LockInfo.Locked {
		t.Error("fresh session should not be locked")
	}
	if report.SafeModeDefaults.Strict || report.SafeModeDefaults.DryRun {
		t.Errorf("unexpected safe mode defaults: %+v", report.SafeModeDefaults)
	}
	if report.AgentInstructions == "" {
		t.Error("expected embedded agent instructions")
	}
}

func TestBuild_ReflectsHeldLock(t *testing.T) {
	st, cfg, id := newReportFixture(t)

	release, err := lock.Acquire(context.Background(), st, id, "update", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	report, err := Build(st, cfg, id)
	if err != nil {
		t.Fatal(err)
	}
	if !report.LockInfo.Locked || report.LockInfo.Info == nil {
		t.Errorf("expected lock to be visible, got %+v", report.LockInfo)
	}
	if report.LockInfo.Info.Operation != "update" {
		t.Errorf("unexpected operation: %+v", report.LockInfo.Info)
	}
}

func TestBuild_DeadlockEscalationAfterStagnantPolls(t *testing.T) {
	st, cfg, id := newReportFixture(t)
	cfg.Deadlock.Threshold = 3

	var report *Report
	var err error
	for i := 0; i < cfg.Deadlock.Threshold+1; i++ {
		report, err = Build(st, cfg, id)
		if err != nil {
			t.Fatal(err)
		}
	}

	if report.Now.Reason != domain.ReasonDeadlocked {
		t.Fatalf("expected deadlocked now after stagnant polls, got %+v", report.Now)
	}
	found := false
	for _, sig := range report.Signals {
		if sig.ID == deadlock.SignalID && sig.Open && sig.Kind == "deadlock_suspected" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected synthetic deadlock signal, got %+v", report.Signals)
	}

	// The read path must never rewrite state.json.
	state, err := st.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	if state.Signal(deadlock.SignalID) != nil || state.Version != 1 {
		t.Errorf("status reads must not persist escalation, got %+v", state)
	}
}
