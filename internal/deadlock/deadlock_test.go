package deadlock

import (
	"testing"
	"time"

	"github.com/jaakkos/planloop/internal/domain"
)

func baseState() *domain.SessionState {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &domain.SessionState{
		SchemaVersion: domain.SchemaVersion,
		Version:       1,
		Session:       "s-20260101T000000Z-ab12",
		Name:          "s",
		Title:         "S",
		CreatedAt:     created,
		LastUpdatedAt: created.Add(time.Minute),
		ProjectRoot:   "/repo",
	}
	s.Now = s.ComputeNow()
	return s
}

func TestStateHash_IgnoresLastUpdatedAt(t *testing.T) {
	s := baseState()
	h1, err := StateHash(s)
	if err != nil {
		t.Fatal(err)
	}
	s.LastUpdatedAt = s.LastUpdatedAt.Add(time.Hour)
	h2, _ := StateHash(s)
	if h1 != h2 {
		t.Error("timestamp-only change should not alter the hash")
	}
	s.Version = 2
	h3, _ := StateHash(s)
	if h1 == h3 {
		t.Error("version bump should alter the hash")
	}
}

func TestCheck_CounterIncrementsAndResets(t *testing.T) {
	dir := t.TempDir()
	s := baseState()

	if err := Check(s, dir, 10); err != nil {
		t.Fatal(err)
	}
	tr, _ := LoadTracker(dir)
	if tr.NoProgressCounter != 0 {
		t.Errorf("first call stores hash and resets: got %d", tr.NoProgressCounter)
	}

	if err := Check(s, dir, 10); err != nil {
		t.Fatal(err)
	}
	tr, _ = LoadTracker(dir)
	if tr.NoProgressCounter != 1 {
		t.Errorf("unchanged hash should increment by exactly 1, got %d", tr.NoProgressCounter)
	}

	s.Version = 2
	if err := Check(s, dir, 10); err != nil {
		t.Fatal(err)
	}
	tr, _ = LoadTracker(dir)
	if tr.NoProgressCounter != 0 {
		t.Errorf("changed hash should reset to 0, got %d", tr.NoProgressCounter)
	}
}

func TestCheck_EscalatesAtThreshold(t *testing.T) {
	dir := t.TempDir()
	s := baseState()

	for i := 0; i < 4; i++ {
		s = baseState() // fresh snapshot each poll, as the CLI loads from disk
		if err := Check(s, dir, 3); err != nil {
			t.Fatal(err)
		}
	}

	if s.Now.Reason != domain.ReasonDeadlocked || s.Now.SignalID != SignalID {
		t.Fatalf("expected deadlocked override, got %+v", s.Now)
	}
	sig := s.Signal(SignalID)
	if sig == nil {
		t.Fatal("expected synthetic deadlock signal")
	}
	if sig.Kind != "deadlock_suspected" || sig.Level != domain.LevelBlocker || !sig.Open {
		t.Errorf("unexpected signal: %+v", sig)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("override reason must pass validation: %v", err)
	}

	// Idempotent on id across further polls.
	if err := Check(s, dir, 3); err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, sig := range s.Signals {
		if sig.ID == SignalID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one deadlock signal, got %d", count)
	}
}

func TestCheck_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s := baseState()
	for i := 0; i < 3; i++ {
		if err := Check(s, dir, 10); err != nil {
			t.Fatal(err)
		}
	}
	// New "process": tracker reloaded from disk continues the count.
	tr, err := LoadTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	if tr.NoProgressCounter != 2 {
		t.Errorf("expected persisted counter 2, got %d", tr.NoProgressCounter)
	}
}

func TestRegisterQueueHead(t *testing.T) {
	tr := &Tracker{}

	if tr.RegisterQueueHead("", true, 5) {
		t.Error("empty head should never trigger")
	}
	if tr.QueueStallCounter != 0 {
		t.Errorf("expected reset, got %d", tr.QueueStallCounter)
	}

	for i := 1; i < 5; i++ {
		if tr.RegisterQueueHead("agent-a", true, 5) {
			t.Fatalf("triggered early at scan %d", i)
		}
	}
	if !tr.RegisterQueueHead("agent-a", true, 5) {
		t.Error("expected trigger at threshold")
	}

	// A different head restarts the count.
	if tr.RegisterQueueHead("agent-b", true, 5) {
		t.Error("new head should restart counting")
	}
	if tr.QueueStallCounter != 1 {
		t.Errorf("expected counter 1 after head change, got %d", tr.QueueStallCounter)
	}

	// shouldTrack=false resets everything.
	tr.RegisterQueueHead("agent-b", false, 5)
	if tr.QueueHead != "" || tr.QueueStallCounter != 0 {
		t.Errorf("expected reset tracker, got %+v", tr)
	}
}
