package logging

import (
	"strings"
	"testing"
)

func TestSessionLog_AppendAndTail(t *testing.T) {
	dir := t.TempDir()
	LogEvent(dir, "first %d", 1)
	WarnEvent(dir, "second")
	LogEvent(dir, "third")

	lines, err := Tail(dir, 2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[WARNING] second") {
		t.Errorf("unexpected line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "[INFO] third") {
		t.Errorf("unexpected line: %q", lines[1])
	}
}

func TestTail_MissingLog(t *testing.T) {
	lines, err := Tail(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected no lines, got %v", lines)
	}
}

func TestAppendLockEvent_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	wait := 12.5
	if err := AppendLockEvent(dir, LockEvent{Event: EventLockAcquired, Operation: "update", LockEntryID: "e1", WaitMs: &wait}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := AppendLockEvent(dir, LockEvent{Event: EventLockReleased, Operation: "update", LockEntryID: "e1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := ReadLockEvents(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != EventLockAcquired || events[0].WaitMs == nil || *events[0].WaitMs != 12.5 {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[0].TraceID == "" || events[0].Timestamp == "" {
		t.Error("expected trace id and timestamp to be filled in")
	}
	if events[0].TraceID != events[1].TraceID {
		t.Error("expected one trace id per process")
	}
}
