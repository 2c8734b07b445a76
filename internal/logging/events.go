package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock lifecycle event names recorded in planloop.jsonl.
const (
	EventLockRequested = "lock_requested"
	EventLockAcquired  = "lock_acquired"
	EventLockReleased  = "lock_released"
)

var (
	traceOnce sync.Once
	traceID   string
)

// TraceID returns a stable per-process trace id correlating all lock events
// of one CLI invocation.
func TraceID() string {
	traceOnce.Do(func() {
		traceID = uuid.NewString()
	})
	return traceID
}

// LockEvent is one structured entry in the JSONL event log.
type LockEvent struct {
	Timestamp   string   `json:"timestamp"`
	Event       string   `json:"event"`
	TraceID     string   `json:"trace_id"`
	Operation   string   `json:"operation"`
	LockEntryID string   `json:"lock_entry_id"`
	WaitMs      *float64 `json:"wait_ms,omitempty"`
	HoldMs      *float64 `json:"hold_ms,omitempty"`
}

// AppendLockEvent appends one event line to <session>/logs/planloop.jsonl.
// Timestamp and trace id are filled in when empty.
func AppendLockEvent(sessionDir string, ev LockEvent) error {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.TraceID == "" {
		ev.TraceID = TraceID()
	}

	dir := filepath.Join(sessionDir, logsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, eventFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal lock event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append lock event: %w", err)
	}
	return nil
}

// ReadLockEvents parses the JSONL event log, skipping malformed lines.
// Used by the debug command and tests.
func ReadLockEvents(sessionDir string) ([]LockEvent, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, logsDirName, eventFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read event log: %w", err)
	}
	var events []LockEvent
	for _, line := range splitLines(data) {
		var ev LockEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
