// Package lock serializes session mutations across processes with a
// filesystem mutex: an exclusive-create sentinel file fronted by a FIFO
// queue of per-waiter files. Fairness comes from checking head-of-queue
// before ever racing on the sentinel; liveness comes from stale-entry
// pruning and queue-stall escalation.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/planloop/internal/deadlock"
	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/logging"
	"github.com/jaakkos/planloop/internal/session"
)

const (
	// SentinelFile marks the lock as held while it exists.
	SentinelFile = ".lock"
	// InfoFile is the JSON sidecar describing the current holder.
	InfoFile = ".lock_info"
	// QueueDirName holds one JSON file per waiter.
	QueueDirName = ".lock_queue"

	// DefaultTimeout bounds both the wait and the stale-entry age.
	DefaultTimeout = 30 * time.Second
	// SleepInterval is the polling period; the only blocking point.
	SleepInterval = 100 * time.Millisecond

	// QueueStallThreshold is how many scans the same foreign head may
	// persist before a queue_stall blocker is emitted.
	QueueStallThreshold = 5
	// QueueStallSignalID is the idempotent id of that blocker.
	QueueStallSignalID = "queue_stall"
)

// ErrTimeout is wrapped by every acquisition timeout.
var ErrTimeout = errors.New("lock acquisition timed out")

// TimeoutError carries the identity of whoever held the lock when the
// waiter gave up.
type TimeoutError struct {
	Holder    string
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for lock held by %s (operation %s)", e.Holder, e.Operation)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Info mirrors the .lock_info sidecar.
type Info struct {
	HeldBy    string  `json:"held_by"`
	Since     float64 `json:"since"`
	Operation string  `json:"operation"`
}

// Status is the read-side view of the sentinel.
type Status struct {
	Locked bool  `json:"locked"`
	Info   *Info `json:"info"`
}

// QueueEntry is one waiter's position in the FIFO queue.
type QueueEntry struct {
	ID          string  `json:"id"`
	Agent       string  `json:"agent"`
	Operation   string  `json:"operation"`
	RequestedAt float64 `json:"requested_at"`
}

// QueueStatus is the queue view returned to status callers.
type QueueStatus struct {
	Pending  []QueueEntry `json:"pending"`
	Position *int         `json:"position"`
}

func sentinelPath(sessionDir string) string { return filepath.Join(sessionDir, SentinelFile) }
func infoPath(sessionDir string) string     { return filepath.Join(sessionDir, InfoFile) }
func queueDir(sessionDir string) string     { return filepath.Join(sessionDir, QueueDirName) }

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// GetStatus reports whether the lock is held and by whom. A sentinel without
// a readable sidecar still counts as locked.
func GetStatus(sessionDir string) Status {
	if _, err := os.Stat(sentinelPath(sessionDir)); err != nil {
		return Status{Locked: false}
	}
	return Status{Locked: true, Info: readInfo(sessionDir)}
}

func readInfo(sessionDir string) *Info {
	data, err := os.ReadFile(infoPath(sessionDir))
	if err != nil {
		return nil
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}

func writeQueueEntry(sessionDir string, entry QueueEntry) error {
	dir := queueDir(sessionDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal queue entry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, entry.ID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("write queue entry: %w", err)
	}
	logging.LogEvent(sessionDir, "queue entry %s registered for %s", entry.ID, entry.Operation)
	return nil
}

func removeQueueEntry(sessionDir, entryID string, logEvent bool) {
	path := filepath.Join(queueDir(sessionDir), entryID+".json")
	if err := os.Remove(path); err != nil {
		return
	}
	if logEvent {
		logging.LogEvent(sessionDir, "queue entry %s removed", entryID)
	}
}

// loadQueueEntries lists the queue sorted FIFO (requested_at, id tiebreak),
// pruning entries older than maxAge and deleting unparseable files.
func loadQueueEntries(sessionDir string, maxAge time.Duration) []QueueEntry {
	dir := queueDir(sessionDir)
	names, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var entries []QueueEntry
	for _, de := range names {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry QueueEntry
		if err := json.Unmarshal(data, &entry); err != nil || entry.ID == "" {
			os.Remove(path)
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RequestedAt != entries[j].RequestedAt {
			return entries[i].RequestedAt < entries[j].RequestedAt
		}
		return entries[i].ID < entries[j].ID
	})

	now := unixSeconds(time.Now())
	kept := entries[:0]
	for _, entry := range entries {
		if now-entry.RequestedAt > maxAge.Seconds() {
			removeQueueEntry(sessionDir, entry.ID, true)
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

// GetQueueStatus loads the queue (pruning stale entries) and resolves the
// viewer's 1-based position, nil when absent.
func GetQueueStatus(sessionDir, viewerAgent string, maxAge time.Duration) QueueStatus {
	if maxAge <= 0 {
		maxAge = DefaultTimeout
	}
	entries := loadQueueEntries(sessionDir, maxAge)
	status := QueueStatus{Pending: entries}
	if viewerAgent != "" {
		for i, entry := range entries {
			if entry.Agent == viewerAgent {
				pos := i + 1
				status.Position = &pos
				break
			}
		}
	}
	return status
}

// Acquire takes the session lock for one operation and returns a release
// function. The protocol: enqueue, then loop scanning the pruned queue;
// only the head attempts the exclusive sentinel create. The release
// function removes the sentinel, the sidecar, and the caller's queue entry,
// and must be called on every exit path.
func Acquire(ctx context.Context, st *session.Store, sessionID, operation string, timeout time.Duration) (func(), error) {
	sessionDir := st.Dir(sessionID)
	start := time.Now()
	heldBy := fmt.Sprintf("pid:%d", os.Getpid())
	agent := home.AgentName()

	entry := QueueEntry{
		ID:          uuid.NewString(),
		Agent:       agent,
		Operation:   operation,
		RequestedAt: unixSeconds(start),
	}
	if err := writeQueueEntry(sessionDir, entry); err != nil {
		return nil, err
	}
	logging.AppendLockEvent(sessionDir, logging.LockEvent{
		Event:       logging.EventLockRequested,
		Operation:   operation,
		LockEntryID: entry.ID,
	})

	tracker, err := deadlock.LoadTracker(sessionDir)
	if err != nil {
		removeQueueEntry(sessionDir, entry.ID, false)
		return nil, err
	}

	maxAge := timeout
	if maxAge <= 0 {
		maxAge = DefaultTimeout
	}

	stallDetected := false
	stallHead := ""

	fail := func(err error) (func(), error) {
		removeQueueEntry(sessionDir, entry.ID, false)
		return nil, err
	}
	timedOut := func() error {
		holder := "unknown"
		if info := readInfo(sessionDir); info != nil {
			holder = info.HeldBy
		}
		logging.WarnEvent(sessionDir, "lock timeout for %s; held by %s", operation, holder)
		return &TimeoutError{Holder: holder, Operation: operation}
	}
	wait := func() error {
		if timeout == 0 {
			return timedOut()
		}
		if time.Since(start) > timeout {
			return timedOut()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(SleepInterval):
			return nil
		}
	}

	for {
		entries := loadQueueEntries(sessionDir, maxAge)
		var head *QueueEntry
		if len(entries) > 0 {
			head = &entries[0]
		}

		headAgent := ""
		if head != nil {
			headAgent = head.Agent
		}
		shouldTrack := head != nil && head.Agent != agent && len(entries) > 1
		if tracker.RegisterQueueHead(headAgent, shouldTrack, QueueStallThreshold) {
			stallDetected = true
			stallHead = headAgent
		}
		if err := tracker.Persist(sessionDir); err != nil {
			return fail(err)
		}

		if head == nil || head.ID != entry.ID {
			if err := wait(); err != nil {
				return fail(err)
			}
			continue
		}

		f, err := os.OpenFile(sentinelPath(sessionDir), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			break
		}
		if !os.IsExist(err) {
			return fail(fmt.Errorf("create lock sentinel: %w", err))
		}
		if err := wait(); err != nil {
			return fail(err)
		}
	}

	acquiredAt := time.Now()
	info := Info{HeldBy: heldBy, Since: unixSeconds(acquiredAt), Operation: operation}
	if data, err := json.Marshal(info); err == nil {
		os.WriteFile(infoPath(sessionDir), data, 0o644)
	}

	waitMs := float64(acquiredAt.Sub(start)) / float64(time.Millisecond)
	logging.LogEvent(sessionDir, "lock acquired for %s", operation)
	logging.AppendLockEvent(sessionDir, logging.LockEvent{
		Event:       logging.EventLockAcquired,
		Operation:   operation,
		LockEntryID: entry.ID,
		WaitMs:      &waitMs,
	})

	if stallDetected {
		emitQueueStall(st, sessionID, stallHead)
	}

	release := func() {
		os.Remove(sentinelPath(sessionDir))
		os.Remove(infoPath(sessionDir))
		holdMs := float64(time.Since(acquiredAt)) / float64(time.Millisecond)
		logging.LogEvent(sessionDir, "lock released for %s", operation)
		logging.AppendLockEvent(sessionDir, logging.LockEvent{
			Event:       logging.EventLockReleased,
			Operation:   operation,
			LockEntryID: entry.ID,
			HoldMs:      &holdMs,
		})
		removeQueueEntry(sessionDir, entry.ID, true)
	}
	return release, nil
}

// emitQueueStall opens the synthetic system/queue_stall blocker and
// overrides now to waiting_on_lock. The caller already holds the lock, so
// this is a plain load/modify/save that cannot deadlock. Best effort: a
// stall we fail to record is still caught on the next scan.
func emitQueueStall(st *session.Store, sessionID, headAgent string) {
	state, err := st.Load(sessionID)
	if err != nil {
		return
	}
	if sig := state.Signal(QueueStallSignalID); sig != nil && sig.Open {
		return
	}
	head := headAgent
	if head == "" {
		head = "unknown"
	}
	err = state.OpenSignal(domain.Signal{
		ID:      QueueStallSignalID,
		Type:    domain.SignalSystem,
		Kind:    "queue_stall",
		Level:   domain.LevelBlocker,
		Open:    true,
		Title:   "Queue stall detected",
		Message: fmt.Sprintf("Agent %s held the lock queue for %d consecutive cycles.", head, QueueStallThreshold),
		Extra:   map[string]any{"queue_head": headAgent, "threshold": QueueStallThreshold},
	})
	if err != nil {
		return
	}
	state.Now = domain.Now{Reason: domain.ReasonWaitingOnLock, SignalID: QueueStallSignalID}
	_ = st.Save(state, "Queue stall detected")
}
