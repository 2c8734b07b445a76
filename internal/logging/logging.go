// Package logging writes the per-session append-only text log and the
// structured JSONL event log. Both live under <session>/logs/ and are
// diagnostic-only: nothing in the correctness path reads them back.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const (
	logsDirName   = "logs"
	logFileName   = "planloop.log"
	eventFileName = "planloop.jsonl"
)

// SessionLog appends human-readable events to <session>/logs/planloop.log.
type SessionLog struct {
	logger *log.Logger
	file   *os.File
}

// OpenSessionLog opens (creating if needed) the session's text log.
func OpenSessionLog(sessionDir string) (*SessionLog, error) {
	dir := filepath.Join(sessionDir, logsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &SessionLog{
		logger: log.New(f, "", log.LstdFlags|log.LUTC),
		file:   f,
	}, nil
}

// Printf logs an informational event.
func (l *SessionLog) Printf(format string, args ...any) {
	l.logger.Printf("[INFO] "+format, args...)
}

// Warnf logs a warning event.
func (l *SessionLog) Warnf(format string, args ...any) {
	l.logger.Printf("[WARNING] "+format, args...)
}

// Close releases the underlying file.
func (l *SessionLog) Close() error {
	return l.file.Close()
}

// LogEvent opens the session log, writes one line, and closes it again.
// Convenient for short-lived CLI invocations where holding a handle open
// buys nothing.
func LogEvent(sessionDir, format string, args ...any) {
	l, err := OpenSessionLog(sessionDir)
	if err != nil {
		return
	}
	defer l.Close()
	l.Printf(format, args...)
}

// WarnEvent is LogEvent at warning level.
func WarnEvent(sessionDir, format string, args ...any) {
	l, err := OpenSessionLog(sessionDir)
	if err != nil {
		return
	}
	defer l.Close()
	l.Warnf(format, args...)
}

// Tail returns up to limit trailing lines of the session text log. A missing
// log yields an empty slice.
func Tail(sessionDir string, limit int) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, logsDirName, logFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}
