package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/session"
	"github.com/jaakkos/planloop/internal/status"
)

func newStatusCmd() *cobra.Command {
	var (
		sessionFlag string
		asJSON      bool
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the session wants done now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			id, err := a.resolveSession(sessionFlag)
			if err != nil {
				return err
			}

			emit := func() error {
				report, err := status.Build(a.Store, a.Cfg, id)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), report)
				}
				renderStatus(cmd.OutOrStdout(), report)
				return nil
			}

			if err := emit(); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchStatus(cmd.Context(), a.Store.Dir(id), emit)
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "session id (defaults to the current session)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full status payload as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and re-emit when the session state changes")
	return cmd
}

// watchStatus re-emits on every state.json change. fsnotify watches the
// session directory because the atomic rename replaces the file inode;
// when the watcher cannot be set up it degrades to polling.
func watchStatus(ctx context.Context, sessionDir string, emit func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return pollStatus(ctx, emit)
	}
	defer watcher.Close()
	if err := watcher.Add(sessionDir); err != nil {
		return pollStatus(ctx, emit)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != session.StateFileName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Settle window for the rename pair.
			time.Sleep(50 * time.Millisecond)
			if err := emit(); err != nil {
				fmt.Fprintf(os.Stderr, "watch: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		}
	}
}

func pollStatus(ctx context.Context, emit func() error) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := emit(); err != nil {
				fmt.Fprintf(os.Stderr, "watch: %v\n", err)
			}
		}
	}
}

func nowColor(reason domain.NowReason) *color.Color {
	switch reason {
	case domain.ReasonCIBlocker, domain.ReasonDeadlocked, domain.ReasonEscalated:
		return color.New(color.FgRed, color.Bold)
	case domain.ReasonWaitingOnLock:
		return color.New(color.FgYellow)
	case domain.ReasonCompleted:
		return color.New(color.FgGreen, color.Bold)
	default:
		return color.New(color.FgCyan)
	}
}

func statusColor(s domain.TaskStatus) *color.Color {
	switch s {
	case domain.StatusDone:
		return color.New(color.FgGreen)
	case domain.StatusInProgress:
		return color.New(color.FgCyan)
	case domain.StatusBlocked, domain.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

func renderStatus(w io.Writer, report *status.Report) {
	bold := color.New(color.Bold)

	bold.Fprintf(w, "Session %s (v%d)\n", report.Session, report.Version)
	fmt.Fprint(w, "Now: ")
	nc := nowColor(report.Now.Reason)
	switch {
	case report.Now.TaskID != 0:
		nc.Fprintf(w, "%s #%d\n", report.Now.Reason, report.Now.TaskID)
	case report.Now.SignalID != "":
		nc.Fprintf(w, "%s (%s)\n", report.Now.Reason, report.Now.SignalID)
	default:
		nc.Fprintf(w, "%s\n", report.Now.Reason)
	}

	if len(report.Tasks) > 0 {
		bold.Fprintln(w, "\nTasks")
		for _, t := range report.Tasks {
			fmt.Fprintf(w, "  #%-3d ", t.ID)
			statusColor(t.Status).Fprintf(w, "%-12s", t.Status)
			fmt.Fprintf(w, " [%s] %s\n", t.Type, t.Title)
		}
	}

	open := 0
	for _, sig := range report.Signals {
		if sig.Open {
			open++
		}
	}
	if open > 0 {
		bold.Fprintln(w, "\nOpen signals")
		for _, sig := range report.Signals {
			if !sig.Open {
				continue
			}
			lc := color.New(color.FgYellow)
			if sig.Level == domain.LevelBlocker {
				lc = color.New(color.FgRed, color.Bold)
			}
			lc.Fprintf(w, "  [%s]", sig.Level)
			fmt.Fprintf(w, " %s: %s\n", sig.Title, sig.Message)
		}
	}

	if report.LockInfo.Locked {
		fmt.Fprint(w, "\nLock: ")
		holder := "unknown"
		op := "?"
		if report.LockInfo.Info != nil {
			holder = report.LockInfo.Info.HeldBy
			op = report.LockInfo.Info.Operation
		}
		color.New(color.FgYellow).Fprintf(w, "held by %s (%s)\n", holder, op)
	}
	if n := len(report.LockQueue.Pending); n > 0 {
		fmt.Fprintf(w, "Queue: %d waiting", n)
		if report.LockQueue.Position != nil {
			fmt.Fprintf(w, " (you are #%d)", *report.LockQueue.Position)
		}
		fmt.Fprintln(w)
	}
}
