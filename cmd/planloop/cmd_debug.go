package main

import (
	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/deadlock"
	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/lock"
	"github.com/jaakkos/planloop/internal/logging"
)

const debugLogTailLimit = 10

func newDebugCmd() *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Dump a diagnostic snapshot of the session internals",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			id, err := a.resolveSession(sessionFlag)
			if err != nil {
				return err
			}
			dir := a.Store.Dir(id)

			snapshot := map[string]any{
				"home":       a.HomeDir,
				"session":    id,
				"dir":        dir,
				"agent":      home.AgentName(),
				"lock_info":  lock.GetStatus(dir),
				"lock_queue": lock.GetQueueStatus(dir, home.AgentName(), a.Cfg.LockTimeout()),
			}

			if state, err := a.Store.Load(id); err == nil {
				snapshot["state"] = map[string]any{
					"version":      state.Version,
					"now":          state.Now,
					"done":         state.Done,
					"task_count":   len(state.Tasks),
					"signal_count": len(state.Signals),
				}
			} else {
				snapshot["state_error"] = err.Error()
			}

			if tracker, err := deadlock.LoadTracker(dir); err == nil {
				snapshot["deadlock_tracker"] = tracker
			}
			if events, err := logging.ReadLockEvents(dir); err == nil {
				snapshot["lock_event_count"] = len(events)
			}
			if tail, err := logging.Tail(dir, debugLogTailLimit); err == nil {
				snapshot["log_tail"] = tail
			}

			return printJSON(cmd.OutOrStdout(), snapshot)
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "session id (defaults to the current session)")
	return cmd
}
