package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/home"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect the session registry and the current-session pointer",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			entries, err := a.Store.LoadRegistry()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"sessions": entries})
		},
	}

	info := &cobra.Command{
		Use:   "info [id]",
		Short: "Show one session's registry entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			requested := ""
			if len(args) == 1 {
				requested = args[0]
			}
			id, err := a.resolveSession(requested)
			if err != nil {
				return err
			}
			summary, err := a.Store.FindSummary(id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}

	current := &cobra.Command{
		Use:   "current [id]",
		Short: "Show or set the current-session pointer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				// Refuse to point at a session that does not exist.
				if _, err := a.Store.FindSummary(args[0]); err != nil {
					return err
				}
				if err := home.SetCurrentSession(a.HomeDir, args[0]); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"current": args[0]})
			}
			id, err := home.CurrentSession(a.HomeDir)
			if err != nil {
				return err
			}
			if id == "" {
				return fmt.Errorf("no current session set")
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"current": id})
		},
	}

	cmd.AddCommand(list, info, current)
	return cmd
}
