package main

import (
	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/update"
)

func newAlertCmd() *cobra.Command {
	var (
		sessionFlag string
		signalID    string
		closeIt     bool
		level       string
		sigType     string
		kind        string
		title       string
		message     string
		link        string
	)

	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Open or close an out-of-band signal on the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			id, err := a.resolveSession(sessionFlag)
			if err != nil {
				return err
			}
			runner := &update.Runner{Store: a.Store}

			if closeIt {
				res, err := runner.CloseAlert(cmd.Context(), id, signalID, a.Cfg.LockTimeout())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}

			res, err := runner.OpenAlert(cmd.Context(), id, update.AlertInput{
				ID:      signalID,
				Type:    domain.SignalType(sigType),
				Kind:    kind,
				Level:   domain.SignalLevel(level),
				Title:   title,
				Message: message,
				Link:    link,
			}, a.Cfg.LockTimeout())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "session id (defaults to the current session)")
	cmd.Flags().StringVar(&signalID, "id", "", "signal id")
	cmd.Flags().BoolVar(&closeIt, "close", false, "close the signal instead of opening one")
	cmd.Flags().StringVar(&level, "level", "", "severity: blocker, high, or info (default info)")
	cmd.Flags().StringVar(&sigType, "type", "", "origin: ci, lint, bench, system, or other (default other)")
	cmd.Flags().StringVar(&kind, "kind", "", "free-form classifier, e.g. build or flaky_test")
	cmd.Flags().StringVar(&title, "title", "", "short title (required to open)")
	cmd.Flags().StringVar(&message, "message", "", "what happened (required to open)")
	cmd.Flags().StringVar(&link, "link", "", "optional URL with more detail")
	cmd.MarkFlagRequired("id")
	return cmd
}
