package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/update"
)

func newUpdateCmd() *cobra.Command {
	var (
		sessionFlag string
		file        string
		dryRun      bool
		noPlanEdit  bool
		strict      bool
		allowPlan   bool
		allowExtra  bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply an update payload from stdin or a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			var raw []byte
			if file != "" {
				if raw, err = os.ReadFile(file); err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
			} else {
				if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read payload from stdin: %w", err)
				}
			}

			// Config sets the defaults; restrictive flags add on top and
			// the allow-* flags lift a config default for this call.
			defaults := a.Cfg.SafeModes.Update
			opts := update.Options{
				DryRun:      defaults.DryRun || dryRun,
				NoPlanEdit:  (defaults.NoPlanEdit || noPlanEdit) && !allowPlan,
				Strict:      (defaults.Strict || strict) && !allowExtra,
				LockTimeout: a.Cfg.LockTimeout(),
			}

			// The payload's session field may stand in for the flag.
			sessionID, err := a.resolveSessionForPayload(sessionFlag, raw)
			if err != nil {
				return err
			}

			res, err := (&update.Runner{Store: a.Store}).Run(cmd.Context(), sessionID, raw, opts)
			if err != nil {
				return err
			}
			if res.Status == "dry_run" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"dry_run": res.Diff})
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "session id (defaults to the payload's session, then the current session)")
	cmd.Flags().StringVar(&file, "file", "", "read the payload from this file instead of stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the diff without persisting")
	cmd.Flags().BoolVar(&noPlanEdit, "no-plan-edit", false, "reject structural plan changes for this call")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject unknown payload fields for this call")
	cmd.Flags().BoolVar(&allowPlan, "allow-plan-edit", false, "lift a configured no_plan_edit default for this call")
	cmd.Flags().BoolVar(&allowExtra, "allow-extra-fields", false, "lift a configured strict default for this call")
	return cmd
}

// resolveSessionForPayload prefers the flag and env/pointer chain but lets a
// payload that names its own session stand alone.
func (a *app) resolveSessionForPayload(flagValue string, raw []byte) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if payload, _, err := update.DecodePayload(raw); err == nil && payload.Session != "" {
		return payload.Session, nil
	}
	return a.resolveSession("")
}
