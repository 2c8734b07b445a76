package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/selftest"
)

func newSelftestCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the built-in agent workflow scenarios in a throwaway home",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := selftest.Run()

			var failure *selftest.Failure
			if err != nil && !errors.As(err, &failure) {
				return err
			}

			verdict := "ok"
			if failure != nil {
				verdict = "failed"
			}
			if asJSON {
				if perr := printJSON(cmd.OutOrStdout(), map[string]any{
					"status":    verdict,
					"scenarios": results,
				}); perr != nil {
					return perr
				}
			} else {
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-7s %s\n", r.Name, r.Status, r.Detail)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "self-test: %s\n", verdict)
			}

			if failure != nil {
				return failure
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit results as JSON")
	return cmd
}
