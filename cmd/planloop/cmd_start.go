package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var (
		name        string
		title       string
		projectRoot string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create a new session and make it current",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if title == "" {
				title = name
			}
			if projectRoot == "" {
				if projectRoot, err = os.Getwd(); err != nil {
					return err
				}
			}

			state, err := a.Store.Create(name, title, projectRoot)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"session": state.Session,
				"now":     state.Now,
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "short session name, used in the session id slug")
	cmd.Flags().StringVar(&title, "title", "", "human-readable title (defaults to the name)")
	cmd.Flags().StringVar(&projectRoot, "project-root", "", "project directory the session works on (defaults to cwd)")
	cmd.MarkFlagRequired("name")
	return cmd
}
