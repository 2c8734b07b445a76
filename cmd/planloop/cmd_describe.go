package main

import (
	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/describe"
)

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the JSON schemas, enums, and error codes agents program against",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), describe.Payload())
		},
	}
}
