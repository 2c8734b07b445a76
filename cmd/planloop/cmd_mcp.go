package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve status, update, and alert as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			homeDir, err := home.InitializeResolved()
			if err != nil {
				return err
			}
			// Stdout belongs to the MCP transport; everything else to stderr.
			logger := log.New(os.Stderr, "[planloop] ", log.LstdFlags)
			mcpserver.Version = Version

			srv, err := mcpserver.New(homeDir, logger)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context())
		},
	}
}
