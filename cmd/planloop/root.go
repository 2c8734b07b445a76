package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/session"
)

// Version is set by -ldflags at build time.
var Version = "dev"

// app bundles the resolved home with its config and session store. Every
// command builds one in its RunE, after flag parsing.
type app struct {
	HomeDir string
	Cfg     *home.Config
	Store   *session.Store
}

func newApp() (*app, error) {
	homeDir, err := home.InitializeResolved()
	if err != nil {
		return nil, err
	}
	cfg, err := home.LoadConfig(homeDir)
	if err != nil {
		return nil, err
	}
	return &app{
		HomeDir: homeDir,
		Cfg:     cfg,
		Store:   session.NewStore(homeDir),
	}, nil
}

// resolveSession applies the flag → PLANLOOP_SESSION → pointer order and
// fails when nothing resolves.
func (a *app) resolveSession(flagValue string) (string, error) {
	id, err := home.ResolveSession(a.HomeDir, flagValue)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no session given: pass --session, set %s, or create one with planloop start", home.EnvSession)
	}
	return id, nil
}

// printJSON writes one indented JSON document to stdout. Structured output
// only; human text goes through the status renderer or stderr.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "planloop",
		Short:         "Filesystem-backed workflow coordinator for coding agents",
		Long:          "planloop persists a session plan of tasks and signals, tells each agent\nwhat to do now, and serializes concurrent updates through a filesystem lock.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newUpdateCmd(),
		newAlertCmd(),
		newDescribeCmd(),
		newSelftestCmd(),
		newSessionsCmd(),
		newDebugCmd(),
		newMCPCmd(),
	)
	return root
}
