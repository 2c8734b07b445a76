// Package mcpserver exposes the coordinator to MCP clients over stdio:
// planloop_status, planloop_update, and planloop_alert are thin adapters
// over the same pipelines the CLI uses.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/session"
	"github.com/jaakkos/planloop/internal/status"
	"github.com/jaakkos/planloop/internal/update"
)

// Version is stamped by the build; reported in the MCP handshake.
var Version = "dev"

// Server wires the planloop tools into an MCP stdio server.
type Server struct {
	homeDir string
	store   *session.Store
	cfg     *home.Config
	runner  *update.Runner
	logger  *log.Logger
	mcp     *server.MCPServer
}

// New builds the server against an initialized home directory.
func New(homeDir string, logger *log.Logger) (*Server, error) {
	cfg, err := home.LoadConfig(homeDir)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(homeDir)

	s := &Server{
		homeDir: homeDir,
		store:   store,
		cfg:     cfg,
		runner:  &update.Runner{Store: store},
		logger:  logger,
	}
	s.mcp = server.NewMCPServer(
		"planloop",
		Version,
		server.WithInstructions(home.AgentInstructions()),
	)
	s.registerStatus()
	s.registerUpdate()
	s.registerAlert()
	return s, nil
}

// Serve runs the stdio transport until the context is cancelled or the
// client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Printf("MCP stdio ready (home %s)", s.homeDir)
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// resolveSession applies the flag → env → pointer resolution order.
func (s *Server) resolveSession(requested string) (string, error) {
	id, err := home.ResolveSession(s.homeDir, requested)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no session given and no current session set")
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) registerStatus() {
	s.mcp.AddTool(
		mcp.NewTool("planloop_status",
			mcp.WithDescription("Read the current session status: the now pointer, tasks, signals, lock and queue state, and agent instructions."),
			mcp.WithString("session", mcp.Description("Session id (defaults to the current session)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			requested, _ := args["session"].(string)
			id, err := s.resolveSession(requested)
			if err != nil {
				return nil, err
			}
			report, err := status.Build(s.store, s.cfg, id)
			if err != nil {
				return nil, err
			}
			s.logger.Printf("status served for %s", id)
			return jsonResult(report)
		},
	)
}

func (s *Server) registerUpdate() {
	s.mcp.AddTool(
		mcp.NewTool("planloop_update",
			mcp.WithDescription("Apply an update payload to the session plan: status patches, task additions and edits, notes, artifacts, final summary."),
			mcp.WithString("payload", mcp.Required(), mcp.Description("Update payload as a JSON object string")),
			mcp.WithString("session", mcp.Description("Session id (defaults to the payload's session, then the current session)")),
			mcp.WithBoolean("dry_run", mcp.Description("Preview the diff without persisting")),
			mcp.WithBoolean("no_plan_edit", mcp.Description("Reject structural plan changes; allow status patches only")),
			mcp.WithBoolean("strict", mcp.Description("Reject unknown payload fields")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			payload, _ := args["payload"].(string)
			if payload == "" {
				return nil, fmt.Errorf("payload is required")
			}
			requested, _ := args["session"].(string)
			id, err := home.ResolveSession(s.homeDir, requested)
			if err != nil {
				return nil, err
			}

			opts := update.Options{
				DryRun:      s.cfg.SafeModes.Update.DryRun,
				NoPlanEdit:  s.cfg.SafeModes.Update.NoPlanEdit,
				Strict:      s.cfg.SafeModes.Update.Strict,
				LockTimeout: s.cfg.LockTimeout(),
			}
			if v, ok := args["dry_run"].(bool); ok {
				opts.DryRun = v
			}
			if v, ok := args["no_plan_edit"].(bool); ok {
				opts.NoPlanEdit = v
			}
			if v, ok := args["strict"].(bool); ok {
				opts.Strict = v
			}

			res, err := s.runner.Run(ctx, id, []byte(payload), opts)
			if err != nil {
				return nil, err
			}
			s.logger.Printf("update applied to %s (v%d)", res.Session, res.Version)
			return jsonResult(res)
		},
	)
}

func (s *Server) registerAlert() {
	s.mcp.AddTool(
		mcp.NewTool("planloop_alert",
			mcp.WithDescription("Open or close an out-of-band signal on the session. Opening a blocker preempts task scheduling."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Signal id")),
			mcp.WithString("session", mcp.Description("Session id (defaults to the current session)")),
			mcp.WithBoolean("close", mcp.Description("Close the signal instead of opening one")),
			mcp.WithString("level", mcp.Description("Severity: blocker, high, or info (default info)")),
			mcp.WithString("type", mcp.Description("Origin: ci, lint, bench, system, or other (default other)")),
			mcp.WithString("kind", mcp.Description("Free-form classifier, e.g. build or flaky_test (required to open)")),
			mcp.WithString("title", mcp.Description("Short human-readable title (required to open)")),
			mcp.WithString("message", mcp.Description("What happened (required to open)")),
			mcp.WithString("link", mcp.Description("Optional URL with more detail")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			signalID, _ := args["id"].(string)
			requested, _ := args["session"].(string)
			id, err := s.resolveSession(requested)
			if err != nil {
				return nil, err
			}

			if closeIt, _ := args["close"].(bool); closeIt {
				res, err := s.runner.CloseAlert(ctx, id, signalID, s.cfg.LockTimeout())
				if err != nil {
					return nil, err
				}
				s.logger.Printf("signal %s closed on %s", signalID, id)
				return jsonResult(res)
			}

			level, _ := args["level"].(string)
			sigType, _ := args["type"].(string)
			kind, _ := args["kind"].(string)
			title, _ := args["title"].(string)
			message, _ := args["message"].(string)
			link, _ := args["link"].(string)

			res, err := s.runner.OpenAlert(ctx, id, update.AlertInput{
				ID:      signalID,
				Type:    domain.SignalType(sigType),
				Kind:    kind,
				Level:   domain.SignalLevel(level),
				Title:   title,
				Message: message,
				Link:    link,
			}, s.cfg.LockTimeout())
			if err != nil {
				return nil, err
			}
			s.logger.Printf("signal %s opened on %s", signalID, id)
			return jsonResult(res)
		},
	)
}
