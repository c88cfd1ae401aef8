// Package mcp exposes gateway management as MCP tools over stdio, so an
// agent can start, inspect, and stop transport bridges through the same
// protocol it already speaks.
package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/gateward/internal/audit"
	"github.com/ppiankov/gateward/internal/denylist"
	"github.com/ppiankov/gateward/internal/gateway"
)

// Config holds MCP server configuration.
type Config struct {
	BridgeBinary string
	DenylistPath string
	AuditLogPath string
	Grace        time.Duration
}

// Server wraps the MCP SDK server around a gateway manager.
type Server struct {
	mcpServer *mcpsdk.Server
	manager   *gateway.Manager
	auditLog  *audit.Log
}

// New creates an MCP server with a loaded denylist and, if configured, a
// persistent hash-chained audit log behind the in-memory trail.
func New(cfg Config) (*Server, error) {
	dl, err := denylist.Load(cfg.DenylistPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load denylist: %w", err)
	}

	var (
		auditLog *audit.Log
		trail    *audit.Trail
	)
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		trail = audit.NewTrail(audit.WithSink(auditLog))
	} else {
		trail = audit.NewTrail()
	}

	s := &Server{
		manager: gateway.New(gateway.Config{
			BridgeBinary: cfg.BridgeBinary,
			Grace:        cfg.Grace,
			Denylist:     dl,
			Trail:        trail,
		}),
		auditLog: auditLog,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "gateward",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Manager exposes the gateway manager for hot-reload wiring and shutdown.
func (s *Server) Manager() *gateway.Manager {
	return s.manager
}

// Close stops every gateway and closes the audit log if configured.
func (s *Server) Close() error {
	s.manager.Cleanup()
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

// registerTools adds all gateward tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateward_start_sse",
		Description: "Start a gateway exposing a local stdio MCP command over SSE. Denylisted commands return an error with the reason.",
	}, s.handleStartSSE)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateward_start_stdio",
		Description: "Start a gateway exposing a remote SSE MCP server over local stdio.",
	}, s.handleStartStdio)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateward_start_http",
		Description: "Start a gateway exposing a local stdio MCP command over streamable HTTP.",
	}, s.handleStartHTTP)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateward_stop",
		Description: "Stop a running gateway by id. Escalates SIGTERM to SIGKILL after the grace period.",
	}, s.handleStop)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateward_list",
		Description: "List all registered gateways with current liveness.",
	}, s.handleList)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateward_audit",
		Description: "Return the audit trail of gateway lifecycle actions, newest last.",
	}, s.handleAudit)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateward_cleanup",
		Description: "Stop every registered gateway. Safe to call repeatedly.",
	}, s.handleCleanup)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "gateward_estimate_cost",
		Description: "Estimate input tokens and USD cost for a chat completion without calling the upstream.",
	}, s.handleEstimateCost)
}
