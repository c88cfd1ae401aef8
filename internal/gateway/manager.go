// Package gateway manages bridge processes that translate MCP transports:
// a local stdio server exposed over SSE or streamable HTTP, or a remote
// SSE server exposed over stdio.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ppiankov/gateward/internal/approval"
	"github.com/ppiankov/gateward/internal/audit"
	"github.com/ppiankov/gateward/internal/denylist"
	"github.com/ppiankov/gateward/internal/launcher"
	"github.com/ppiankov/gateward/internal/registry"
)

// ErrApprovalDenied is returned when the operator declines a gated start.
var ErrApprovalDenied = errors.New("approval denied")

// SecurityError is returned when a bridge command matches the denylist.
// The command is never launched and nothing is registered.
type SecurityError struct {
	Command string
	Reason  string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("command rejected: %s", e.Reason)
}

// defaultGrace is how long Stop waits after SIGTERM before escalating.
const defaultGrace = 10 * time.Second

// Config holds manager construction parameters.
type Config struct {
	// BridgeBinary is the gateway bridge executable. Defaults to
	// "supergateway".
	BridgeBinary string
	// Grace bounds the SIGTERM-to-SIGKILL escalation in Stop.
	Grace time.Duration
	// Launcher spawns bridge processes. Defaults to the OS launcher.
	Launcher launcher.Launcher
	// Approver gates starts that request approval. Defaults to Auto(true).
	Approver approval.Approver
	// Denylist validates bridge commands. Defaults to the built-in patterns.
	Denylist *denylist.Denylist
	// Trail receives audit events. Defaults to a fresh in-memory trail.
	Trail *audit.Trail
	// Detach starts bridges in their own session so they outlive the
	// manager process. Used by one-shot CLI starts.
	Detach bool
}

// Manager orchestrates launcher, registry, denylist, approval, and audit
// into the start/stop/list/cleanup surface.
type Manager struct {
	bridge   string
	grace    time.Duration
	launcher launcher.Launcher
	approver approval.Approver
	reg      *registry.Registry
	trail    *audit.Trail
	detach   bool

	mu     sync.Mutex // guards dl and lastID
	dl     *denylist.Denylist
	lastID int64
}

// New creates a Manager. All collaborators are injected through Config so
// tests can run without real bridge processes.
func New(cfg Config) *Manager {
	if cfg.BridgeBinary == "" {
		cfg.BridgeBinary = "supergateway"
	}
	if cfg.Grace == 0 {
		cfg.Grace = defaultGrace
	}
	if cfg.Launcher == nil {
		cfg.Launcher = launcher.OS{}
	}
	if cfg.Approver == nil {
		cfg.Approver = approval.Auto(true)
	}
	if cfg.Denylist == nil {
		cfg.Denylist = denylist.NewDefault()
	}
	if cfg.Trail == nil {
		cfg.Trail = audit.NewTrail()
	}

	return &Manager{
		bridge:   cfg.BridgeBinary,
		grace:    cfg.Grace,
		launcher: cfg.Launcher,
		approver: cfg.Approver,
		reg:      registry.New(),
		trail:    cfg.Trail,
		detach:   cfg.Detach,
		dl:       cfg.Denylist,
	}
}

// SSEOptions holds parameters for a stdio-to-SSE start.
type SSEOptions struct {
	Command         string
	Port            int
	RequireApproval bool
}

// StartStdioToSSE launches a bridge exposing a local stdio MCP command
// over SSE. The command is validated against the denylist first; a gated
// start blocks on the approver. A failed launch registers nothing.
func (m *Manager) StartStdioToSSE(ctx context.Context, opts SSEOptions) (registry.Descriptor, error) {
	const action = "start_stdio_to_sse_gateway"

	if err := m.validate(action, opts.Command); err != nil {
		return registry.Descriptor{}, err
	}
	if err := m.approve(ctx, action, opts.Command, opts.RequireApproval); err != nil {
		return registry.Descriptor{}, err
	}

	base := fmt.Sprintf("http://localhost:%d", opts.Port)
	args := []string{
		"--stdio", opts.Command,
		"--port", strconv.Itoa(opts.Port),
		"--baseUrl", base,
		"--ssePath", "/sse",
		"--messagePath", "/message",
		"--logLevel", "info",
	}

	h, err := m.launcher.Launch(launcher.Spec{Program: m.bridge, Args: args, Detach: m.detach})
	if err != nil {
		return registry.Descriptor{}, err
	}

	desc := registry.Descriptor{
		ID:         m.newID("sse"),
		Transport:  registry.StdioToSSE,
		PID:        h.PID(),
		Status:     registry.StatusRunning,
		Command:    opts.Command,
		Port:       opts.Port,
		SSEURL:     base + "/sse",
		MessageURL: base + "/message",
		StartedAt:  time.Now().UTC(),
	}
	if err := m.register(desc, h); err != nil {
		return registry.Descriptor{}, err
	}

	m.trail.Append(audit.Event{
		Action: action,
		Status: "started",
		Detail: map[string]any{
			"gateway_id": desc.ID,
			"command":    opts.Command,
			"port":       opts.Port,
			"pid":        desc.PID,
		},
	})
	return desc, nil
}

// StdioOptions holds parameters for an SSE-to-stdio start.
type StdioOptions struct {
	SSEURL          string
	Headers         map[string]string
	RequireApproval bool
}

// StartSSEToStdio launches a bridge exposing a remote SSE MCP server over
// local stdio. Remote URLs skip the command denylist; the approval gate
// still applies.
func (m *Manager) StartSSEToStdio(ctx context.Context, opts StdioOptions) (registry.Descriptor, error) {
	const action = "start_sse_to_stdio_gateway"

	if err := m.approve(ctx, action, opts.SSEURL, opts.RequireApproval); err != nil {
		return registry.Descriptor{}, err
	}

	args := []string{"--sse", opts.SSEURL}
	for k, v := range opts.Headers {
		args = append(args, "--header", fmt.Sprintf("%s: %s", k, v))
	}

	h, err := m.launcher.Launch(launcher.Spec{Program: m.bridge, Args: args, Detach: m.detach})
	if err != nil {
		return registry.Descriptor{}, err
	}

	desc := registry.Descriptor{
		ID:        m.newID("stdio"),
		Transport: registry.SSEToStdio,
		PID:       h.PID(),
		Status:    registry.StatusRunning,
		SSEURL:    opts.SSEURL,
		StartedAt: time.Now().UTC(),
	}
	if err := m.register(desc, h); err != nil {
		return registry.Descriptor{}, err
	}

	m.trail.Append(audit.Event{
		Action: action,
		Status: "started",
		Detail: map[string]any{
			"gateway_id": desc.ID,
			"sse_url":    opts.SSEURL,
			"pid":        desc.PID,
		},
	})
	return desc, nil
}

// HTTPOptions holds parameters for a stdio-to-streamable-HTTP start.
type HTTPOptions struct {
	Command         string
	Port            int
	Stateful        bool
	SessionTimeout  time.Duration
	RequireApproval bool
}

// StartStreamableHTTP launches a bridge exposing a local stdio MCP command
// over a single streamable HTTP endpoint.
func (m *Manager) StartStreamableHTTP(ctx context.Context, opts HTTPOptions) (registry.Descriptor, error) {
	const action = "start_streamable_http_gateway"

	if err := m.validate(action, opts.Command); err != nil {
		return registry.Descriptor{}, err
	}
	if err := m.approve(ctx, action, opts.Command, opts.RequireApproval); err != nil {
		return registry.Descriptor{}, err
	}

	base := fmt.Sprintf("http://localhost:%d", opts.Port)
	args := []string{
		"--stdio", opts.Command,
		"--outputTransport", "streamableHttp",
		"--port", strconv.Itoa(opts.Port),
		"--baseUrl", base,
		"--streamableHttpPath", "/mcp",
		"--logLevel", "info",
	}
	if opts.Stateful {
		args = append(args, "--stateful")
		if opts.SessionTimeout > 0 {
			args = append(args, "--sessionTimeout", strconv.FormatInt(opts.SessionTimeout.Milliseconds(), 10))
		}
	}

	h, err := m.launcher.Launch(launcher.Spec{Program: m.bridge, Args: args, Detach: m.detach})
	if err != nil {
		return registry.Descriptor{}, err
	}

	desc := registry.Descriptor{
		ID:        m.newID("http"),
		Transport: registry.StreamableHTTP,
		PID:       h.PID(),
		Status:    registry.StatusRunning,
		Command:   opts.Command,
		Port:      opts.Port,
		HTTPURL:   base + "/mcp",
		Stateful:  opts.Stateful,
		StartedAt: time.Now().UTC(),
	}
	if err := m.register(desc, h); err != nil {
		return registry.Descriptor{}, err
	}

	m.trail.Append(audit.Event{
		Action: action,
		Status: "started",
		Detail: map[string]any{
			"gateway_id": desc.ID,
			"command":    opts.Command,
			"port":       opts.Port,
			"stateful":   opts.Stateful,
			"pid":        desc.PID,
		},
	})
	return desc, nil
}

// StopResult confirms a successful stop.
type StopResult struct {
	ID     string `json:"gateway_id"`
	Status string `json:"status"`
}

// Stop terminates one gateway: SIGTERM, a bounded grace wait, then SIGKILL
// with an unconditional wait, and finally removal from the registry.
func (m *Manager) Stop(id string) (StopResult, error) {
	_, h, err := m.reg.Get(id)
	if err != nil {
		// Failed stops are audited too; an operator asking for an unknown
		// id is worth a trace line.
		m.trail.Append(audit.Event{
			Action: "stop_gateway",
			Status: "not_found",
			Detail: map[string]any{"gateway_id": id},
		})
		return StopResult{}, err
	}

	if h.Alive() {
		if err := h.Terminate(); err != nil {
			fmt.Fprintf(os.Stderr, "gateway: terminate %s: %v\n", id, err)
		}
		if !h.Wait(m.grace) {
			if err := h.Kill(); err != nil {
				fmt.Fprintf(os.Stderr, "gateway: kill %s: %v\n", id, err)
			}
			h.WaitDone()
		}
	}

	if err := m.reg.Remove(id); err != nil {
		return StopResult{}, err
	}

	m.trail.Append(audit.Event{
		Action: "stop_gateway",
		Status: "stopped",
		Detail: map[string]any{"gateway_id": id},
	})
	return StopResult{ID: id, Status: "stopped"}, nil
}

// List returns every registered gateway with liveness recomputed now.
func (m *Manager) List() []registry.Descriptor {
	return m.reg.List()
}

// AuditLog returns a defensive copy of the audit trail.
func (m *Manager) AuditLog() []audit.Event {
	return m.trail.Snapshot()
}

// Cleanup stops every registered gateway, best-effort. A failure on one id
// is logged and does not abort the rest. Safe to call repeatedly.
func (m *Manager) Cleanup() {
	for _, id := range m.reg.IDs() {
		if _, err := m.Stop(id); err != nil {
			fmt.Fprintf(os.Stderr, "gateway: cleanup %s: %v\n", id, err)
		}
	}
}

// ReloadDenylist swaps in a freshly loaded denylist (hot reload).
func (m *Manager) ReloadDenylist(dl *denylist.Denylist) {
	m.mu.Lock()
	m.dl = dl
	m.mu.Unlock()
}

func (m *Manager) validate(action, command string) error {
	m.mu.Lock()
	dl := m.dl
	m.mu.Unlock()

	blocked, reason := dl.Check(command)
	if !blocked {
		return nil
	}
	m.trail.Append(audit.Event{
		Action: action,
		Status: "blocked",
		Detail: map[string]any{"command": command, "reason": reason},
	})
	return &SecurityError{Command: command, Reason: reason}
}

func (m *Manager) approve(ctx context.Context, action, resource string, required bool) error {
	if !required {
		return nil
	}
	ok, err := m.approver.Confirm(ctx, approval.Request{
		Action:   action,
		Resource: resource,
	})
	if err != nil {
		return fmt.Errorf("approval: %w", err)
	}
	if !ok {
		m.trail.Append(audit.Event{
			Action: action,
			Status: "approval_denied",
			Detail: map[string]any{"resource": resource},
		})
		return ErrApprovalDenied
	}
	return nil
}

func (m *Manager) register(desc registry.Descriptor, h launcher.Handle) error {
	if err := m.reg.Add(desc, h); err != nil {
		// Should not happen with generated ids; do not leak the process.
		_ = h.Kill()
		return err
	}
	return nil
}

// newID returns "<prefix>_<unix-seconds>". The counter is monotonic so two
// starts in the same second still get distinct identifiers.
func (m *Manager) newID(prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	if now <= m.lastID {
		now = m.lastID + 1
	}
	m.lastID = now
	return fmt.Sprintf("%s_%d", prefix, now)
}
