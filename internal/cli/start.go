package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/gateward/internal/approval"
	"github.com/ppiankov/gateward/internal/audit"
	"github.com/ppiankov/gateward/internal/denylist"
	"github.com/ppiankov/gateward/internal/gateway"
	"github.com/ppiankov/gateward/internal/registry"
)

var (
	startPort     int
	startBridge   string
	startDenylist string
	startAuditLog string
	startState    string
	startApprove  bool

	startHeaders        []string
	startStateful       bool
	startSessionTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.AddCommand(startSSECmd)
	startCmd.AddCommand(startStdioCmd)
	startCmd.AddCommand(startHTTPCmd)

	startCmd.PersistentFlags().IntVar(&startPort, "port", 8000, "TCP port for the local endpoint")
	startCmd.PersistentFlags().StringVar(&startBridge, "bridge", "", "Bridge executable (default supergateway)")
	startCmd.PersistentFlags().StringVar(&startDenylist, "denylist", "", "Path to denylist YAML")
	startCmd.PersistentFlags().StringVar(&startAuditLog, "audit-log", "", "Path to hash-chained JSONL audit log")
	startCmd.PersistentFlags().StringVar(&startState, "state", "", "Path to the gateway state file (default ~/.gateward/gateways.json)")
	startCmd.PersistentFlags().BoolVar(&startApprove, "approve", false, "Require interactive approval before launching")

	startStdioCmd.Flags().StringArrayVar(&startHeaders, "header", nil, "Header sent to the remote server (key=value, repeatable)")
	startHTTPCmd.Flags().BoolVar(&startStateful, "stateful", false, "Enable session state")
	startHTTPCmd.Flags().DurationVar(&startSessionTimeout, "session-timeout", 0, "Session idle timeout (stateful mode)")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a gateway bridge",
	Long:  "Launches a transport bridge in its own session, records it in the\nstate file, and prints its descriptor as JSON. Stop it later with\n'gateward stop <id>'.",
}

var startSSECmd = &cobra.Command{
	Use:   "sse <command>",
	Short: "Expose a local stdio MCP command over SSE",
	Args:  cobra.ExactArgs(1),
	RunE:  runStartSSE,
}

var startStdioCmd = &cobra.Command{
	Use:   "stdio <sse-url>",
	Short: "Expose a remote SSE MCP server over local stdio",
	Args:  cobra.ExactArgs(1),
	RunE:  runStartStdio,
}

var startHTTPCmd = &cobra.Command{
	Use:   "http <command>",
	Short: "Expose a local stdio MCP command over streamable HTTP",
	Args:  cobra.ExactArgs(1),
	RunE:  runStartHTTP,
}

func runStartSSE(cmd *cobra.Command, args []string) error {
	return launch(func(ctx context.Context, m *gateway.Manager) (registry.Descriptor, error) {
		return m.StartStdioToSSE(ctx, gateway.SSEOptions{
			Command:         args[0],
			Port:            startPort,
			RequireApproval: startApprove,
		})
	})
}

func runStartStdio(cmd *cobra.Command, args []string) error {
	headers := make(map[string]string, len(startHeaders))
	for _, h := range startHeaders {
		k, v, ok := strings.Cut(h, "=")
		if !ok {
			return fmt.Errorf("invalid header %q, want key=value", h)
		}
		headers[k] = v
	}

	return launch(func(ctx context.Context, m *gateway.Manager) (registry.Descriptor, error) {
		return m.StartSSEToStdio(ctx, gateway.StdioOptions{
			SSEURL:          args[0],
			Headers:         headers,
			RequireApproval: startApprove,
		})
	})
}

func runStartHTTP(cmd *cobra.Command, args []string) error {
	return launch(func(ctx context.Context, m *gateway.Manager) (registry.Descriptor, error) {
		return m.StartStreamableHTTP(ctx, gateway.HTTPOptions{
			Command:         args[0],
			Port:            startPort,
			Stateful:        startStateful,
			SessionTimeout:  startSessionTimeout,
			RequireApproval: startApprove,
		})
	})
}

// launch builds a manager from the start flags, runs one start function,
// and records the detached gateway in the state file.
func launch(start func(context.Context, *gateway.Manager) (registry.Descriptor, error)) error {
	dl, err := denylist.Load(startDenylist)
	if err != nil {
		return fmt.Errorf("failed to load denylist: %w", err)
	}

	trailOpts := []audit.Option{}
	if startAuditLog != "" {
		auditLog, err := audit.Open(startAuditLog)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer auditLog.Close()
		trailOpts = append(trailOpts, audit.WithSink(auditLog))
	}

	var approver approval.Approver = approval.Auto(true)
	if startApprove {
		approver = &approval.Prompt{In: os.Stdin, Out: os.Stderr}
	}

	m := gateway.New(gateway.Config{
		BridgeBinary: startBridge,
		Approver:     approver,
		Denylist:     dl,
		Trail:        audit.NewTrail(trailOpts...),
		Detach:       true,
	})

	desc, err := start(context.Background(), m)
	if err != nil {
		return err
	}

	if err := registry.NewState(startState).Append(desc); err != nil {
		fmt.Fprintf(os.Stderr, "warning: gateway running but not recorded: %v\n", err)
	}

	out, _ := json.MarshalIndent(desc, "", "  ")
	fmt.Println(string(out))
	return nil
}
