package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/gateward/internal/gateway"
	"github.com/ppiankov/gateward/internal/mcp"
)

var (
	serveDenylist string
	serveAuditLog string
	serveBridge   string
	serveGrace    time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveDenylist, "denylist", "", "Path to denylist YAML (watched for hot reload)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to hash-chained JSONL audit log")
	serveCmd.Flags().StringVar(&serveBridge, "bridge", "", "Bridge executable (default supergateway)")
	serveCmd.Flags().DurationVar(&serveGrace, "grace", 0, "SIGTERM-to-SIGKILL grace period for stops (default 10s)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs gateward as an MCP (Model Context Protocol) server over stdio.\nExposes gateway tools: start_sse, start_stdio, start_http, stop, list,\naudit, cleanup, estimate_cost.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := mcp.New(mcp.Config{
		BridgeBinary: serveBridge,
		DenylistPath: serveDenylist,
		AuditLogPath: serveAuditLog,
		Grace:        serveGrace,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	reloader, err := gateway.NewReloader(srv.Manager(), serveDenylist)
	if err != nil {
		return fmt.Errorf("failed to watch denylist: %w", err)
	}
	if reloader != nil {
		go func() {
			if err := reloader.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "denylist watcher stopped: %v\n", err)
			}
		}()
	}

	fmt.Fprintln(os.Stderr, "gateward MCP server running on stdio")
	if serveDenylist != "" {
		fmt.Fprintf(os.Stderr, "Denylist: %s\n", serveDenylist)
	}
	fmt.Fprintln(os.Stderr)

	err = srv.Run(ctx)

	// Every gateway this server started dies with it.
	if cerr := srv.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", cerr)
	}
	return err
}
