package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/gateward/internal/audit"
	"github.com/ppiankov/gateward/internal/launcher"
	"github.com/ppiankov/gateward/internal/registry"
)

var (
	gwState    string
	gwAuditLog string
	gwGrace    time.Duration
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(cleanupCmd)

	for _, cmd := range []*cobra.Command{listCmd, stopCmd, cleanupCmd} {
		cmd.Flags().StringVar(&gwState, "state", "", "Path to the gateway state file (default ~/.gateward/gateways.json)")
	}
	for _, cmd := range []*cobra.Command{stopCmd, cleanupCmd} {
		cmd.Flags().StringVar(&gwAuditLog, "audit-log", "", "Path to hash-chained JSONL audit log")
		cmd.Flags().DurationVar(&gwGrace, "grace", 10*time.Second, "SIGTERM-to-SIGKILL grace period")
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded gateways with current liveness",
	RunE:  runList,
}

var stopCmd = &cobra.Command{
	Use:   "stop <gateway-id>",
	Short: "Stop a recorded gateway",
	Long:  "Sends SIGTERM to the gateway's bridge process, escalates to SIGKILL\nafter the grace period, and removes it from the state file.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Stop every recorded gateway",
	Long:  "Stops each gateway in the state file, best-effort. A failure on one\ngateway does not abort the rest. Safe to run repeatedly.",
	RunE:  runCleanup,
}

func runList(cmd *cobra.Command, args []string) error {
	descs, err := registry.NewState(gwState).Load()
	if err != nil {
		return err
	}

	for i := range descs {
		if launcher.PIDAlive(descs[i].PID) {
			descs[i].Status = registry.StatusRunning
		} else {
			descs[i].Status = registry.StatusTerminated
		}
	}

	out, _ := json.MarshalIndent(descs, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	trail, closeTrail, err := stopTrail()
	if err != nil {
		return err
	}
	defer closeTrail()

	return stopGateway(registry.NewState(gwState), trail, args[0])
}

func runCleanup(cmd *cobra.Command, args []string) error {
	trail, closeTrail, err := stopTrail()
	if err != nil {
		return err
	}
	defer closeTrail()

	state := registry.NewState(gwState)
	descs, err := state.Load()
	if err != nil {
		return err
	}

	for _, d := range descs {
		if err := stopGateway(state, trail, d.ID); err != nil {
			fmt.Fprintf(os.Stderr, "cleanup %s: %v\n", d.ID, err)
		}
	}
	return nil
}

func stopGateway(state *registry.State, trail *audit.Trail, id string) error {
	desc, err := state.Remove(id)
	if err != nil {
		trail.Append(audit.Event{
			Action: "stop_gateway",
			Status: "not_found",
			Detail: map[string]any{"gateway_id": id},
		})
		return err
	}

	if err := launcher.ShutdownPID(desc.PID, gwGrace); err != nil {
		// Keep the record gone; the operator asked for it to stop.
		fmt.Fprintf(os.Stderr, "stop %s: %v\n", id, err)
	}

	trail.Append(audit.Event{
		Action: "stop_gateway",
		Status: "stopped",
		Detail: map[string]any{"gateway_id": id, "pid": desc.PID},
	})
	fmt.Printf("%s stopped\n", id)
	return nil
}

// stopTrail builds the audit trail for stop/cleanup, persisting to the
// audit log when one is configured.
func stopTrail() (*audit.Trail, func(), error) {
	if gwAuditLog == "" {
		return audit.NewTrail(), func() {}, nil
	}
	log, err := audit.Open(gwAuditLog)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return audit.NewTrail(audit.WithSink(log)), func() { _ = log.Close() }, nil
}
