package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gateward",
	Short: "Supervised MCP gateway manager and policy-checked LLM proxy client",
	Long:  "Launches and supervises transport bridges for MCP servers (stdio to SSE,\nSSE to stdio, streamable HTTP) with denylist checks, approval gates, and an\naudit trail, plus a policy-enforced client for an OpenAI-compatible proxy.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
