package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/gateward/internal/bridge"
)

var (
	callBase      string
	callTransport string
	callEndpoint  string
	callParams    string
)

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVar(&callBase, "url", "http://localhost:8000", "Gateway base URL")
	callCmd.Flags().StringVar(&callTransport, "transport", "http", "Transport to the gateway (http, sse, ws)")
	callCmd.Flags().StringVar(&callEndpoint, "endpoint", "/mcp", "Gateway endpoint path")
	callCmd.Flags().StringVar(&callParams, "params", "", "JSON-RPC params as a JSON object")
}

var callCmd = &cobra.Command{
	Use:   "call <method>",
	Short: "Send a JSON-RPC request through a running gateway",
	Long:  "Calls the MCP server behind a gateway, e.g.\n  gateward call tools/list --url http://localhost:8000\n  gateward call tools/call --params '{\"name\":\"search\",\"arguments\":{\"q\":\"dns\"}}'",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	var params map[string]any
	if callParams != "" {
		if err := json.Unmarshal([]byte(callParams), &params); err != nil {
			return fmt.Errorf("invalid --params: %w", err)
		}
	}

	client := bridge.New(bridge.Config{BaseURL: callBase})
	defer client.Close()

	result, err := client.Call(context.Background(), callTransport, callEndpoint, args[0], params)
	if err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Println(string(result))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}
