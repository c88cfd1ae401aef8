package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/gateward/internal/proxy"
)

var usageBudget float64

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(usageCmd)
	usageCmd.Flags().Float64Var(&usageBudget, "budget", 0, "Budget limit to check remaining spend against")
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := proxy.New(proxy.Config{})
		models, err := client.Models(context.Background())
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(models, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check proxy reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := proxy.New(proxy.Config{})
		h := client.CheckHealth(context.Background())
		out, _ := json.MarshalIndent(h, "", "  ")
		fmt.Println(string(out))
		if !h.Healthy {
			return fmt.Errorf("proxy unhealthy")
		}
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show proxy-side usage statistics",
	Long:  "Queries the proxy's usage endpoints. With --budget, also reports the\nremaining budget against the given limit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := proxy.New(proxy.Config{})
		stats, err := client.UsageStats(context.Background())
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))

		if usageBudget > 0 {
			b := client.CheckBudget(context.Background(), usageBudget)
			bout, _ := json.MarshalIndent(b, "", "  ")
			fmt.Println(string(bout))
		}
		return nil
	},
}
