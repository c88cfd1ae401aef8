package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/gateward/internal/spend"
)

var spendDB string

func init() {
	rootCmd.AddCommand(spendCmd)
	spendCmd.Flags().StringVar(&spendDB, "db", "", "Path to the spend ledger (default ~/.gateward/spend.db)")
}

var spendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Show locally recorded completion spend",
	Long:  "Reads the local spend ledger and prints the overall aggregate plus a\nper-model breakdown, highest cost first.",
	RunE:  runSpend,
}

func runSpend(cmd *cobra.Command, args []string) error {
	path := spendDB
	if path == "" {
		path = spend.DefaultPath()
	}

	store, err := spend.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	totals, err := store.Totals()
	if err != nil {
		return err
	}
	perModel, err := store.PerModel()
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(map[string]any{
		"total":     totals,
		"per_model": perModel,
	}, "", "  ")
	fmt.Println(string(out))
	return nil
}
