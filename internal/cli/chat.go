package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/gateward/internal/approval"
	"github.com/ppiankov/gateward/internal/proxy"
	"github.com/ppiankov/gateward/internal/spend"
)

var (
	chatModel     string
	chatSystem    string
	chatMaxTokens int
	chatPolicy    string
	chatNoLedger  bool
	chatYes       bool
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "gpt-4o-mini", "Model name (routed names like openai/gpt-4o work)")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System prompt")
	chatCmd.Flags().IntVar(&chatMaxTokens, "max-tokens", 0, "Completion token cap (clamped to policy)")
	chatCmd.Flags().StringVar(&chatPolicy, "policy", "", "Path to safety policy YAML")
	chatCmd.Flags().BoolVar(&chatNoLedger, "no-ledger", false, "Skip recording spend to the local ledger")
	chatCmd.Flags().BoolVarP(&chatYes, "yes", "y", false, "Skip the approval prompt for expensive requests")
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a chat completion through the policy-checked proxy",
	Long:  "Sends one chat completion to the configured OpenAI-compatible proxy.\nThe request is checked against the safety policy first: rate limit, token\ncap, keyword warnings, and an approval prompt when the estimated cost\nexceeds the policy threshold.",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	policy, err := proxy.LoadPolicy(chatPolicy)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	var ledger proxy.Ledger
	if !chatNoLedger {
		store, err := spend.Open(spend.DefaultPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "spend ledger unavailable: %v\n", err)
		} else {
			defer store.Close()
			ledger = store
		}
	}

	messages := []proxy.Message{}
	if chatSystem != "" {
		messages = append(messages, proxy.Message{Role: "system", Content: chatSystem})
	}
	messages = append(messages, proxy.Message{Role: "user", Content: args[0]})

	// Cost gate before anything leaves the machine.
	est := proxy.EstimateCost(messages, chatModel)
	if policy.RequireApprovalOver > 0 && est.Cost > policy.RequireApprovalOver && !chatYes {
		prompt := &approval.Prompt{In: os.Stdin, Out: os.Stderr}
		ok, err := prompt.Confirm(cmd.Context(), approval.Request{
			Action:   "chat_completion",
			Resource: chatModel,
			Detail:   fmt.Sprintf("estimated cost $%.4f exceeds $%.2f", est.Cost, policy.RequireApprovalOver),
		})
		if err != nil {
			return fmt.Errorf("approval: %w", err)
		}
		if !ok {
			return fmt.Errorf("request declined")
		}
	}

	client := proxy.New(proxy.Config{Policy: policy, Ledger: ledger})
	result, err := client.CompleteChat(context.Background(), proxy.Request{
		Model:     chatModel,
		Messages:  messages,
		MaxTokens: chatMaxTokens,
	})
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	fmt.Println(strings.TrimSpace(result.Content))
	fmt.Fprintf(os.Stderr, "\n[%s] %d prompt + %d completion tokens, %dms\n",
		result.Model, result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Latency.Milliseconds())
	return nil
}
