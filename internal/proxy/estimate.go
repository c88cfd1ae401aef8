package proxy

import "strings"

// ratePer1K maps base model names to USD per 1000 input tokens. Models not
// listed fall back to defaultRate.
var ratePer1K = map[string]float64{
	"gpt-4o":            0.03,
	"gpt-4o-mini":       0.0015,
	"claude-3-5-sonnet": 0.015,
	"deepseek-chat":     0.0014,
}

const defaultRate = 0.002

// Estimate is a pre-flight advisory cost estimate. No network call.
type Estimate struct {
	Tokens    float64 `json:"estimated_input_tokens"`
	Cost      float64 `json:"estimated_cost_usd"`
	Model     string  `json:"model"`
	RatePer1K float64 `json:"rate_per_1k_tokens"`
}

// estimateTokens approximates the token count of text as wordCount * 1.3.
func estimateTokens(text string) float64 {
	return float64(len(strings.Fields(text))) * 1.3
}

// messageText concatenates all message contents, space-separated.
func messageText(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

// EstimateCost estimates tokens and cost for a completion request. Routed
// models like "openai/gpt-4o" resolve their rate by the segment after the
// last slash.
func EstimateCost(messages []Message, model string) Estimate {
	tokens := estimateTokens(messageText(messages))

	base := model
	if i := strings.LastIndex(model, "/"); i >= 0 {
		base = model[i+1:]
	}
	rate, ok := ratePer1K[base]
	if !ok {
		rate = defaultRate
	}

	return Estimate{
		Tokens:    tokens,
		Cost:      tokens / 1000 * rate,
		Model:     model,
		RatePer1K: rate,
	}
}
