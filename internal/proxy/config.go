package proxy

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the safety thresholds governing outbound chat requests.
// Loaded once; read-only during request processing.
type Policy struct {
	MaxBudgetPerRequest float64  `yaml:"max_budget_per_request"`
	MaxTokensPerRequest int      `yaml:"max_tokens_per_request"`
	RequireApprovalOver float64  `yaml:"require_approval_over"`
	BlockedKeywords     []string `yaml:"blocked_keywords"`
	RateLimitPerMinute  int      `yaml:"rate_limit_per_minute"`
}

// DefaultPolicy returns the built-in safety thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxBudgetPerRequest: 10.0,
		MaxTokensPerRequest: 4000,
		RequireApprovalOver: 5.0,
		BlockedKeywords:     []string{"harmful", "illegal"},
		RateLimitPerMinute:  60,
	}
}

// LoadPolicy reads a safety policy from a YAML file. Falls back to the
// defaults if the path is empty or the file does not exist.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return Policy{}, err
	}

	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, err
	}
	return p, nil
}
