// Package proxy is a policy-checked client for an OpenAI-compatible
// multi-model completion proxy. Every request passes rate, token, and
// content checks before it leaves the process, and every attempt lands in
// the audit trail.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/gateward/internal/audit"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	Extra       map[string]any
}

// Usage reports token consumption from the upstream response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a successful chat completion.
type Result struct {
	Content  string
	Model    string
	Usage    Usage
	Latency  time.Duration
	Warnings []string
	Raw      json.RawMessage
}

// Ledger records spend for successful completions. Recording is
// best-effort; failures are logged and never fail the completion.
type Ledger interface {
	Add(model string, promptTokens, completionTokens int, cost float64) error
}

// Config holds client construction parameters.
type Config struct {
	BaseURL string
	Key     string
	Policy  Policy
	Trail   *audit.Trail
	Ledger  Ledger
	Timeout time.Duration
	Now     func() time.Time
}

// Client forwards chat requests through the safety policy.
type Client struct {
	baseURL string
	key     string
	policy  Policy
	window  *Window
	trail   *audit.Trail
	ledger  Ledger
	httpc   *http.Client
	now     func() time.Time
}

// EnvBaseURL and EnvKey configure the proxy endpoint from the environment.
const (
	EnvBaseURL = "GATEWARD_PROXY_URL"
	EnvKey     = "GATEWARD_PROXY_KEY"

	defaultBaseURL = "http://localhost:4000"
	defaultTimeout = 30 * time.Second
)

// New creates a Client. Zero-value Config fields fall back to the
// environment, defaults, and a fresh trail.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv(EnvBaseURL)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Key == "" {
		cfg.Key = os.Getenv(EnvKey)
	}
	if cfg.Policy.MaxTokensPerRequest == 0 && cfg.Policy.RateLimitPerMinute == 0 {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Trail == nil {
		cfg.Trail = audit.NewTrail()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.Key,
		policy:  cfg.Policy,
		window:  NewWindow(cfg.Policy.RateLimitPerMinute),
		trail:   cfg.Trail,
		ledger:  cfg.Ledger,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		now:     cfg.Now,
	}
}

// Trail exposes the audit trail backing this client.
func (c *Client) Trail() *audit.Trail { return c.trail }

// CompleteChat validates the request against the safety policy and
// forwards it to the proxy. Rate and token violations block; keyword
// matches only warn (recorded in the audit event and the result).
func (c *Client) CompleteChat(ctx context.Context, req Request) (*Result, error) {
	text := messageText(req.Messages)
	estimated := estimateTokens(text)

	if !c.window.Allow(c.now()) {
		err := &RateLimitError{Limit: c.policy.RateLimitPerMinute}
		c.trail.Append(audit.Event{
			Action: "chat_completion_blocked",
			Status: "rate_limited",
			Detail: map[string]any{"model": req.Model, "estimated_tokens": estimated},
		})
		return nil, err
	}

	if c.policy.MaxTokensPerRequest > 0 && estimated > float64(c.policy.MaxTokensPerRequest) {
		err := &TokenLimitError{Estimated: estimated, Limit: c.policy.MaxTokensPerRequest}
		c.trail.Append(audit.Event{
			Action: "chat_completion_blocked",
			Status: "token_limit",
			Detail: map[string]any{"model": req.Model, "estimated_tokens": estimated},
		})
		return nil, err
	}

	// Keyword matches warn but do not block; only rate and token checks
	// are hard blockers.
	var warnings []string
	lower := strings.ToLower(text)
	for _, kw := range c.policy.BlockedKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			warnings = append(warnings, fmt.Sprintf("potentially %s content detected", kw))
		}
	}

	payload := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	for k, v := range req.Extra {
		payload[k] = v
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if c.policy.MaxTokensPerRequest > 0 && maxTokens > c.policy.MaxTokensPerRequest {
			maxTokens = c.policy.MaxTokensPerRequest
		}
		payload["max_tokens"] = maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	respBody, status, err := c.post(ctx, "/v1/chat/completions", body)
	latency := time.Since(start)
	if err != nil {
		c.trail.Append(audit.Event{
			Action: "chat_completion_error",
			Status: "transport_failed",
			Detail: map[string]any{"model": req.Model, "error": err.Error()},
		})
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if status != http.StatusOK {
		upErr := &UpstreamError{Status: status, Body: strings.TrimSpace(string(respBody))}
		c.trail.Append(audit.Event{
			Action: "chat_completion_failed",
			Status: "upstream_error",
			Detail: map[string]any{"model": req.Model, "http_status": status},
		})
		return nil, upErr
	}

	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Choices) == 0 {
		c.trail.Append(audit.Event{
			Action: "chat_completion_failed",
			Status: "bad_response",
			Detail: map[string]any{"model": req.Model},
		})
		return nil, fmt.Errorf("empty completion response")
	}

	c.trail.Append(audit.Event{
		Action: "chat_completion_success",
		Status: "ok",
		Detail: map[string]any{
			"model":            req.Model,
			"estimated_tokens": estimated,
			"response_time_ms": latency.Milliseconds(),
			"usage":            parsed.Usage,
			"warnings":         warnings,
		},
	})

	if c.ledger != nil {
		est := EstimateCost(req.Messages, req.Model)
		if err := c.ledger.Add(req.Model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, est.Cost); err != nil {
			fmt.Fprintf(os.Stderr, "proxy: spend ledger: %v\n", err)
		}
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}
	return &Result{
		Content:  parsed.Choices[0].Message.Content,
		Model:    model,
		Usage:    parsed.Usage,
		Latency:  latency,
		Warnings: warnings,
		Raw:      respBody,
	}, nil
}

// Health reports whether the proxy answers GET /health.
type Health struct {
	Healthy    bool           `json:"healthy"`
	StatusCode int            `json:"status_code,omitempty"`
	LatencyMS  int64          `json:"response_time_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// CheckHealth probes the proxy health endpoint.
func (c *Client) CheckHealth(ctx context.Context) Health {
	start := time.Now()
	body, status, err := c.get(ctx, "/health")
	if err != nil {
		h := Health{Error: err.Error()}
		c.trail.Append(audit.Event{Action: "health_check", Status: "failed", Detail: map[string]any{"error": err.Error()}})
		return h
	}

	h := Health{
		Healthy:    status == http.StatusOK,
		StatusCode: status,
		LatencyMS:  time.Since(start).Milliseconds(),
	}
	if h.Healthy {
		var data map[string]any
		if json.Unmarshal(body, &data) == nil {
			h.Data = data
		}
	}
	c.trail.Append(audit.Event{Action: "health_check", Status: "ok", Detail: map[string]any{"http_status": status}})
	return h
}

// ModelInfo describes one model the proxy can route to.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Models lists the models available behind the proxy.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	body, status, err := c.get(ctx, "/v1/models")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	if status != http.StatusOK {
		return nil, &UpstreamError{Status: status, Body: strings.TrimSpace(string(body))}
	}

	var parsed struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse models response: %w", err)
	}
	return parsed.Data, nil
}

// UsageStats fetches spend statistics, trying the known endpoints in order.
func (c *Client) UsageStats(ctx context.Context) (map[string]any, error) {
	for _, endpoint := range []string{"/spend/tags", "/spend", "/usage"} {
		body, status, err := c.get(ctx, endpoint)
		if err != nil || status != http.StatusOK {
			continue
		}
		var stats map[string]any
		if json.Unmarshal(body, &stats) == nil {
			return stats, nil
		}
	}
	return nil, fmt.Errorf("no usage endpoint available")
}

// Budget reports spend against a limit.
type Budget struct {
	WithinBudget bool    `json:"within_budget"`
	CurrentSpend float64 `json:"current_spend"`
	Limit        float64 `json:"budget_limit"`
	Remaining    float64 `json:"remaining_budget"`
}

// CheckBudget compares current proxy spend against the given limit.
// Missing usage data counts as zero spend.
func (c *Client) CheckBudget(ctx context.Context, limit float64) Budget {
	var spend float64
	if stats, err := c.UsageStats(ctx); err == nil {
		if v, ok := stats["total_spend"].(float64); ok {
			spend = v
		}
	}

	remaining := limit - spend
	if remaining < 0 {
		remaining = 0
	}
	return Budget{
		WithinBudget: spend < limit,
		CurrentSpend: spend,
		Limit:        limit,
		Remaining:    remaining,
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
