package mcp

import (
	"context"
	"errors"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/gateward/internal/gateway"
	"github.com/ppiankov/gateward/internal/proxy"
	"github.com/ppiankov/gateward/internal/registry"
)

const defaultPort = 8000

// --- Input/Output types ---

// StartSSEInput defines parameters for the gateward_start_sse tool.
type StartSSEInput struct {
	Command         string `json:"command" jsonschema:"stdio MCP server command to expose"`
	Port            int    `json:"port,omitempty" jsonschema:"TCP port for the SSE endpoint (default 8000)"`
	RequireApproval bool   `json:"require_approval,omitempty" jsonschema:"gate the start on operator approval"`
}

// StartStdioInput defines parameters for the gateward_start_stdio tool.
type StartStdioInput struct {
	SSEURL          string            `json:"sse_url" jsonschema:"remote SSE endpoint to bridge to stdio"`
	Headers         map[string]string `json:"headers,omitempty" jsonschema:"headers sent to the remote server"`
	RequireApproval bool              `json:"require_approval,omitempty" jsonschema:"gate the start on operator approval"`
}

// StartHTTPInput defines parameters for the gateward_start_http tool.
type StartHTTPInput struct {
	Command          string `json:"command" jsonschema:"stdio MCP server command to expose"`
	Port             int    `json:"port,omitempty" jsonschema:"TCP port for the HTTP endpoint (default 8000)"`
	Stateful         bool   `json:"stateful,omitempty" jsonschema:"enable session state"`
	SessionTimeoutMS int    `json:"session_timeout_ms,omitempty" jsonschema:"session idle timeout in milliseconds"`
	RequireApproval  bool   `json:"require_approval,omitempty" jsonschema:"gate the start on operator approval"`
}

// StartOutput describes a started gateway or the reason it was refused.
type StartOutput struct {
	GatewayID  string `json:"gateway_id,omitempty"`
	PID        int    `json:"pid,omitempty"`
	Status     string `json:"status,omitempty"`
	Port       int    `json:"port,omitempty"`
	SSEURL     string `json:"sse_url,omitempty"`
	MessageURL string `json:"message_url,omitempty"`
	HTTPURL    string `json:"http_url,omitempty"`
	Blocked    bool   `json:"blocked,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// StopInput defines parameters for the gateward_stop tool.
type StopInput struct {
	GatewayID string `json:"gateway_id" jsonschema:"id returned by a start tool"`
}

// StopOutput confirms the stop or reports why it failed.
type StopOutput struct {
	GatewayID string `json:"gateway_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// ListInput is empty, no parameters needed.
type ListInput struct{}

// ListOutput lists all registered gateways.
type ListOutput struct {
	Gateways []GatewayItem `json:"gateways"`
}

// GatewayItem describes a single registered gateway.
type GatewayItem struct {
	GatewayID  string `json:"gateway_id"`
	Transport  string `json:"transport"`
	PID        int    `json:"pid"`
	Status     string `json:"status"`
	Command    string `json:"command,omitempty"`
	Port       int    `json:"port,omitempty"`
	SSEURL     string `json:"sse_url,omitempty"`
	MessageURL string `json:"message_url,omitempty"`
	HTTPURL    string `json:"http_url,omitempty"`
	StartedAt  string `json:"started_at"`
}

// AuditInput defines parameters for the gateward_audit tool.
type AuditInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"return only the newest N events"`
}

// AuditOutput lists recorded lifecycle events.
type AuditOutput struct {
	Events []AuditItem `json:"events"`
}

// AuditItem is one audit trail event.
type AuditItem struct {
	Timestamp string         `json:"ts"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// CleanupInput is empty, no parameters needed.
type CleanupInput struct{}

// CleanupOutput reports how many gateways remain after cleanup.
type CleanupOutput struct {
	Remaining int `json:"remaining"`
}

// EstimateInput defines parameters for the gateward_estimate_cost tool.
type EstimateInput struct {
	Model    string         `json:"model" jsonschema:"model name, routed names like openai/gpt-4o are accepted"`
	Messages []MessageInput `json:"messages" jsonschema:"chat messages to estimate"`
}

// MessageInput is one chat message.
type MessageInput struct {
	Role    string `json:"role" jsonschema:"message role (system/user/assistant)"`
	Content string `json:"content" jsonschema:"message text"`
}

// EstimateOutput is the advisory cost estimate.
type EstimateOutput struct {
	Tokens    float64 `json:"estimated_input_tokens"`
	Cost      float64 `json:"estimated_cost_usd"`
	Model     string  `json:"model"`
	RatePer1K float64 `json:"rate_per_1k_tokens"`
}

// --- Handlers ---

func (s *Server) handleStartSSE(ctx context.Context, req *mcpsdk.CallToolRequest, input StartSSEInput) (*mcpsdk.CallToolResult, StartOutput, error) {
	port := input.Port
	if port == 0 {
		port = defaultPort
	}

	desc, err := s.manager.StartStdioToSSE(ctx, gateway.SSEOptions{
		Command:         input.Command,
		Port:            port,
		RequireApproval: input.RequireApproval,
	})
	if err != nil {
		return refusedStart(err)
	}
	return nil, startOutput(desc), nil
}

func (s *Server) handleStartStdio(ctx context.Context, req *mcpsdk.CallToolRequest, input StartStdioInput) (*mcpsdk.CallToolResult, StartOutput, error) {
	desc, err := s.manager.StartSSEToStdio(ctx, gateway.StdioOptions{
		SSEURL:          input.SSEURL,
		Headers:         input.Headers,
		RequireApproval: input.RequireApproval,
	})
	if err != nil {
		return refusedStart(err)
	}
	return nil, startOutput(desc), nil
}

func (s *Server) handleStartHTTP(ctx context.Context, req *mcpsdk.CallToolRequest, input StartHTTPInput) (*mcpsdk.CallToolResult, StartOutput, error) {
	port := input.Port
	if port == 0 {
		port = defaultPort
	}

	desc, err := s.manager.StartStreamableHTTP(ctx, gateway.HTTPOptions{
		Command:         input.Command,
		Port:            port,
		Stateful:        input.Stateful,
		SessionTimeout:  time.Duration(input.SessionTimeoutMS) * time.Millisecond,
		RequireApproval: input.RequireApproval,
	})
	if err != nil {
		return refusedStart(err)
	}
	return nil, startOutput(desc), nil
}

func (s *Server) handleStop(ctx context.Context, req *mcpsdk.CallToolRequest, input StopInput) (*mcpsdk.CallToolResult, StopOutput, error) {
	result, err := s.manager.Stop(input.GatewayID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			out := StopOutput{
				GatewayID: input.GatewayID,
				Status:    "not_found",
				Reason:    err.Error(),
			}
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, StopOutput{}, err
	}
	return nil, StopOutput{GatewayID: result.ID, Status: result.Status}, nil
}

func (s *Server) handleList(ctx context.Context, req *mcpsdk.CallToolRequest, input ListInput) (*mcpsdk.CallToolResult, ListOutput, error) {
	descs := s.manager.List()
	items := make([]GatewayItem, len(descs))
	for i, d := range descs {
		items[i] = GatewayItem{
			GatewayID:  d.ID,
			Transport:  string(d.Transport),
			PID:        d.PID,
			Status:     d.Status,
			Command:    d.Command,
			Port:       d.Port,
			SSEURL:     d.SSEURL,
			MessageURL: d.MessageURL,
			HTTPURL:    d.HTTPURL,
			StartedAt:  d.StartedAt.Format(time.RFC3339),
		}
	}
	return nil, ListOutput{Gateways: items}, nil
}

func (s *Server) handleAudit(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditInput) (*mcpsdk.CallToolResult, AuditOutput, error) {
	events := s.manager.AuditLog()
	if input.Limit > 0 && len(events) > input.Limit {
		events = events[len(events)-input.Limit:]
	}

	items := make([]AuditItem, len(events))
	for i, ev := range events {
		items[i] = AuditItem{
			Timestamp: ev.Time.Format(time.RFC3339),
			Action:    ev.Action,
			Status:    ev.Status,
			Detail:    ev.Detail,
		}
	}
	return nil, AuditOutput{Events: items}, nil
}

func (s *Server) handleCleanup(ctx context.Context, req *mcpsdk.CallToolRequest, input CleanupInput) (*mcpsdk.CallToolResult, CleanupOutput, error) {
	s.manager.Cleanup()
	return nil, CleanupOutput{Remaining: len(s.manager.List())}, nil
}

func (s *Server) handleEstimateCost(ctx context.Context, req *mcpsdk.CallToolRequest, input EstimateInput) (*mcpsdk.CallToolResult, EstimateOutput, error) {
	messages := make([]proxy.Message, len(input.Messages))
	for i, m := range input.Messages {
		messages[i] = proxy.Message{Role: m.Role, Content: m.Content}
	}

	est := proxy.EstimateCost(messages, input.Model)
	return nil, EstimateOutput{
		Tokens:    est.Tokens,
		Cost:      est.Cost,
		Model:     est.Model,
		RatePer1K: est.RatePer1K,
	}, nil
}

// --- Helpers ---

// refusedStart converts denylist and approval refusals into tool errors
// carrying the reason; anything else propagates as a handler error.
func refusedStart(err error) (*mcpsdk.CallToolResult, StartOutput, error) {
	var sec *gateway.SecurityError
	if errors.As(err, &sec) {
		out := StartOutput{Blocked: true, Reason: sec.Reason}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	if errors.Is(err, gateway.ErrApprovalDenied) {
		out := StartOutput{Blocked: true, Reason: err.Error()}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, StartOutput{}, err
}

func startOutput(d registry.Descriptor) StartOutput {
	return StartOutput{
		GatewayID:  d.ID,
		PID:        d.PID,
		Status:     d.Status,
		Port:       d.Port,
		SSEURL:     d.SSEURL,
		MessageURL: d.MessageURL,
		HTTPURL:    d.HTTPURL,
	}
}
