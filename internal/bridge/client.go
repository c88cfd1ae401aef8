// Package bridge calls MCP servers through a running gateway. Requests are
// JSON-RPC 2.0 over the gateway's transport: plain HTTP POST, an SSE
// response stream, or a WebSocket connection.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RPCError is a structured JSON-RPC error from the far side.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Config holds bridge client parameters.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to one gateway instance.
type Client struct {
	baseURL string
	httpc   *http.Client

	wsMu    sync.Mutex
	wsConns map[string]*wsSession
}

// wsSession serializes request/response exchanges on one cached
// connection. gorilla/websocket allows at most one concurrent writer
// and one concurrent reader per connection.
type wsSession struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a bridge client for the given gateway base URL.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.Timeout},
		wsConns: make(map[string]*wsSession),
	}
}

// Close closes all cached WebSocket connections.
func (c *Client) Close() error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	var firstErr error
	for endpoint, sess := range c.wsConns {
		if err := sess.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.wsConns, endpoint)
	}
	return firstErr
}

// Healthy reports whether the gateway answers GET /health with 200.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Call routes a JSON-RPC request over the named transport: "http", "ws"
// (or "websocket"), or "sse".
func (c *Client) Call(ctx context.Context, transport, endpoint, method string, params map[string]any) (json.RawMessage, error) {
	switch transport {
	case "http":
		return c.CallHTTP(ctx, endpoint, method, params)
	case "ws", "websocket":
		return c.CallWS(ctx, endpoint, method, params)
	case "sse":
		return c.CallSSE(ctx, endpoint, method, params)
	default:
		return nil, fmt.Errorf("unknown gateway transport %q", transport)
	}
}

// CallHTTP posts a JSON-RPC request and decodes the JSON response.
func (c *Client) CallHTTP(ctx context.Context, endpoint, method string, params map[string]any) (json.RawMessage, error) {
	body, err := c.post(ctx, endpoint, method, params)
	if err != nil {
		return nil, err
	}
	return decodeRPC(body)
}

// CallSSE posts a JSON-RPC request and reads the first data event off the
// SSE response stream.
func (c *Client) CallSSE(ctx context.Context, endpoint, method string, params map[string]any) (json.RawMessage, error) {
	payload, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: orEmpty(params)})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sse call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RPCError{Code: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode), Data: strings.TrimSpace(string(body))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(line[len("data: "):])
		if data == "" {
			continue
		}
		result, err := decodeRPC([]byte(data))
		if err != nil {
			// Skip non-RPC keepalive events.
			if _, ok := err.(*RPCError); ok {
				return nil, err
			}
			continue
		}
		return result, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sse read: %w", err)
	}
	return nil, fmt.Errorf("no valid response on SSE stream")
}

// CallWS sends a JSON-RPC request over a cached WebSocket connection and
// waits for one response frame.
func (c *Client) CallWS(ctx context.Context, endpoint, method string, params map[string]any) (json.RawMessage, error) {
	sess, err := c.wsConn(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	// One exchange at a time per connection, so concurrent callers
	// cannot interleave frames or steal each other's responses.
	sess.mu.Lock()
	defer sess.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: orEmpty(params)}
	if err := sess.conn.WriteJSON(req); err != nil {
		c.dropWS(endpoint)
		return nil, fmt.Errorf("ws send: %w", err)
	}

	var resp rpcResponse
	if err := sess.conn.ReadJSON(&resp); err != nil {
		c.dropWS(endpoint)
		return nil, fmt.Errorf("ws receive: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// ListTools lists the tools of the MCP server behind the gateway.
func (c *Client) ListTools(ctx context.Context, transport, endpoint string) (json.RawMessage, error) {
	return c.Call(ctx, transport, endpoint, "tools/list", nil)
}

// CallTool invokes one tool with arguments.
func (c *Client) CallTool(ctx context.Context, transport, endpoint, name string, arguments map[string]any) (json.RawMessage, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	return c.Call(ctx, transport, endpoint, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
}

// ListResources lists the resources of the MCP server behind the gateway.
func (c *Client) ListResources(ctx context.Context, transport, endpoint string) (json.RawMessage, error) {
	return c.Call(ctx, transport, endpoint, "resources/list", nil)
}

// ReadResource reads one resource by URI.
func (c *Client) ReadResource(ctx context.Context, transport, endpoint, uri string) (json.RawMessage, error) {
	return c.Call(ctx, transport, endpoint, "resources/read", map[string]any{"uri": uri})
}

func (c *Client) post(ctx context.Context, endpoint, method string, params map[string]any) ([]byte, error) {
	payload, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: orEmpty(params)})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RPCError{Code: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode), Data: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) wsConn(ctx context.Context, endpoint string) (*wsSession, error) {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if sess, ok := c.wsConns[endpoint]; ok {
		return sess, nil
	}

	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ws connect %s: %w", endpoint, err)
	}
	sess := &wsSession{conn: conn}
	c.wsConns[endpoint] = sess
	return sess, nil
}

func (c *Client) dropWS(endpoint string) {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if sess, ok := c.wsConns[endpoint]; ok {
		_ = sess.conn.Close()
		delete(c.wsConns, endpoint)
	}
}

func decodeRPC(body []byte) (json.RawMessage, error) {
	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse rpc response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func orEmpty(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}
