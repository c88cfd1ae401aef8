package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestCallHTTP(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotMethod = req.Method
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"tools": []string{"search"}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	result, err := c.ListTools(context.Background(), "http", "/mcp")
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if gotMethod != "tools/list" {
		t.Errorf("method = %q, want tools/list", gotMethod)
	}
	var parsed struct {
		Tools []string `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(parsed.Tools) != 1 || parsed.Tools[0] != "search" {
		t.Errorf("tools = %v, want [search]", parsed.Tools)
	}
}

func TestCallToolSendsArguments(t *testing.T) {
	var gotParams map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotParams = req.Params
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{"ok": true},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.CallTool(context.Background(), "http", "/mcp", "search", map[string]any{"query": "dns"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if gotParams["name"] != "search" {
		t.Errorf("params name = %v, want search", gotParams["name"])
	}
	args, ok := gotParams["arguments"].(map[string]any)
	if !ok || args["query"] != "dns" {
		t.Errorf("params arguments = %v, want query=dns", gotParams["arguments"])
	}
}

func TestCallHTTPRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.CallHTTP(context.Background(), "/mcp", "no/such", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("code = %d, want -32601", rpcErr.Code)
	}
}

func TestCallHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.CallHTTP(context.Background(), "/mcp", "tools/list", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *RPCError", err)
	}
	if rpcErr.Code != http.StatusBadGateway {
		t.Errorf("code = %d, want 502", rpcErr.Code)
	}
	if rpcErr.Data != "gateway down" {
		t.Errorf("data = %q, want gateway down", rpcErr.Data)
	}
}

func TestCallSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: \n\n")
		fmt.Fprint(w, `data: {"jsonrpc":"2.0","id":1,"result":{"status":"ok"}}`+"\n\n")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	result, err := c.CallSSE(context.Background(), "/message", "tools/list", nil)
	if err != nil {
		t.Fatalf("CallSSE: %v", err)
	}
	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if parsed.Status != "ok" {
		t.Errorf("status = %q, want ok", parsed.Status)
	}
}

func TestCallSSEEmptyStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": nothing here\n\n")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.CallSSE(context.Background(), "/message", "tools/list", nil)
	if err == nil {
		t.Fatal("expected error on empty stream")
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if !c.Healthy(context.Background()) {
		t.Error("Healthy = false, want true")
	}

	down := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if down.Healthy(context.Background()) {
		t.Error("Healthy = true for unreachable gateway")
	}
}

func TestUnknownTransport(t *testing.T) {
	c := New(Config{})
	defer func() { _ = c.Close() }()
	if _, err := c.Call(context.Background(), "carrier-pigeon", "/mcp", "tools/list", nil); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestCallWS(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			_ = conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  map[string]any{"method": req.Method},
			})
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	defer func() { _ = c.Close() }()

	for i := 0; i < 2; i++ {
		result, err := c.CallWS(context.Background(), "/ws", "tools/list", nil)
		if err != nil {
			t.Fatalf("CallWS #%d: %v", i+1, err)
		}
		var parsed struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(result, &parsed); err != nil {
			t.Fatalf("unmarshal result: %v", err)
		}
		if parsed.Method != "tools/list" {
			t.Errorf("echoed method = %q, want tools/list", parsed.Method)
		}
	}
	if hits != 1 {
		t.Errorf("ws connections = %d, want 1 (connection should be reused)", hits)
	}
}

func TestCallWSConcurrentCallersGetOwnResponses(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			_ = conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  map[string]any{"method": req.Method},
			})
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	defer func() { _ = c.Close() }()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			method := fmt.Sprintf("tools/call-%d", g)
			for i := 0; i < 20; i++ {
				result, err := c.CallWS(context.Background(), "/ws", method, nil)
				if err != nil {
					t.Errorf("CallWS %s: %v", method, err)
					return
				}
				var parsed struct {
					Method string `json:"method"`
				}
				if err := json.Unmarshal(result, &parsed); err != nil {
					t.Errorf("unmarshal result: %v", err)
					return
				}
				if parsed.Method != method {
					t.Errorf("got response for %q, want %q", parsed.Method, method)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestReadResource(t *testing.T) {
	var gotParams map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotParams = req.Params
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{"contents": []any{}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if _, err := c.ReadResource(context.Background(), "http", "/mcp", "file:///etc/hosts"); err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if gotParams["uri"] != "file:///etc/hosts" {
		t.Errorf("uri param = %v, want file:///etc/hosts", gotParams["uri"])
	}
}
