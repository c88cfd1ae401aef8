package gateway

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/gateward/internal/approval"
	"github.com/ppiankov/gateward/internal/launcher"
	"github.com/ppiankov/gateward/internal/registry"
)

// fakeHandle simulates a bridge process. SIGTERM obedience is configurable
// so the kill escalation path can be exercised.
type fakeHandle struct {
	mu          sync.Mutex
	pid         int
	alive       bool
	ignoresTerm bool
	killed      bool
}

func (f *fakeHandle) PID() int { return f.pid }

func (f *fakeHandle) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeHandle) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ignoresTerm {
		f.alive = false
	}
	return nil
}

func (f *fakeHandle) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	f.killed = true
	return nil
}

func (f *fakeHandle) Wait(time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.alive
}

func (f *fakeHandle) WaitDone()      {}
func (f *fakeHandle) Stdout() string { return "" }
func (f *fakeHandle) Stderr() string { return "" }

// fakeLauncher records launch specs and hands out fake handles.
type fakeLauncher struct {
	mu      sync.Mutex
	specs   []launcher.Spec
	nextPID int
	fail    error
	handles []*fakeHandle
}

func (f *fakeLauncher) Launch(spec launcher.Spec) (launcher.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.specs = append(f.specs, spec)
	f.nextPID++
	h := &fakeHandle{pid: f.nextPID, alive: true}
	f.handles = append(f.handles, h)
	return h, nil
}

func newTestManager(l *fakeLauncher) *Manager {
	return New(Config{Launcher: l, Grace: 50 * time.Millisecond})
}

func TestStartStdioToSSE(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	desc, err := m.StartStdioToSSE(context.Background(), SSEOptions{
		Command: "echo hello",
		Port:    9001,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if !regexp.MustCompile(`^sse_\d+$`).MatchString(desc.ID) {
		t.Errorf("identifier %q does not match sse_<digits>", desc.ID)
	}
	if desc.SSEURL != "http://localhost:9001/sse" {
		t.Errorf("sse url = %q", desc.SSEURL)
	}
	if desc.MessageURL != "http://localhost:9001/message" {
		t.Errorf("message url = %q", desc.MessageURL)
	}

	spec := l.specs[0]
	if spec.Program != "supergateway" {
		t.Errorf("bridge binary = %q", spec.Program)
	}
	joined := strings.Join(spec.Args, " ")
	for _, want := range []string{"--stdio echo hello", "--port 9001", "--ssePath /sse", "--messagePath /message"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, spec.Args)
		}
	}

	list := m.List()
	if len(list) != 1 || list[0].ID != desc.ID || list[0].Status != registry.StatusRunning {
		t.Fatalf("expected one running entry, got %+v", list)
	}
}

func TestStartDenylisted(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	_, err := m.StartStdioToSSE(context.Background(), SSEOptions{
		Command: "sudo rm -rf /",
		Port:    9001,
	})
	var se *SecurityError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SecurityError, got %v", err)
	}
	if len(l.specs) != 0 {
		t.Error("no process may be launched for a denylisted command")
	}
	if len(m.List()) != 0 {
		t.Error("nothing may be registered for a denylisted command")
	}
}

func TestStartApprovalDenied(t *testing.T) {
	l := &fakeLauncher{}
	m := New(Config{Launcher: l, Approver: approval.Auto(false)})

	_, err := m.StartStdioToSSE(context.Background(), SSEOptions{
		Command:         "echo hello",
		Port:            9001,
		RequireApproval: true,
	})
	if !errors.Is(err, ErrApprovalDenied) {
		t.Fatalf("expected ErrApprovalDenied, got %v", err)
	}
	if len(l.specs) != 0 {
		t.Error("no process may be launched when approval is denied")
	}
}

func TestStartSSEToStdioSkipsDenylist(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	// A URL containing a denylisted substring must still be allowed:
	// remote URLs are not local commands.
	desc, err := m.StartSSEToStdio(context.Background(), StdioOptions{
		SSEURL:  "https://mcp.example.com/sudo%20rm/sse",
		Headers: map[string]string{"Authorization": "Bearer tok"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(desc.ID, "stdio_") {
		t.Errorf("identifier %q should have stdio_ prefix", desc.ID)
	}

	joined := strings.Join(l.specs[0].Args, " ")
	if !strings.Contains(joined, "--sse https://mcp.example.com") {
		t.Errorf("args missing sse url: %v", l.specs[0].Args)
	}
	if !strings.Contains(joined, "--header Authorization: Bearer tok") {
		t.Errorf("args missing header: %v", l.specs[0].Args)
	}
}

func TestStartStreamableHTTP(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	desc, err := m.StartStreamableHTTP(context.Background(), HTTPOptions{
		Command:        "python server.py",
		Port:           8080,
		Stateful:       true,
		SessionTimeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(desc.ID, "http_") {
		t.Errorf("identifier %q should have http_ prefix", desc.ID)
	}
	if desc.HTTPURL != "http://localhost:8080/mcp" {
		t.Errorf("http url = %q", desc.HTTPURL)
	}
	if !desc.Stateful {
		t.Error("descriptor should carry the stateful flag")
	}

	joined := strings.Join(l.specs[0].Args, " ")
	for _, want := range []string{"--outputTransport streamableHttp", "--stateful", "--sessionTimeout 30000"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, l.specs[0].Args)
		}
	}
}

func TestLaunchFailureRegistersNothing(t *testing.T) {
	l := &fakeLauncher{fail: &launcher.LaunchError{Program: "supergateway", Err: errors.New("not found")}}
	m := newTestManager(l)

	_, err := m.StartStdioToSSE(context.Background(), SSEOptions{Command: "echo hello", Port: 9001})
	var le *launcher.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LaunchError, got %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("failed launch must not register a descriptor")
	}
}

func TestStopLifecycle(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	desc, err := m.StartStdioToSSE(context.Background(), SSEOptions{Command: "echo hello", Port: 9001})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := m.Stop(desc.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.ID != desc.ID || res.Status != "stopped" {
		t.Errorf("stop result = %+v", res)
	}
	if len(m.List()) != 0 {
		t.Error("expected empty list after stop")
	}
	if l.handles[0].Alive() {
		t.Error("expected process terminated")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	desc, err := m.StartStdioToSSE(context.Background(), SSEOptions{Command: "echo hello", Port: 9001})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	l.handles[0].mu.Lock()
	l.handles[0].ignoresTerm = true
	l.handles[0].mu.Unlock()

	if _, err := m.Stop(desc.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !l.handles[0].killed {
		t.Error("expected SIGKILL escalation for a process ignoring SIGTERM")
	}
}

func TestStopUnknown(t *testing.T) {
	m := newTestManager(&fakeLauncher{})
	_, err := m.Stop("sse_999")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanupIdempotent(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	for i := 0; i < 3; i++ {
		if _, err := m.StartStdioToSSE(context.Background(), SSEOptions{Command: "echo hello", Port: 9001 + i}); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}

	m.Cleanup()
	if len(m.List()) != 0 {
		t.Fatal("expected empty registry after cleanup")
	}

	// Second sweep observes an empty registry and is a no-op.
	m.Cleanup()
	if len(m.List()) != 0 {
		t.Fatal("second cleanup must stay empty")
	}
}

func TestIdentifiersUniqueWithinSecond(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		desc, err := m.StartStdioToSSE(context.Background(), SSEOptions{Command: "echo hello", Port: 9001})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if seen[desc.ID] {
			t.Fatalf("duplicate identifier %q", desc.ID)
		}
		seen[desc.ID] = true
	}
}

func TestAuditTrailCoversLifecycle(t *testing.T) {
	l := &fakeLauncher{}
	m := newTestManager(l)

	desc, err := m.StartStdioToSSE(context.Background(), SSEOptions{Command: "echo hello", Port: 9001})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.Stop(desc.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	var actions []string
	for _, ev := range m.AuditLog() {
		actions = append(actions, ev.Action+"/"+ev.Status)
	}
	want := []string{"start_stdio_to_sse_gateway/started", "stop_gateway/stopped"}
	if len(actions) != len(want) {
		t.Fatalf("audit = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("audit[%d] = %q, want %q", i, actions[i], want[i])
		}
	}
}

func TestStopUnknownIsAudited(t *testing.T) {
	m := newTestManager(&fakeLauncher{})
	_, _ = m.Stop("sse_404")

	events := m.AuditLog()
	if len(events) != 1 || events[0].Status != "not_found" {
		t.Fatalf("expected one not_found audit event, got %+v", events)
	}
}
