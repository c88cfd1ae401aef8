// Package launcher starts and tracks child processes for gateway bridges.
// Liveness is recomputed from the process wait state on every query,
// never cached.
package launcher

import (
	"bytes"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Spec describes a child process to start.
type Spec struct {
	Program string
	Args    []string
	Dir     string
	Env     []string // nil inherits the parent environment
	Detach  bool     // start in a new session so the process outlives the parent
}

// LaunchError is returned when a process cannot be started.
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %q: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Launcher starts child processes. The interface exists so the gateway
// manager can be tested without spawning real bridges.
type Launcher interface {
	Launch(spec Spec) (Handle, error)
}

// Handle is a live view over one child process.
type Handle interface {
	// PID returns the OS process id.
	PID() int
	// Alive reports whether the process has not yet exited. Non-blocking.
	Alive() bool
	// Terminate sends SIGTERM.
	Terminate() error
	// Kill sends SIGKILL.
	Kill() error
	// Wait blocks until the process exits or the timeout elapses.
	// Returns false if the timeout elapsed first.
	Wait(timeout time.Duration) bool
	// WaitDone blocks until the process exits.
	WaitDone()
	// Stdout returns the output captured so far.
	Stdout() string
	// Stderr returns the error output captured so far.
	Stderr() string
}

// OS launches real child processes via os/exec.
type OS struct{}

// Launch starts the process with stdout and stderr captured. The call
// returns as soon as the process is running; it does not wait for exit.
//
// A detached process gets no capture: its output goes to the null
// device so that nothing ties it to pipes the launching process will
// close on exit. Stdout and Stderr report empty for such handles.
func (OS) Launch(spec Spec) (Handle, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}

	h := &osHandle{done: make(chan struct{})}
	if spec.Detach {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	} else {
		cmd.Stdout = &h.stdout
		cmd.Stderr = &h.stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Program: spec.Program, Err: err}
	}

	h.cmd = cmd
	h.pid = cmd.Process.Pid

	// Reap the child exactly once; everyone else watches the done channel.
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()

	return h, nil
}

type osHandle struct {
	cmd    *exec.Cmd
	pid    int
	done   chan struct{}
	stdout lockedBuffer
	stderr lockedBuffer
}

func (h *osHandle) PID() int { return h.pid }

func (h *osHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *osHandle) Terminate() error {
	if !h.Alive() {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *osHandle) Kill() error {
	if !h.Alive() {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (h *osHandle) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

func (h *osHandle) WaitDone() { <-h.done }

func (h *osHandle) Stdout() string { return h.stdout.String() }

func (h *osHandle) Stderr() string { return h.stderr.String() }

// lockedBuffer is written by exec's copier goroutine while callers may
// snapshot concurrently.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
