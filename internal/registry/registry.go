// Package registry tracks live gateway processes by identifier.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/gateward/internal/launcher"
)

// ErrNotFound is returned for lookups of unknown gateway identifiers.
var ErrNotFound = errors.New("gateway not found")

// Transport identifies the bridge direction a gateway runs.
type Transport string

const (
	StdioToSSE     Transport = "stdio_to_sse"
	SSEToStdio     Transport = "sse_to_stdio"
	StreamableHTTP Transport = "stdio_to_streamable_http"
)

// Gateway status values.
const (
	StatusRunning    = "running"
	StatusTerminated = "terminated"
)

// Descriptor is the registry's record of one gateway: identity, transport,
// and reachable URLs. Status reflects liveness at the time it was computed.
type Descriptor struct {
	ID         string    `json:"gateway_id"`
	Transport  Transport `json:"transport"`
	PID        int       `json:"pid"`
	Status     string    `json:"status"`
	Command    string    `json:"command,omitempty"`
	Port       int       `json:"port,omitempty"`
	SSEURL     string    `json:"sse_url,omitempty"`
	MessageURL string    `json:"message_url,omitempty"`
	HTTPURL    string    `json:"http_url,omitempty"`
	Stateful   bool      `json:"stateful,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

type entry struct {
	desc   Descriptor
	handle launcher.Handle
}

// Registry is a mutex-guarded mapping from identifier to live gateway.
// Construct one per manager; there is no package-level instance.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Add stores a descriptor with its process handle. The identifier must be
// unused; generated identifiers are unique so a collision is a caller bug.
func (r *Registry) Add(desc Descriptor, h launcher.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[desc.ID]; ok {
		return fmt.Errorf("duplicate gateway id %q", desc.ID)
	}
	r.entries[desc.ID] = entry{desc: desc, handle: h}
	r.order = append(r.order, desc.ID)
	return nil
}

// Get returns the descriptor and handle for an identifier.
func (r *Registry) Get(id string) (Descriptor, launcher.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, nil, fmt.Errorf("gateway %q: %w", id, ErrNotFound)
	}
	return e.desc, e.handle, nil
}

// List returns all descriptors in insertion order with liveness recomputed
// at call time. Status is never cached beyond this call.
func (r *Registry) List() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		d := e.desc
		if e.handle.Alive() {
			d.Status = StatusRunning
		} else {
			d.Status = StatusTerminated
		}
		out = append(out, d)
	}
	return out
}

// IDs returns the registered identifiers in insertion order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Remove deletes an identifier from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("gateway %q: %w", id, ErrNotFound)
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of registered gateways.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
