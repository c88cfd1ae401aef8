// Package audit records gateway and proxy lifecycle actions. The in-memory
// trail is the source callers read; persistence is a best-effort side
// channel that must never fail the operation being audited.
package audit

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Sink persists events. The hash-chained JSONL Log implements it.
type Sink interface {
	Record(Entry) error
}

// DropFunc is the named swallow-and-log policy applied when a sink write
// fails: the event stays in memory, the failure is reported locally, and
// the triggering operation proceeds.
type DropFunc func(ev Event, err error)

// StderrDrop is the default DropFunc. It warns on stderr.
func StderrDrop(ev Event, err error) {
	fmt.Fprintf(os.Stderr, "audit: dropped persistence of %q: %v\n", ev.Action, err)
}

// Trail is an append-only, mutex-guarded sequence of events.
type Trail struct {
	mu     sync.Mutex
	events []Event
	sink   Sink
	onDrop DropFunc
}

// Option configures a Trail.
type Option func(*Trail)

// WithSink attaches a persistence sink.
func WithSink(s Sink) Option {
	return func(t *Trail) { t.sink = s }
}

// WithDropFunc replaces the default stderr drop policy.
func WithDropFunc(f DropFunc) Option {
	return func(t *Trail) { t.onDrop = f }
}

// NewTrail creates an empty trail.
func NewTrail(opts ...Option) *Trail {
	t := &Trail{onDrop: StderrDrop}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Append records an event. It never fails: a sink error goes through the
// drop policy and the in-memory append still happens.
func (t *Trail) Append(ev Event) {
	// Stamp under the lock so append order and timestamp order agree.
	t.mu.Lock()
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	t.events = append(t.events, ev)
	t.mu.Unlock()

	if t.sink != nil {
		if err := t.sink.Record(toEntry(ev)); err != nil {
			t.onDrop(ev, err)
		}
	}
}

// Snapshot returns a defensive copy of all events in append order.
func (t *Trail) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len returns the number of recorded events.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}
