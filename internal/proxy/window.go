package proxy

import (
	"sync"
	"time"
)

// windowSpan is the sliding interval the per-minute limit is measured over.
const windowSpan = time.Minute

// Window is a sliding 60-second window of request timestamps. Entries older
// than the span are pruned on every check. A rejected request is not
// counted against the window.
type Window struct {
	mu    sync.Mutex
	limit int
	times []time.Time
}

// NewWindow creates a window enforcing the given requests-per-minute limit.
// A non-positive limit disables the check.
func NewWindow(limit int) *Window {
	return &Window{limit: limit}
}

// Allow prunes expired entries, then admits the request at the given
// instant if the window has room, recording it. The explicit now parameter
// keeps tests clock-free.
func (w *Window) Allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.times[:0]
	for _, t := range w.times {
		if now.Sub(t) < windowSpan {
			kept = append(kept, t)
		}
	}
	w.times = kept

	if w.limit > 0 && len(w.times) >= w.limit {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Count returns the number of admitted requests still inside the window.
func (w *Window) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for _, t := range w.times {
		if now.Sub(t) < windowSpan {
			n++
		}
	}
	return n
}
