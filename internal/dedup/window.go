package dedup

import (
	"sync"
	"time"
)

// Window is a time-bounded membership set of recently seen message ids. The
// transport delivers at-least-once; every push-originated message passes
// through Observe before it may mutate any state. REST results bypass it,
// they merge by identity instead.
type Window struct {
	mu        sync.Mutex
	ttl       time.Duration
	seen      map[string]time.Time // id -> expiry
	lastSweep time.Time
	now       func() time.Time
}

// NewWindow creates a window with the given retention. The window only needs
// to outlive a retransmission burst; a few seconds is enough.
func NewWindow(ttl time.Duration) *Window {
	return &Window{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Observe reports whether the id is new within the current window, recording
// it either way. Expiry is lazy: expired entries are swept opportunistically
// on insert, never by timers.
func (w *Window) Observe(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if now.Sub(w.lastSweep) > w.ttl {
		for k, exp := range w.seen {
			if now.After(exp) {
				delete(w.seen, k)
			}
		}
		w.lastSweep = now
	}

	if exp, ok := w.seen[id]; ok && now.Before(exp) {
		return false
	}
	w.seen[id] = now.Add(w.ttl)
	return true
}

// Len returns the number of tracked ids, including not-yet-swept expired ones.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
