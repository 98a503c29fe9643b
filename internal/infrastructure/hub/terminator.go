package hub

import (
	"sync"
	"time"
)

// Terminator fires a single stop signal after a grace delay. Scheduling more
// than once has no further effect, and a cancelled terminator never fires.
type Terminator struct {
	mu        sync.Mutex
	timer     *time.Timer
	scheduled bool
	cancelled bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewTerminator() *Terminator {
	return &Terminator{done: make(chan struct{})}
}

// Schedule arms the stop signal. It reports whether this call armed it.
func (t *Terminator) Schedule(grace time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.scheduled || t.cancelled {
		return false
	}
	t.scheduled = true
	t.timer = time.AfterFunc(grace, t.fire)
	return true
}

// Done is closed once the grace delay of a scheduled stop has elapsed.
func (t *Terminator) Done() <-chan struct{} {
	return t.done
}

func (t *Terminator) Scheduled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scheduled
}

// Cancel disarms a pending stop.
func (t *Terminator) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *Terminator) fire() {
	t.mu.Lock()
	cancelled := t.cancelled
	t.mu.Unlock()

	if cancelled {
		return
	}
	t.closeOnce.Do(func() { close(t.done) })
}
