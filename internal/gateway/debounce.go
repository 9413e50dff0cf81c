package gateway

import (
	"sync"
	"time"
)

// debouncer runs fn immediately on the first call, then at most once more
// at the end of each cooldown window if further calls arrived meanwhile.
type debouncer struct {
	cooldown time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

func newDebouncer(cooldown time.Duration, fn func()) *debouncer {
	return &debouncer{cooldown: cooldown, fn: fn}
}

func (d *debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.pending = true
		return
	}
	d.timer = time.AfterFunc(d.cooldown, d.cooldownElapsed)
	go d.fn()
}

func (d *debouncer) cooldownElapsed() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.pending {
		d.timer = nil
		return
	}
	d.pending = false
	d.timer = time.AfterFunc(d.cooldown, d.cooldownElapsed)
	go d.fn()
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
