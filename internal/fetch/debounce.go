package fetch

import (
	"sync"
	"time"
)

const DefaultDebounceWindow = 300 * time.Millisecond

// Debouncer coalesces triggers arriving within window and runs only the last one
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timer  *time.Timer
	gen    uint64
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window}
}

// Trigger schedules fn after the window, replacing anything still pending
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		current := gen == d.gen
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Stop drops the pending trigger, if any
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) Window() time.Duration {
	return d.window
}
