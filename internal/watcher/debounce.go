package watcher

import (
	"sort"
	"sync"
	"time"
)

// Batch is the set of files that changed during one quiet period.
type Batch struct {
	Paths []string
	Op    Op
}

// Debouncer coalesces events until none arrive for its delay, then emits
// them as one Batch. Each new event restarts the delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]Op
	timer   *time.Timer
	batches chan Batch
	stopped bool
}

// NewDebouncer creates a debouncer. A non-positive delay uses
// DefaultDebounce.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]Op),
		batches: make(chan Batch, 1),
	}
}

// Add records an event and restarts the quiet period.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[ev.Path] |= ev.Op
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.Flush)
		return
	}
	d.timer.Reset(d.delay)
}

// Batches delivers coalesced batches.
func (d *Debouncer) Batches() <-chan Batch {
	return d.batches
}

// Pending returns the number of files waiting for the quiet period.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush emits pending events immediately. If an earlier batch has not been
// received yet the pending events are merged into it.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	select {
	case prev := <-d.batches:
		for _, p := range prev.Paths {
			d.pending[p] |= prev.Op
		}
	default:
	}

	var b Batch
	for p, op := range d.pending {
		b.Paths = append(b.Paths, p)
		b.Op |= op
	}
	sort.Strings(b.Paths)
	d.pending = make(map[string]Op)
	d.batches <- b
}

// Stop discards pending events. No batch is emitted after Stop returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]Op)
}
