// Package toast turns "notification" push events into transient alerts.
// A few are visible at once; the rest wait in order and are shown as
// visible ones expire or are dismissed.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/powerboard/tui/internal/clock"
	"github.com/powerboard/tui/internal/gateway"
	"github.com/powerboard/tui/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxVisible = 3
	DefaultDuration   = 4 * time.Second
)

// Toast is one transient alert.
type Toast struct {
	ID        string
	Message   string
	ShownAt   time.Time
	ExpiresAt time.Time
}

// Options configure a Dispatcher. Zero values take the defaults.
type Options struct {
	MaxVisible int
	Duration   time.Duration
	Clock      clock.Clock
	Metrics    *metrics.Gateway
}

type entry struct {
	toast Toast
	timer clock.Timer
}

// Dispatcher owns the visible toasts and the waiting queue. Toasts are
// not matched against the notification store, so a pushed notification
// can also show up in the next fetch.
type Dispatcher struct {
	max     int
	ttl     time.Duration
	clock   clock.Clock
	metrics *metrics.Gateway

	mu       sync.Mutex
	visible  []*entry
	pending  []Toast
	closed   bool
	detach   func()
	onChange func()
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		max:     opts.MaxVisible,
		ttl:     opts.Duration,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
	if d.max <= 0 {
		d.max = DefaultMaxVisible
	}
	if d.ttl <= 0 {
		d.ttl = DefaultDuration
	}
	if d.clock == nil {
		d.clock = clock.New()
	}
	return d
}

// Attach subscribes to events once. Calling it again is a no-op; the
// returned function detaches.
func (d *Dispatcher) Attach(events *gateway.Dispatcher) (detach func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detach == nil {
		d.detach = events.Subscribe(d.handle)
	}
	return d.detach
}

// OnChange registers fn, called outside the lock whenever the visible set
// changes.
func (d *Dispatcher) OnChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

func (d *Dispatcher) handle(ev gateway.Event) {
	if ev.Type != gateway.EventNotification {
		return
	}
	d.Push(ev.Message)
}

// Push enqueues a toast and returns its id, or "" after Close.
func (d *Dispatcher) Push(message string) string {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ""
	}
	t := Toast{ID: uuid.NewString(), Message: message}
	d.pending = append(d.pending, t)
	d.promoteLocked()
	d.unlockAndNotify()

	d.metrics.Toast()
	log.Debug().Str("toast", t.ID).Msg("toast enqueued")
	return t.ID
}

// promoteLocked moves waiting toasts into free visible slots and starts
// their expiry timers.
func (d *Dispatcher) promoteLocked() {
	for len(d.visible) < d.max && len(d.pending) > 0 {
		t := d.pending[0]
		d.pending = d.pending[1:]
		now := d.clock.Now()
		t.ShownAt = now
		t.ExpiresAt = now.Add(d.ttl)
		e := &entry{toast: t}
		id := t.ID
		e.timer = d.clock.AfterFunc(d.ttl, func() { d.Dismiss(id) })
		d.visible = append(d.visible, e)
	}
}

// Dismiss removes a visible or waiting toast. Unknown ids are ignored.
func (d *Dispatcher) Dismiss(id string) {
	d.mu.Lock()
	for i, e := range d.visible {
		if e.toast.ID == id {
			e.timer.Stop()
			d.visible = append(d.visible[:i], d.visible[i+1:]...)
			d.promoteLocked()
			d.unlockAndNotify()
			return
		}
	}
	for i, t := range d.pending {
		if t.ID == id {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

// Visible returns the shown toasts, oldest first.
func (d *Dispatcher) Visible() []Toast {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Toast, len(d.visible))
	for i, e := range d.visible {
		out[i] = e.toast
	}
	return out
}

// Pending returns how many toasts wait for a free slot.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close detaches from events, stops every timer and drops all toasts.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	detach := d.detach
	for _, e := range d.visible {
		e.timer.Stop()
	}
	d.visible = nil
	d.pending = nil
	d.unlockAndNotify()

	if detach != nil {
		detach()
	}
}

func (d *Dispatcher) unlockAndNotify() {
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}
