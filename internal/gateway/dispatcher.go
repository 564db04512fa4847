package gateway

import "sync"

// Handler receives decoded events.
type Handler func(Event)

// Dispatcher fans events out to registered handlers. The connection only
// ever publishes here, so listeners can come and go without touching the
// channel.
type Dispatcher struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]Handler
	order    []uint64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint64]Handler)}
}

// Subscribe registers h and returns a function that removes it. The
// returned function is idempotent.
func (d *Dispatcher) Subscribe(h Handler) (unsubscribe func()) {
	d.mu.Lock()
	d.next++
	id := d.next
	d.handlers[id] = h
	d.order = append(d.order, id)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}
}

func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Publish delivers ev to every handler registered at call time, in
// registration order.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	hs := make([]Handler, 0, len(d.order))
	for _, id := range d.order {
		hs = append(hs, d.handlers[id])
	}
	d.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// Len reports the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}
