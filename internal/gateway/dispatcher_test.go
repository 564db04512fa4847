package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherOrderAndUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var got []string
	unsubA := d.Subscribe(func(ev Event) { got = append(got, "a:"+ev.Message) })
	d.Subscribe(func(ev Event) { got = append(got, "b:"+ev.Message) })
	assert.Equal(t, 2, d.Len())

	d.Publish(Event{Message: "1"})
	unsubA()
	unsubA()
	d.Publish(Event{Message: "2"})

	assert.Equal(t, []string{"a:1", "b:1", "b:2"}, got)
	assert.Equal(t, 1, d.Len())
}

func TestDispatcherHandlerMaySubscribe(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	d.Subscribe(func(Event) {
		calls++
		d.Subscribe(func(Event) { calls++ })
	})
	d.Publish(Event{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, d.Len())
}
