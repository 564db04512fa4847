package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/powerboard/tui/internal/logging"
)

// Signals posted by component observers. They carry no state: the model
// re-reads the component when one arrives, so dropping a signal while the
// queue is full loses nothing.
type (
	guardMsg   struct{}
	gatewayMsg struct{}
	storeMsg   struct{}
	toastMsg   struct{}
	eventMsg   struct{}
	logMsg     struct{ line logging.Line }
)

// bridge carries observer callbacks, which run on component goroutines,
// into the Bubble Tea loop. Posting never blocks.
type bridge struct {
	ch chan tea.Msg
}

func newBridge() *bridge {
	return &bridge{ch: make(chan tea.Msg, 256)}
}

func (b *bridge) post(msg tea.Msg) {
	select {
	case b.ch <- msg:
	default:
	}
}

// listen waits for the next signal.
func (b *bridge) listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}
