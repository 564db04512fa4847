// Package app is the root Bubble Tea model. Nothing protected renders
// until the session guard has verified the credential.
package app

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/powerboard/tui/internal/api"
	"github.com/powerboard/tui/internal/gateway"
	"github.com/powerboard/tui/internal/guard"
	"github.com/powerboard/tui/internal/logging"
	"github.com/powerboard/tui/internal/theme"
	"github.com/powerboard/tui/internal/toast"
	"github.com/powerboard/tui/internal/views/debug"
	"github.com/powerboard/tui/internal/views/detail"
	"github.com/powerboard/tui/internal/views/notifications"
	"github.com/powerboard/tui/internal/views/status"
	"github.com/powerboard/tui/internal/views/toasts"
	"github.com/rs/zerolog/log"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayNotifications
	OverlayDetail
	OverlayDebug
)

// Gateway is the realtime connection as the UI uses it.
type Gateway interface {
	Mount() error
	Unmount()
	State() gateway.State
	Attempts() int
	OnStateChange(func(gateway.State))
}

// Notifications is the notification store as the UI uses it.
type Notifications interface {
	FetchAll(ctx context.Context) error
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	UnreadCount() int
	Snapshot() []api.Notification
	OnChange(func())
}

// Toasts is the toast dispatcher as the UI uses it.
type Toasts interface {
	Attach(*gateway.Dispatcher) func()
	Visible() []toast.Toast
	Dismiss(id string)
	Close()
	OnChange(func())
}

// Deps are the components the app drives.
type Deps struct {
	Guard   *guard.Guard
	Loader  guard.Loader
	Gateway Gateway
	Events  *gateway.Dispatcher
	Store   Notifications
	Toasts  Toasts
	// User is shown in the status bar.
	User string
}

type (
	sessionCheckedMsg struct{}
	fetchDoneMsg      struct{ err error }
	mutationDoneMsg   struct{ err error }
	animTickMsg       struct{}
)

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
	bridge *bridge
	// unsubscribe is shared by value copies of the model.
	unsubscribe *func()

	keys   KeyMap
	width  int
	height int

	guardState guard.State
	started    bool
	overlay    Overlay
	ticking    bool

	statusBar status.Model
	panel     notifications.Model
	detail    detail.Model
	toasts    toasts.Model
	debug     debug.Model
}

// New creates the root model and registers the component observers.
func New(deps Deps) Model {
	ctx, cancel := context.WithCancel(context.Background())
	b := newBridge()
	unsub := func() {}
	m := Model{
		deps:        deps,
		ctx:         ctx,
		cancel:      cancel,
		bridge:      b,
		unsubscribe: &unsub,
		keys:        DefaultKeyMap(),
		statusBar:   status.New(),
		panel:       notifications.New(),
		toasts:      toasts.New(),
		debug:       debug.New(),
	}
	m.statusBar.User = deps.User

	if deps.Guard != nil {
		deps.Guard.OnChange(func(guard.State) { b.post(guardMsg{}) })
	}
	if deps.Gateway != nil {
		deps.Gateway.OnStateChange(func(gateway.State) { b.post(gatewayMsg{}) })
	}
	if deps.Store != nil {
		deps.Store.OnChange(func() { b.post(storeMsg{}) })
	}
	if deps.Toasts != nil {
		deps.Toasts.OnChange(func() { b.post(toastMsg{}) })
	}
	return m
}

// LogFunc returns a callback for logging.NewSink that mirrors log lines
// into the debug overlay.
func (m Model) LogFunc() func(logging.Line) {
	b := m.bridge
	return func(l logging.Line) { b.post(logMsg{line: l}) }
}

// Init starts the session check and the signal listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.listen(m.ctx), m.checkSession())
}

func (m Model) checkSession() tea.Cmd {
	g, loader, ctx := m.deps.Guard, m.deps.Loader, m.ctx
	return func() tea.Msg {
		g.Run(ctx, loader)
		return sessionCheckedMsg{}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.panel.Width = msg.Width
		m.panel.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case guardMsg:
		next, cmd := m.handleGuard()
		return next, tea.Batch(next.bridge.listen(next.ctx), cmd)

	case sessionCheckedMsg:
		return m.handleGuard()

	case gatewayMsg:
		m.statusBar.State = m.deps.Gateway.State().String()
		m.statusBar.Attempts = m.deps.Gateway.Attempts()
		return m, m.bridge.listen(m.ctx)

	case storeMsg:
		m.syncStore()
		return m, m.bridge.listen(m.ctx)

	case toastMsg:
		m.toasts.Sync(m.deps.Toasts.Visible())
		cmds := []tea.Cmd{m.bridge.listen(m.ctx)}
		if !m.ticking && m.toasts.Animating() {
			m.ticking = true
			cmds = append(cmds, animTick())
		}
		return m, tea.Batch(cmds...)

	case eventMsg:
		// The store is not patched from push events; an open panel
		// refetches instead.
		var cmd tea.Cmd
		if m.overlay == OverlayNotifications {
			cmd = m.fetch()
		}
		return m, tea.Batch(m.bridge.listen(m.ctx), cmd)

	case logMsg:
		m.debug.Add(msg.line)
		return m, m.bridge.listen(m.ctx)

	case fetchDoneMsg:
		m.panel.Loading = false
		m.panel.Err = ""
		if msg.err != nil {
			m.panel.Err = "Could not load notifications"
		}
		return m, nil

	case mutationDoneMsg:
		if msg.err != nil {
			m.panel.Err = "Server did not confirm: " + msg.err.Error()
		}
		return m, nil

	case animTickMsg:
		if m.toasts.Tick() {
			return m, animTick()
		}
		m.ticking = false
		return m, nil
	}

	return m, nil
}

func (m Model) handleGuard() (Model, tea.Cmd) {
	m.guardState = m.deps.Guard.State()
	switch m.guardState {
	case guard.Invalid:
		m.shutdown()
		return m, tea.Quit
	case guard.Valid:
		if !m.started {
			m.started = true
			return m, m.start()
		}
	}
	return m, nil
}

// start brings up the protected surface: realtime channel, toasts and the
// one-shot unread count.
func (m *Model) start() tea.Cmd {
	d := m.deps
	b := m.bridge
	if d.Toasts != nil && d.Events != nil {
		d.Toasts.Attach(d.Events)
	}
	if d.Events != nil {
		*m.unsubscribe = d.Events.Subscribe(func(gateway.Event) { b.post(eventMsg{}) })
	}
	if d.Gateway != nil {
		if err := d.Gateway.Mount(); err != nil {
			log.Warn().Err(err).Msg("gateway mount")
		}
	}
	return m.fetch()
}

func (m *Model) fetch() tea.Cmd {
	store, ctx := m.deps.Store, m.ctx
	if store == nil {
		return nil
	}
	m.panel.Loading = true
	return func() tea.Msg {
		return fetchDoneMsg{err: store.FetchAll(ctx)}
	}
}

func (m *Model) syncStore() {
	m.statusBar.Unread = m.deps.Store.UnreadCount()
	items := m.deps.Store.Snapshot()
	m.panel.SetItems(items)
	if m.detail.Note != nil {
		for _, it := range items {
			if it.ID == m.detail.Note.ID {
				m.detail = detail.New(it)
				break
			}
		}
	}
}

func animTick() tea.Cmd {
	return tea.Tick(toasts.Interval(), func(time.Time) tea.Msg { return animTickMsg{} })
}

func (m Model) markRead(id int64) tea.Cmd {
	store, ctx := m.deps.Store, m.ctx
	return func() tea.Msg {
		return mutationDoneMsg{err: store.MarkRead(ctx, id)}
	}
}

func (m Model) markAllRead() tea.Cmd {
	store, ctx := m.deps.Store, m.ctx
	return func() tea.Msg {
		return mutationDoneMsg{err: store.MarkAllRead(ctx)}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.shutdown()
		return m, tea.Quit
	}
	if m.guardState != guard.Valid {
		return m, nil
	}

	switch m.overlay {
	case OverlayNotifications:
		return m.handlePanelKey(msg)
	case OverlayDetail:
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNotifications
		case key.Matches(msg, m.keys.Enter):
			if n := m.detail.Note; n != nil && !n.Read {
				return m, m.markRead(n.ID)
			}
		}
		return m, nil
	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Notifications):
		m.overlay = OverlayNotifications
		return m, m.fetch()
	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
	case key.Matches(msg, m.keys.MarkAll):
		return m, m.markAllRead()
	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetch()
	case key.Matches(msg, m.keys.Dismiss):
		if vis := m.deps.Toasts.Visible(); len(vis) > 0 {
			m.deps.Toasts.Dismiss(vis[len(vis)-1].ID)
		}
	}
	return m, nil
}

func (m Model) handlePanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Notifications):
		m.overlay = OverlayNone
	case key.Matches(msg, m.keys.Up):
		m.panel.Up()
	case key.Matches(msg, m.keys.Down):
		m.panel.Down()
	case key.Matches(msg, m.keys.Enter):
		cur, ok := m.panel.Current()
		if !ok {
			return m, nil
		}
		m.detail = detail.New(cur)
		m.overlay = OverlayDetail
		if !cur.Read {
			return m, m.markRead(cur.ID)
		}
	case key.Matches(msg, m.keys.MarkAll):
		return m, m.markAllRead()
	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetch()
	}
	return m, nil
}

// shutdown releases the realtime channel and toast timers. Safe to call
// more than once.
func (m Model) shutdown() {
	m.cancel()
	if m.deps.Gateway != nil {
		m.deps.Gateway.Unmount()
	}
	if m.deps.Toasts != nil {
		m.deps.Toasts.Close()
	}
	if m.unsubscribe != nil {
		(*m.unsubscribe)()
	}
}

// Shutdown is shutdown for callers outside the program loop.
func (m Model) Shutdown() { m.shutdown() }

// View renders the full TUI. Nothing is drawn until the session is valid.
func (m Model) View() string {
	switch m.guardState {
	case guard.Pending:
		return ""
	case guard.Invalid:
		return theme.StyleDimmed.Render("Session expired. Redirecting to login...")
	}
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var main string
	switch m.overlay {
	case OverlayNotifications:
		main = m.panel.View()
	case OverlayDetail:
		main = m.detail.View()
	case OverlayDebug:
		main = m.debug.View(m.width, m.height-4)
	default:
		main = m.home()
	}

	sections := []string{m.statusBar.View()}
	if t := m.toasts.View(m.width); t != "" {
		sections = append(sections, t)
	}
	sections = append(sections, main,
		theme.StyleDimmed.Render("  n:notifications  A:mark all read  r:refresh  x:dismiss  d:log  q:quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) home() string {
	unread := m.statusBar.Unread
	msg := "You're all caught up."
	if unread == 1 {
		msg = "You have 1 unread notification."
	} else if unread > 1 {
		msg = "You have " + strconv.Itoa(unread) + " unread notifications."
	}
	return theme.StyleBorder.Width(max(m.width-2, 20)).Padding(1, 2).Render(
		theme.StyleHeader.Render("Powerboard") + "\n\n" + msg + "\n" +
			theme.StyleDimmed.Render("Press n to open the notification panel."))
}
