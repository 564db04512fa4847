// Package gateway keeps exactly one live, authenticated push channel to the
// realtime relay for as long as it is mounted, reconnecting after failures
// and publishing decoded events to a Dispatcher.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/powerboard/tui/internal/auth"
	"github.com/powerboard/tui/internal/clock"
	"github.com/powerboard/tui/internal/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultRetryDelay is the fixed spacing between reconnect attempts.
const DefaultRetryDelay = 3 * time.Second

// State is the lifecycle state of a Connection.
type State int

const (
	Idle State = iota
	Connecting
	Open
	BackingOff
	// Closed is only reached when the retry policy gives up.
	Closed
	Terminated
)

var stateNames = []string{"idle", "connecting", "open", "backing_off", "closed", "terminated"}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case BackingOff:
		return "backing_off"
	case Closed:
		return "closed"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ErrMounted is returned by Mount on an already mounted connection.
var ErrMounted = errors.New("gateway already mounted")

// Options configure a Connection. Origin, Token and Dispatcher are required.
type Options struct {
	// Origin is the page origin (http or https); the channel goes to the
	// same host with the matching ws scheme.
	Origin     string
	Path       string
	Token      auth.TokenFunc
	Dispatcher *Dispatcher
	Dialer     Dialer
	Clock      clock.Clock
	// Backoff spaces reconnect attempts. Nil means a fixed
	// DefaultRetryDelay forever.
	Backoff backoff.BackOff
	Metrics *metrics.Gateway
}

// Connection owns the lifecycle of the push channel.
type Connection struct {
	base       url.URL
	token      auth.TokenFunc
	dispatcher *Dispatcher
	dialer     Dialer
	clock      clock.Clock
	backoff    backoff.BackOff
	metrics    *metrics.Gateway

	mu       sync.Mutex
	state    State
	mounted  bool
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	retry    clock.Timer
	conn     Conn
	onState  func(State)
	notifyQ  []State
	attempts int
}

// New validates opts and creates an idle connection.
func New(opts Options) (*Connection, error) {
	if opts.Token == nil {
		return nil, errors.New("gateway: token accessor is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("gateway: dispatcher is required")
	}
	base, err := ChannelURL(opts.Origin, opts.Path)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		base:       *base,
		token:      opts.Token,
		dispatcher: opts.Dispatcher,
		dialer:     opts.Dialer,
		clock:      opts.Clock,
		backoff:    opts.Backoff,
		metrics:    opts.Metrics,
	}
	if c.dialer == nil {
		c.dialer = WebsocketDialer{}
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.backoff == nil {
		c.backoff = FixedBackoff(DefaultRetryDelay)
	}
	return c, nil
}

// ChannelURL derives the channel address from the page origin: same host,
// ws for http and wss for https.
func ChannelURL(origin, path string) (*url.URL, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse origin: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("gateway: unsupported origin scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("gateway: origin %q has no host", origin)
	}
	if path == "" {
		path = "/ws"
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}, nil
}

func (c *Connection) url(token string) string {
	u := c.base
	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// OnStateChange registers an observer. It is called outside the lock, so
// it may read the connection, but transitions can be observed late.
func (c *Connection) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns how many retries were scheduled since the last open.
func (c *Connection) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Mount starts the connect cycle in the background. A terminated
// connection can be mounted again; work left over from the previous
// mount is ignored.
func (c *Connection) Mount() error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return ErrMounted
	}
	c.gen++
	gen := c.gen
	c.mounted = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.attempts = 0
	c.backoff.Reset()
	c.setStateLocked(Connecting)
	c.unlockAndNotify()

	go c.connect(gen)
	return nil
}

// Unmount stops the pending retry, closes the open channel and cancels an
// in-flight token fetch. Nothing scheduled before it has any further
// effect.
func (c *Connection) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	conn := c.conn
	c.conn = nil
	c.cancel()
	c.setStateLocked(Terminated)
	c.unlockAndNotify()

	if conn != nil {
		conn.Close()
	}
	log.Debug().Msg("gateway unmounted")
}

func (c *Connection) liveLocked(gen uint64) bool {
	return c.mounted && c.gen == gen
}

func (c *Connection) connect(gen uint64) {
	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.setStateLocked(Connecting)
	c.unlockAndNotify()

	token, err := c.token(ctx)
	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("gateway token fetch failed")
		c.backOffLocked(gen)
		c.unlockAndNotify()
		return
	}
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.url(token))
	c.metrics.Dial(err == nil)

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("gateway open failed")
		c.backOffLocked(gen)
		c.unlockAndNotify()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.backoff.Reset()
	c.setStateLocked(Open)
	c.unlockAndNotify()

	log.Debug().Str("host", c.base.Host).Msg("gateway connected")
	go c.readLoop(conn, gen)
}

func (c *Connection) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, gen, err)
			return
		}
		ev, err := Decode(data)
		if err != nil {
			c.metrics.Frame(false)
			log.Warn().Str("frame", truncate(data, 128)).Msg("gateway discarded non-JSON frame")
			continue
		}
		c.metrics.Frame(true)

		c.mu.Lock()
		live := c.liveLocked(gen) && c.conn == conn
		c.mu.Unlock()
		if !live {
			return
		}
		c.dispatcher.Publish(ev)
	}
}

func (c *Connection) handleClose(conn Conn, gen uint64, cause error) {
	conn.Close()

	c.mu.Lock()
	if c.conn != conn || !c.liveLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	log.Warn().Err(cause).Msg("gateway closed, reconnecting")
	c.backOffLocked(gen)
	c.unlockAndNotify()
}

// backOffLocked schedules the single next attempt.
func (c *Connection) backOffLocked(gen uint64) {
	d := c.backoff.NextBackOff()
	if d == backoff.Stop {
		log.Error().Int("attempts", c.attempts).Msg("gateway giving up")
		c.setStateLocked(Closed)
		return
	}
	if c.retry != nil {
		c.retry.Stop()
	}
	c.attempts++
	c.metrics.RetryScheduled()
	c.setStateLocked(BackingOff)
	c.retry = c.clock.AfterFunc(d, func() { c.fireRetry(gen) })
}

func (c *Connection) fireRetry(gen uint64) {
	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.mu.Unlock()
	c.connect(gen)
}

func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.notifyQ = append(c.notifyQ, s)
	c.metrics.State(s.String(), stateNames)
}

// unlockAndNotify releases the lock, then reports queued transitions.
func (c *Connection) unlockAndNotify() {
	q := c.notifyQ
	c.notifyQ = nil
	fn := c.onState
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, s := range q {
		fn(s)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
