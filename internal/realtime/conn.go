package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	v1 "chatkit/wire/v1"
)

// ConnState is the lifecycle state of a Conn.
type ConnState int32

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
)

// String returns the string representation of a ConnState.
func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ConnConfig controls dial, write, and reconnect behavior.
type ConnConfig struct {
	// URL is the websocket endpoint, including the access token query
	// parameter. It is fixed for the lifetime of the Conn; a new URL
	// means a new Conn.
	URL string

	// Reconnect backoff: delay grows exponentially from Base up to Max,
	// with +/- Jitter fraction applied, and resets on a successful open.
	// MaxAttempts of 0 retries indefinitely.
	ReconnectBase   time.Duration
	ReconnectMax    time.Duration
	ReconnectJitter float64
	MaxAttempts     int

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = defaultReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = defaultReconnectMax
	}
	if c.ReconnectMax < c.ReconnectBase {
		c.ReconnectMax = c.ReconnectBase
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
	return c
}

// Conn owns a single bidirectional websocket to the realtime endpoint.
//
// Inbound frames are decoded and broadcast through the Registry. An
// abnormal close schedules a reconnect; an explicit Close or a clean
// remote close (normal closure status) does not. At most one physical
// connection exists per Conn at any time.
type Conn struct {
	log      *slog.Logger
	cfg      ConnConfig
	registry *Registry
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     ConnState
	ws        *websocket.Conn
	reconnect *time.Timer
	attempts  int
	closed    bool

	closeOnce sync.Once
}

// NewConn constructs a Conn. It does not dial; call Connect.
// The URL must be well-formed; callers that lack a token or target must
// not construct a Conn at all.
func NewConn(log *slog.Logger, cfg ConnConfig, registry *Registry, metrics *Metrics) (*Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrNoURL
	}
	if registry == nil {
		registry = NewRegistry(log)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		log:      log,
		cfg:      cfg.withDefaults(),
		registry: registry,
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Registry returns the handler registry fed by this connection.
func (c *Conn) Registry() *Registry { return c.registry }

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the socket is open.
func (c *Conn) IsConnected() bool { return c.State() == StateOpen }

// Connect dials the endpoint. It is a no-op while a connection is
// already connecting or open, and an error after Close. A failed dial
// schedules a reconnect before returning the error.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	ws, resp, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		c.log.Warn("ws.dial.fail", "url", redactURL(c.cfg.URL), "err", err)
		c.mu.Lock()
		c.state = StateClosed
		if !c.closed {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return err
	}

	ws.SetReadLimit(c.cfg.ReadLimit)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "client closing")
		return ErrConnClosed
	}
	c.ws = ws
	c.state = StateOpen
	c.attempts = 0
	c.mu.Unlock()

	c.log.Info("ws.open", "url", redactURL(c.cfg.URL))
	go c.readLoop(ws)
	return nil
}

// Send marshals env and writes it only when the connection is open.
// It reports success and never returns an error to the caller: outbound
// frames are fire-and-forget, dropped when not connected.
func (c *Conn) Send(ctx context.Context, env v1.Envelope) bool {
	c.mu.Lock()
	ws := c.ws
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || ws == nil {
		c.metrics.SendDrops.Inc()
		c.log.Warn("ws.send.drop", "type", env.Type, "state", c.State().String())
		return false
	}

	b, err := json.Marshal(env)
	if err != nil {
		c.metrics.SendDrops.Inc()
		c.log.Warn("ws.send.marshal.fail", "type", env.Type, "err", err)
		return false
	}

	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	if err := ws.Write(wctx, websocket.MessageText, b); err != nil {
		c.metrics.SendDrops.Inc()
		c.log.Warn("ws.write.fail", "type", env.Type, "err", err)
		return false
	}

	c.metrics.Sends.Inc()
	return true
}

// Close tears the connection down: cancels any pending reconnect, closes
// the live socket with a normal closure code, and makes the Conn final.
// Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.state = StateClosed
		if c.reconnect != nil {
			c.reconnect.Stop()
			c.reconnect = nil
		}
		ws := c.ws
		c.ws = nil
		c.mu.Unlock()

		c.cancel()
		if ws != nil {
			_ = ws.Close(websocket.StatusNormalClosure, "client closing")
		}
		c.log.Info("ws.teardown")
	})
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(c.ctx)
		if err != nil {
			c.readFailed(ws, err)
			return
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.metrics.FramesDropped.Inc()
			c.log.Warn("ws.frame.drop", "err", err)
			continue
		}

		c.metrics.FramesReceived.Inc()
		c.registry.Dispatch(env)
	}
}

func (c *Conn) readFailed(ws *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A loop from an earlier physical connection must not touch state.
	if c.ws != ws {
		return
	}
	c.ws = nil
	c.state = StateClosed

	if c.closed {
		return
	}

	if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure {
		c.log.Info("ws.close.clean")
		return
	}

	c.log.Info("ws.close.abnormal", "close_status", websocket.CloseStatus(err), "err", err)
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms exactly one reconnect timer. c.mu held.
func (c *Conn) scheduleReconnectLocked() {
	if c.reconnect != nil {
		return
	}

	c.attempts++
	if c.cfg.MaxAttempts > 0 && c.attempts > c.cfg.MaxAttempts {
		c.log.Error("ws.reconnect.giveup", "attempts", c.attempts-1)
		return
	}

	delay := reconnectDelay(c.cfg, c.attempts)
	c.metrics.Reconnects.Inc()
	c.log.Info("ws.reconnect.schedule", "attempt", c.attempts, "delay", delay.String())

	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		c.mu.Unlock()
		_ = c.Connect(c.ctx)
	})
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	u.RawQuery = ""
	return u.String()
}
