// Package tictacclient is a websocket client for one game on a tictac-relay server.
// It reconnects with backoff after a dropped connection and keeps the link alive with pings.
package tictacclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/tictac-relay/pkg/tictacdto"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var ErrNotConnected = errors.New("tictacclient: not connected")

type (
	MessageCallback func(msg *tictacdto.ServerMessage)
	StateCallback   func(state State)
	// TokenProvider returns the bearer token for each handshake.
	TokenProvider func() string
)

type Client struct {
	url   string
	token TokenProvider

	maxReconnectAttempts int
	pingInterval         time.Duration
	dialTimeout          time.Duration

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	cbMu     sync.RWMutex
	msgCbs   []MessageCallback
	stateCbs []StateCallback

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Client)

// WithReconnect sets how many redial attempts follow a dropped connection; 0 disables.
func WithReconnect(attempts int) Option { return func(c *Client) { c.maxReconnectAttempts = attempts } }

func WithPingInterval(d time.Duration) Option { return func(c *Client) { c.pingInterval = d } }

func WithDialTimeout(d time.Duration) Option { return func(c *Client) { c.dialTimeout = d } }

// New builds a client for baseURL (http, https, ws or wss) and gameID.
func New(baseURL, gameID string, token TokenProvider, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(base, "http://"), strings.HasPrefix(base, "https://"):
		base = "ws" + strings.TrimPrefix(base, "http")
	}
	c := &Client{
		url:                  base + "/ws/" + url.PathEscape(gameID),
		token:                token,
		maxReconnectAttempts: 5,
		pingInterval:         30 * time.Second,
		dialTimeout:          10 * time.Second,
		state:                StateDisconnected,
		stopCh:               make(chan struct{}),
	}
	for _, o := range opts { o(c) }
	return c
}

// Connect performs the first handshake. Failures here are returned, not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	c.attach(conn)
	return nil
}

func (c *Client) CreateGame(ctx context.Context) error {
	return c.send(ctx, frame{Type: tictacdto.TypeCreateGame})
}

func (c *Client) JoinGame(ctx context.Context) error {
	return c.send(ctx, frame{Type: tictacdto.TypeJoinGame})
}

func (c *Client) Move(ctx context.Context, pos int) error {
	return c.send(ctx, frame{Type: tictacdto.TypeMakeMove, Position: &pos})
}

func (c *Client) Leave(ctx context.Context) error {
	return c.send(ctx, frame{Type: tictacdto.TypeLeaveGame})
}

func (c *Client) OnMessage(cb MessageCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.msgCbs = append(c.msgCbs, cb)
}

func (c *Client) OnStateChange(cb StateCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.stateCbs = append(c.stateCbs, cb)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops reconnecting, closes the socket and waits for the loops to exit.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.setState(StateDisconnected)
		return nil
	}
}

type frame struct {
	Type     string `json:"type"`
	Position *int   `json:"position,omitempty"`
}

func (c *Client) send(ctx context.Context, f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, f)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	hdr := http.Header{}
	if c.token != nil {
		if tok := strings.TrimSpace(c.token()); tok != "" {
			hdr.Set("Authorization", "Bearer "+tok)
		}
	}
	conn, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      hdr,
	})
	return conn, err
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.stopping() {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "close")
		return
	}
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)
	c.wg.Add(1)
	go c.run(conn)
}

// run owns one connection: reads until it fails, then hands over to reconnect.
func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.wg.Add(1)
	go c.pingLoop(ctx, conn)

	for {
		var msg tictacdto.ServerMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			break
		}
		c.cbMu.RLock()
		cbs := append([]MessageCallback(nil), c.msgCbs...)
		c.cbMu.RUnlock()
		for _, cb := range cbs {
			cb(&msg)
		}
	}
	cancel()
	if c.stopping() {
		return
	}
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, "reconnect")
	c.setState(StateDisconnected)
	c.reconnect()
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	if c.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// closing makes the reader fail and start a reconnect
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *Client) reconnect() {
	if c.maxReconnectAttempts <= 0 {
		c.setState(StateFailed)
		return
	}
	c.setState(StateReconnecting)
	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoffDuration(attempt)):
		}
		conn, err := c.dial(context.Background())
		if err != nil {
			continue
		}
		c.attach(conn)
		return
	}
	c.setState(StateFailed)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	c.cbMu.RLock()
	cbs := append([]StateCallback(nil), c.stateCbs...)
	c.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (c *Client) stopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
