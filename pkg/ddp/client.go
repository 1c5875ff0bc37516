// Package ddp is a minimal Meteor DDP client. It mirrors published
// collections locally and hands out immutable snapshots of them.
package ddp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vjranagit/homeenergy/pkg/types"
)

var (
	// ErrClosed is returned once the connection has been shut down
	ErrClosed = errors.New("ddp: connection closed")
	// ErrConnectFailed is returned when the server rejects the protocol version
	ErrConnectFailed = errors.New("ddp: connect failed")
)

// SnapshotHandler receives a full copy of the mirrored collections
type SnapshotHandler func(types.Collections)

type Options struct {
	Logger        *slog.Logger
	OnSnapshot    SnapshotHandler
	BatchInterval time.Duration
	DialTimeout   time.Duration
}

type Option interface {
	apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) apply(o *Options) { f(o) }

func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Options) { o.Logger = l })
}

// WithSnapshotHandler sets the callback invoked after each batch of
// collection changes.
func WithSnapshotHandler(h SnapshotHandler) Option {
	return optionFunc(func(o *Options) { o.OnSnapshot = h })
}

// WithBatchInterval sets how long collection changes are coalesced before a
// snapshot is emitted.
func WithBatchInterval(d time.Duration) Option {
	return optionFunc(func(o *Options) { o.BatchInterval = d })
}

func WithDialTimeout(d time.Duration) Option {
	return optionFunc(func(o *Options) { o.DialTimeout = d })
}

// Subscription is the client-side record of a live subscription
type Subscription struct {
	ID     string
	Name   string
	Params []any
	Ready  bool
}

// Client is a connected DDP session
type Client struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	opts    Options
	session string

	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[string]*Subscription // by signature
	byID   map[string]*Subscription

	callsMu sync.Mutex
	calls   map[string]chan message

	mirror     *mirror
	flushMu    sync.Mutex
	flushTimer *time.Timer

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to a DDP endpoint and completes the connect handshake.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := Options{
		Logger:        slog.Default(),
		BatchInterval: 100 * time.Millisecond,
		DialTimeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt.apply(&o)
	}

	dialer := websocket.Dialer{HandshakeTimeout: o.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		logger: o.Logger.With("component", "ddp"),
		opts:   o,
		subs:   make(map[string]*Subscription),
		byID:   make(map[string]*Subscription),
		calls:  make(map[string]chan message),
		mirror: newMirror(),
		done:   make(chan struct{}),
	}

	if err := c.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	c.logger.Info("ddp session established", "url", url, "session", c.session)
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	if err := c.send(ctx, message{
		Msg:     "connect",
		Version: protocolVersion,
		Support: []string{protocolVersion},
	}); err != nil {
		return fmt.Errorf("failed to send connect: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.DialTimeout)
	}
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		var m message
		if err := c.conn.ReadJSON(&m); err != nil {
			return fmt.Errorf("failed to read connect reply: %w", err)
		}
		switch m.Msg {
		case "connected":
			c.session = m.Session
			return nil
		case "failed":
			return fmt.Errorf("%w: server wants version %q", ErrConnectFailed, m.Version)
		}
		// server_id and anything else before connected is ignored
	}
}

// Session returns the server-assigned session id
func (c *Client) Session() string {
	return c.session
}

// Subscribe issues a sub message. A subscription with the same name and
// parameters as a live one is not sent again.
func (c *Client) Subscribe(ctx context.Context, name string, params ...any) error {
	sig, err := signature(name, params)
	if err != nil {
		return err
	}

	c.subsMu.Lock()
	if _, ok := c.subs[sig]; ok {
		c.subsMu.Unlock()
		c.logger.Debug("subscription already active", "name", name)
		return nil
	}
	sub := &Subscription{ID: uuid.NewString(), Name: name, Params: params}
	c.subs[sig] = sub
	c.byID[sub.ID] = sub
	c.subsMu.Unlock()

	if err := c.send(ctx, message{Msg: "sub", ID: sub.ID, Name: name, Params: params}); err != nil {
		c.forget(sub.ID)
		return fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}
	return nil
}

// Subscriptions returns a copy of the live subscriptions
func (c *Client) Subscriptions() []Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	out := make([]Subscription, 0, len(c.byID))
	for _, s := range c.byID {
		out = append(out, *s)
	}
	return out
}

// Call invokes a server method and waits for its result.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan message, 1)

	c.callsMu.Lock()
	c.calls[id] = ch
	c.callsMu.Unlock()
	defer func() {
		c.callsMu.Lock()
		delete(c.calls, id)
		c.callsMu.Unlock()
	}()

	if err := c.send(ctx, message{Msg: "method", ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	select {
	case m := <-ch:
		if m.Error != nil {
			return nil, m.Error
		}
		return m.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Logout asks the server to end the user's session. It returns at once;
// the result is awaited in the background for at most the dial timeout
// and logged.
func (c *Client) Logout() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
		defer cancel()

		if _, err := c.Call(ctx, "logout"); err != nil {
			c.logger.Warn("logout failed", "error", err)
			return
		}
		c.logger.Info("logged out", "session", c.Session())
	}()
}

// Snapshot returns the current mirrored collections
func (c *Client) Snapshot() types.Collections {
	return c.mirror.snapshot()
}

// Done is closed when the connection terminates
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that terminated the connection, if any
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close shuts the connection down and waits for the read loop to exit.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done

	c.flushMu.Lock()
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.flushMu.Unlock()
	return err
}

func (c *Client) send(ctx context.Context, m message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteJSON(m)
}

func (c *Client) readLoop() {
	var err error
	defer func() { c.shutdown(err) }()

	for {
		var m message
		if err = c.conn.ReadJSON(&m); err != nil {
			return
		}
		c.handle(m)
	}
}

func (c *Client) handle(m message) {
	switch m.Msg {
	case "ping":
		if err := c.send(context.Background(), message{Msg: "pong", ID: m.ID}); err != nil {
			c.logger.Warn("failed to answer ping", "error", err)
		}
	case "added":
		c.mirror.added(m.Collection, m.ID, m.Fields)
		c.scheduleFlush()
	case "changed":
		c.mirror.changed(m.Collection, m.ID, m.Fields, m.Cleared)
		c.scheduleFlush()
	case "removed":
		c.mirror.removed(m.Collection, m.ID)
		c.scheduleFlush()
	case "ready":
		c.subsMu.Lock()
		for _, id := range m.Subs {
			if s, ok := c.byID[id]; ok {
				s.Ready = true
			}
		}
		c.subsMu.Unlock()
		c.logger.Debug("subscriptions ready", "count", len(m.Subs))
	case "nosub":
		sub := c.forget(m.ID)
		if sub == nil {
			return
		}
		if m.Error != nil {
			c.logger.Warn("subscription rejected", "name", sub.Name, "error", m.Error)
		} else {
			c.logger.Debug("subscription stopped", "name", sub.Name)
		}
	case "result":
		c.callsMu.Lock()
		ch, ok := c.calls[m.ID]
		c.callsMu.Unlock()
		if ok {
			ch <- m
		}
	case "error":
		c.logger.Error("server reported protocol error", "reason", m.Reason)
	}
}

func (c *Client) forget(id string) *Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	sub, ok := c.byID[id]
	if !ok {
		return nil
	}
	delete(c.byID, id)
	for sig, s := range c.subs {
		if s == sub {
			delete(c.subs, sig)
			break
		}
	}
	return sub
}

// scheduleFlush coalesces collection changes arriving within one batch
// interval into a single snapshot.
func (c *Client) scheduleFlush() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	if c.flushTimer != nil {
		return
	}
	c.flushTimer = time.AfterFunc(c.opts.BatchInterval, c.flush)
}

func (c *Client) flush() {
	c.flushMu.Lock()
	c.flushTimer = nil
	c.flushMu.Unlock()

	select {
	case <-c.done:
		return
	default:
	}

	if c.opts.OnSnapshot != nil {
		c.opts.OnSnapshot(c.mirror.snapshot())
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			c.logger.Debug("ddp connection terminated", "error", err)
		}
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
	})
}

func signature(name string, params []any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params for %s: %w", name, err)
	}
	return name + string(data), nil
}
