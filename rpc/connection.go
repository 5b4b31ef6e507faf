// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentsdk/go-agent-sdk/internal/json"
	"github.com/agentsdk/go-agent-sdk/transport"
	"github.com/agentsdk/go-agent-sdk/wire"
)

// RequestHandler answers an incoming call. A *JsonRpcError return value
// propagates its code, message, and data unchanged; any other error is
// wrapped as an internal error.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// NotificationHandler observes an incoming notification. Panics and errors
// are not possible to propagate to the peer; handlers should report
// failures through the connection's error callback indirectly by returning
// promptly and logging.
type NotificationHandler func(ctx context.Context, method string, params json.RawMessage)

type pendingCall struct {
	method string
	ch     chan *wire.Response
}

// Connection is a bidirectional JSON-RPC 2.0 connection layered over a
// transport.Transport. It owns the pending-request map and the method
// dispatch tables; the transport itself is not owned and is not closed
// implicitly except as Close's own teardown step.
type Connection struct {
	t transport.Transport

	pendingMu sync.Mutex
	pending   map[string]pendingCall

	handlersMu    sync.RWMutex
	requestFns    map[string]RequestHandler
	notifyFns     map[string]NotificationHandler
	catchAllNotif NotificationHandler

	onClose func(error)
	onError func(error)
	logger  *slog.Logger

	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// Option configures a Connection.
type Option func(*Connection)

// WithCloseCallback installs a callback invoked exactly once when the
// connection closes, whether by explicit Close or transport failure.
func WithCloseCallback(fn func(error)) Option {
	return func(c *Connection) { c.onClose = fn }
}

// WithErrorCallback installs a callback for errors that must not terminate
// the connection: notification handler failures, reply-send failures,
// stray messages.
func WithErrorCallback(fn func(error)) Option {
	return func(c *Connection) { c.onError = fn }
}

// WithLogger installs a diagnostic logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) { c.logger = l }
}

// NewConnection wraps t and immediately starts its message loop.
func NewConnection(t transport.Transport, opts ...Option) *Connection {
	c := &Connection{
		t:          t,
		pending:    make(map[string]pendingCall),
		requestFns: make(map[string]RequestHandler),
		notifyFns:  make(map[string]NotificationHandler),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	go c.loop()
	return c
}

// log returns the connection's diagnostic logger.
func (c *Connection) log() *slog.Logger { return c.logger }

// OnRequest registers the handler invoked for incoming calls to method.
func (c *Connection) OnRequest(method string, fn RequestHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.requestFns[method] = fn
}

// OnNotification registers the handler invoked for incoming notifications
// to method, in addition to any catch-all handler.
func (c *Connection) OnNotification(method string, fn NotificationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.notifyFns[method] = fn
}

// OnAnyNotification registers a handler invoked for every incoming
// notification regardless of method.
func (c *Connection) OnAnyNotification(fn NotificationHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.catchAllNotif = fn
}

// Done returns a channel closed when the connection's message loop exits.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Call sends a request and blocks for its response. ctx's deadline, if any,
// bounds the wait; on expiry the pending entry is removed and a *Timeout
// error is returned, naming method and the elapsed bound.
func (c *Connection) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, &State{Reason: "connection closed"}
	}

	id := uuid.NewString()
	req, err := wire.NewCall(wire.StringID(id), method, params)
	if err != nil {
		return nil, err
	}

	rchan := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = pendingCall{method: method, ch: rchan}
	c.pendingMu.Unlock()

	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	bound, _ := deadlineDuration(ctx)
	if err := c.t.Send(ctx, req); err != nil {
		cleanup()
		return nil, fmt.Errorf("jsonrpc: sending %s: %w", method, err)
	}

	select {
	case resp := <-rchan:
		if resp.Error != nil {
			return nil, fromWire(resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		cleanup()
		return nil, &Timeout{Method: method, Duration: bound}
	}
}

func deadlineDuration(ctx context.Context) (time.Duration, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	return time.Until(deadline), true
}

// Notify sends a notification; no response is expected or awaited.
func (c *Connection) Notify(ctx context.Context, method string, params any) error {
	if c.isClosed() {
		return &State{Reason: "connection closed"}
	}
	n, err := wire.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.t.Send(ctx, n)
}

func (c *Connection) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// loop reads decoded envelopes from the transport until it closes, routing
// each to a response, request, or notification handler.
func (c *Connection) loop() {
	var closeErr error
	for env := range c.t.Messages() {
		if env.Err != nil {
			c.reportError(fmt.Errorf("jsonrpc: decode: %w", env.Err))
			continue
		}
		switch env.Kind {
		case wire.KindResponseOK, wire.KindResponseErr:
			c.handleResponse(env.Message.(*wire.Response))
		case wire.KindRequest:
			go c.handleRequest(env.Message.(*wire.Request))
		case wire.KindNotification:
			go c.handleNotification(env.Message.(*wire.Request))
		default:
			c.reportError(fmt.Errorf("jsonrpc: message not a call, notification, or response"))
		}
	}
	c.finish(closeErr)
}

func (c *Connection) handleResponse(resp *wire.Response) {
	id := resp.ID.String()
	c.pendingMu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		return // stale or timed-out response, drop silently
	}
	pc.ch <- resp
}

func (c *Connection) handleRequest(req *wire.Request) {
	ctx := context.Background()

	c.handlersMu.RLock()
	fn, ok := c.requestFns[req.Method]
	c.handlersMu.RUnlock()

	if !ok {
		c.reply(ctx, req.ID, nil, NewJsonRpcError(wire.CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil))
		return
	}

	result, err := fn(ctx, req.Method, req.Params)
	if err != nil {
		var jerr *JsonRpcError
		if as, ok := err.(*JsonRpcError); ok {
			jerr = as
		} else {
			jerr = NewJsonRpcError(wire.CodeInternalError, fmt.Sprintf("Internal error: %v", err), nil)
		}
		c.reply(ctx, req.ID, nil, jerr)
		return
	}
	c.reply(ctx, req.ID, result, nil)
}

func (c *Connection) reply(ctx context.Context, id wire.ID, result any, jerr *JsonRpcError) {
	var resp *wire.Response
	if jerr != nil {
		resp = wire.NewError(id, jerr.toWire())
	} else {
		var err error
		resp, err = wire.NewResult(id, result)
		if err != nil {
			resp = wire.NewError(id, NewJsonRpcError(wire.CodeInternalError, fmt.Sprintf("Internal error: %v", err), nil).toWire())
		}
	}
	if err := c.t.Send(ctx, resp); err != nil {
		c.reportError(fmt.Errorf("jsonrpc: sending reply for %s: %w", id.String(), err))
	}
}

func (c *Connection) handleNotification(n *wire.Request) {
	ctx := context.Background()

	c.handlersMu.RLock()
	fn, ok := c.notifyFns[n.Method]
	catchAll := c.catchAllNotif
	c.handlersMu.RUnlock()

	if ok {
		c.invokeNotificationHandler(ctx, fn, n)
	}
	if catchAll != nil {
		c.invokeNotificationHandler(ctx, catchAll, n)
	}
}

func (c *Connection) invokeNotificationHandler(ctx context.Context, fn NotificationHandler, n *wire.Request) {
	defer func() {
		if r := recover(); r != nil {
			c.reportError(fmt.Errorf("jsonrpc: notification handler for %s panicked: %v", n.Method, r))
		}
	}()
	fn(ctx, n.Method, n.Params)
}

func (c *Connection) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
		return
	}
	c.log().Error("jsonrpc connection error", "error", err)
}

// finish runs the close fan-out exactly once: every outstanding awaiter
// fails, pending state clears, and the close callback fires.
func (c *Connection) finish(closeErr error) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()

	c.pendingMu.Lock()
	stale := c.pending
	c.pending = make(map[string]pendingCall)
	c.pendingMu.Unlock()

	for id, pc := range stale {
		msg := fmt.Sprintf("connection closed while awaiting %s", pc.method)
		pc.ch <- wire.NewError(wire.StringID(id), NewJsonRpcError(wire.CodeInternalError, msg, nil).toWire())
	}

	close(c.done)
	if c.onClose != nil {
		c.onClose(closeErr)
	}
}

// Close idempotently shuts the connection down: it closes the transport,
// which terminates the message loop and triggers finish's fan-out.
func (c *Connection) Close() error {
	if c.isClosed() {
		return nil
	}
	return c.t.Close()
}

func marshalAny(v any) ([]byte, error) {
	return json.Marshal(v)
}
