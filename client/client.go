// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package client manages the transport lifecycle, protocol handshake,
// server->client callback routing, and session registry for one agent
// connection.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentsdk/go-agent-sdk/internal/json"
	"github.com/agentsdk/go-agent-sdk/rpc"
	"github.com/agentsdk/go-agent-sdk/session"
	"github.com/agentsdk/go-agent-sdk/transport"
)

// protocolVersion is the SDK's expected protocolVersion value, checked
// against the server's ping response during Start.
const protocolVersion = 2

// State is the client's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// TransportFactory spawns or dials a new transport when the client owns
// its own transport lifecycle rather than being handed an already-open
// one.
type TransportFactory func(ctx context.Context) (transport.Transport, error)

// Option configures a Client at construction time.
type Option func(*Client)

func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) { c.transportFactory = f }
}

// WithTransport injects an already-constructed transport, which Start uses
// as-is. The client does not own it, so auto-restart never triggers for
// it; Stop still closes it, because closing the connection closes the
// connection's transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
		c.ownsTransport = false
	}
}

func WithStateCallback(fn func(State)) Option {
	return func(c *Client) { c.stateCallback = fn }
}

func WithErrorCallback(fn func(error)) Option {
	return func(c *Client) { c.errorCallback = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithFallbackTools(tools []*session.Tool) Option {
	return func(c *Client) { c.fallbackTools = tools }
}

func WithAutoRestart(enabled bool) Option {
	return func(c *Client) { c.autoRestart = enabled }
}

func WithMetrics(reg Registerer) Option {
	return func(c *Client) { c.metrics = newMetrics(reg) }
}

// LifecycleHandler receives session.lifecycle notifications, which are not
// routed to a specific session.
type LifecycleHandler func(json.RawMessage)

func WithLifecycleHandler(fn LifecycleHandler) Option {
	return func(c *Client) { c.lifecycleFn = fn }
}

// Client is the top-level handle applications hold: it owns (optionally)
// a transport, the JSON-RPC connection built on it, and the registry of
// live sessions.
type Client struct {
	transportFactory TransportFactory
	fallbackTools    []*session.Tool
	stateCallback    func(State)
	errorCallback    func(error)
	lifecycleFn      LifecycleHandler
	logger           *slog.Logger
	autoRestart      bool
	metrics          *metrics

	mu            sync.Mutex
	state         State
	transport     transport.Transport
	ownsTransport bool
	conn          *rpc.Connection
	sessions      map[string]*session.Session
	forceStopping bool

	metaCache *metadataCache
	restartGate *restartGate
}

// New constructs a Client in the disconnected state. Either WithTransport
// or WithTransportFactory should be supplied; without either, Start fails.
func New(opts ...Option) *Client {
	c := &Client{
		state:    Disconnected,
		sessions: map[string]*session.Session{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metaCache = newMetadataCache(c.callModelsList)
	c.restartGate = newRestartGate()
	if c.metrics == nil {
		c.metrics = newMetrics(nil)
	}
	return c
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.stateCallback != nil {
		c.stateCallback(s)
	}
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) reportError(err error) {
	if err == nil {
		return
	}
	if c.errorCallback != nil {
		c.errorCallback(err)
		return
	}
	c.logger.Error("client error", "error", err)
}

// Start opens the transport (if needed), builds the connection, registers
// server->client handlers, and performs the protocol handshake. Idempotent
// when already connected.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(Connecting)

	t, owns, err := c.acquireTransport(ctx)
	if err != nil {
		c.setState(Error)
		return fmt.Errorf("client start: %w", err)
	}

	conn := rpc.NewConnection(t,
		rpc.WithLogger(c.logger),
		rpc.WithErrorCallback(c.reportError),
		rpc.WithCloseCallback(c.handleConnectionClose),
	)

	c.mu.Lock()
	c.transport = t
	c.ownsTransport = owns
	c.conn = conn
	c.mu.Unlock()

	c.registerHandlers(conn)

	if err := c.handshake(ctx, conn); err != nil {
		conn.Close()
		c.setState(Error)
		return err
	}

	c.setState(Connected)
	return nil
}

func (c *Client) acquireTransport(ctx context.Context) (transport.Transport, bool, error) {
	c.mu.Lock()
	existing := c.transport
	owns := c.ownsTransport
	c.mu.Unlock()

	if existing != nil {
		// An injected transport is used as-is and is never reopened. An
		// owned transport is dropped by teardown, so after a Stop this
		// branch is only reached for injected ones.
		return existing, owns, nil
	}
	if c.transportFactory == nil {
		return nil, false, fmt.Errorf("no transport configured")
	}
	t, err := c.transportFactory(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("opening transport: %w", err)
	}
	return t, true, nil
}

func (c *Client) handshake(ctx context.Context, conn *rpc.Connection) error {
	result, err := conn.Call(ctx, "ping", nil)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	var resp struct {
		ProtocolVersion int `json:"protocolVersion"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("handshake: decoding ping response: %w", err)
	}
	if resp.ProtocolVersion != protocolVersion {
		return fmt.Errorf("handshake: Protocol version mismatch: got %d, want %d", resp.ProtocolVersion, protocolVersion)
	}
	return nil
}

// Call issues a client->server request over the live connection. Exported
// so session.Caller is satisfied directly by *Client.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, &rpc.State{Reason: "client not started"}
	}
	start := time.Now()
	result, err := conn.Call(ctx, method, params)
	c.metrics.observeCall(method, time.Since(start), err)
	return result, err
}

// handleConnectionClose runs when the underlying connection reports an
// unexpected (or requested) close: every live session is synchronously
// marked destroyed, the registry is emptied, and, if eligible, an
// opportunistic restart is attempted.
func (c *Client) handleConnectionClose(closeErr error) {
	c.mu.Lock()
	sessions := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = map[string]*session.Session{}
	owns := c.ownsTransport
	forceStopping := c.forceStopping
	c.mu.Unlock()

	for _, s := range sessions {
		s.HandleConnectionClose()
	}
	c.metaCache.clear()
	c.setState(Disconnected)

	if owns && c.autoRestart && !forceStopping && c.restartGate.allow() {
		go c.attemptRestart()
	}
}

func (c *Client) attemptRestart() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		c.reportError(fmt.Errorf("auto-restart: stop: %w", err))
	}
	if err := c.Start(ctx); err != nil {
		c.reportError(fmt.Errorf("auto-restart: start: %w", err))
	}
}

// Sessions returns the ids of all live sessions.
func (c *Client) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Session looks up a live session by id.
func (c *Client) Session(id string) (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}
