// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentsdk/go-agent-sdk/internal/json"
	"github.com/agentsdk/go-agent-sdk/rpc"
)

// Caller is the subset of the client/connection surface a Session needs to
// issue RPCs, kept narrow so this package has no import-cycle back to
// client.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// SendResult is what SendAndWait resolves with when streamed output was
// produced; a nil *SendResult (with nil error) means the aggregation
// completed with an empty buffer or timed out.
type SendResult struct {
	Content   string
	MessageID string
}

// Config describes the session-level tool and subscription configuration
// supplied at creation, distinct from the client-level fallback tools.
type Config struct {
	ID            string
	WorkspacePath string
	Tools         []*Tool
}

// Session is the client-side handle for one agent conversation: event
// dispatch, tool dispatch, and the send/sendAndWait/destroy lifecycle.
type Session struct {
	id            string
	workspacePath string
	caller        Caller
	tools         *toolRegistry
	onDestroyed   func(id string)
	errorCallback func(error)

	mu              sync.Mutex
	destroyed       bool
	broadcast       chan Event
	broadcastClosed bool
	persistent      []*subscription
	once            []*subscription
	destroyOnce     *destroyFuture

	callbacks callbacks
}

type subscription struct {
	id       uint64
	filter   string // empty means all events
	fn       func(Event)
}

var subIDSeq uint64

// New constructs a Session bound to id, with tools resolved from the
// session config and a client-level fallback list.
func New(id string, caller Caller, cfg Config, fallbackTools []*Tool, onDestroyed func(string), errorCallback func(error)) (*Session, error) {
	registry, err := newToolRegistry(cfg.Tools, fallbackTools)
	if err != nil {
		return nil, err
	}
	return &Session{
		id:            id,
		workspacePath: cfg.WorkspacePath,
		caller:        caller,
		tools:         registry,
		onDestroyed:   onDestroyed,
		errorCallback: errorCallback,
	}, nil
}

// ID returns the server-assigned session identifier.
func (s *Session) ID() string { return s.id }

// WorkspacePath returns the workspace path reported at session creation,
// if any.
func (s *Session) WorkspacePath() string { return s.workspacePath }

// Events returns the broadcast event stream, created lazily on first
// access. The channel is closed on Destroy or HandleConnectionClose.
func (s *Session) Events() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcastLocked()
}

func (s *Session) broadcastLocked() chan Event {
	if s.broadcast == nil {
		s.broadcast = make(chan Event, 64)
	}
	return s.broadcast
}

// OnEvent registers a persistent handler invoked for every event, in
// registration order, until the returned function is called.
func (s *Session) OnEvent(fn func(Event)) (unsubscribe func()) {
	return s.subscribe(&subscription{filter: "", fn: fn}, false)
}

// OnEventType registers a persistent handler invoked only for events whose
// discriminator equals eventType.
func (s *Session) OnEventType(eventType string, fn func(Event)) (unsubscribe func()) {
	return s.subscribe(&subscription{filter: eventType, fn: fn}, false)
}

// Once registers a handler invoked at most once, for the next event
// matching eventType ("" for any event), then automatically removed.
func (s *Session) Once(eventType string, fn func(Event)) {
	s.subscribe(&subscription{filter: eventType, fn: fn}, true)
}

func (s *Session) subscribe(sub *subscription, once bool) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	subIDSeq++
	sub.id = subIDSeq
	if once {
		s.once = append(s.once, sub)
		return func() {}
	}
	s.persistent = append(s.persistent, sub)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, p := range s.persistent {
			if p.id == sub.id {
				s.persistent = append(s.persistent[:i:i], s.persistent[i+1:]...)
				break
			}
		}
	}
}

// Dispatch delivers ev to the broadcast stream, then persistent handlers
// in registration order, then once-only handlers. It is a no-op once the
// session has been destroyed. Handler lists are snapshotted before
// iteration so a handler may safely (un)register during dispatch. A
// once-only handler is removed only once it actually fires; one whose
// filter doesn't match ev stays registered for a later, matching event.
func (s *Session) Dispatch(ev Event) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	broadcast := s.broadcastLocked()
	persistent := append([]*subscription(nil), s.persistent...)
	once := append([]*subscription(nil), s.once...)
	s.mu.Unlock()

	select {
	case broadcast <- ev:
	default:
		// Broadcast consumer is slow or absent; drop rather than block
		// event dispatch, matching the stream's best-effort nature.
	}

	for _, sub := range persistent {
		if sub.filter == "" || sub.filter == ev.EventType() {
			sub.fn(ev)
		}
	}

	var fired map[uint64]bool
	for _, sub := range once {
		if sub.filter == "" || sub.filter == ev.EventType() {
			sub.fn(ev)
			if fired == nil {
				fired = map[uint64]bool{}
			}
			fired[sub.id] = true
		}
	}
	if len(fired) > 0 {
		s.mu.Lock()
		remaining := make([]*subscription, 0, len(s.once))
		for _, sub := range s.once {
			if !fired[sub.id] {
				remaining = append(remaining, sub)
			}
		}
		s.once = remaining
		s.mu.Unlock()
	}
}

// ReportParseError surfaces an event-parse failure (missing type
// discriminator, malformed field) to the error callback without interrupting
// dispatch of subsequent events.
func (s *Session) ReportParseError(err error) {
	if s.errorCallback != nil {
		s.errorCallback(err)
	}
}

// Tools exposes the session's tool registry for server->client tool.call
// dispatch.
func (s *Session) Tools() *toolRegistry { return s.tools }

// RegisterTool adds or replaces a session-local tool.
func (s *Session) RegisterTool(t *Tool) error { return s.tools.Register(t) }

// UnregisterTool removes a session-local tool.
func (s *Session) UnregisterTool(name string) { s.tools.Unregister(name) }

// guard returns a State error when the session has been destroyed; all
// RPC-issuing methods other than Destroy must call this first.
func (s *Session) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return &rpc.State{Reason: "session destroyed"}
	}
	return nil
}

// Send issues session.send and returns the server-assigned messageId.
func (s *Session) Send(ctx context.Context, prompt string, attachments any, mode string) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}
	params := map[string]any{"sessionId": s.id, "prompt": prompt}
	if attachments != nil {
		params["attachments"] = attachments
	}
	if mode != "" {
		params["mode"] = mode
	}
	result, err := s.caller.Call(ctx, "session.send", params)
	if err != nil {
		return "", err
	}
	var out struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("session.send: decoding response: %w", err)
	}
	return out.MessageID, nil
}

// SendAndWait issues a send and aggregates streamed assistant output until
// an idle marker arrives, per spec.md §4.5's aggregation algorithm. It
// returns (nil, nil) if the buffer stayed empty or the timeout elapsed
// before completion, and a non-nil error if the agent reported a session
// error while aggregating.
func (s *Session) SendAndWait(ctx context.Context, prompt string, attachments any, mode string, timeout time.Duration) (*SendResult, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var (
		mu            sync.Mutex
		buffer        string
		idleReceived  bool
		sendCompleted bool
		messageID     string
		completed     bool
	)
	done := make(chan struct{})
	var resultErr error

	completeLocked := func() {
		if completed || !sendCompleted || !idleReceived {
			return
		}
		completed = true
		close(done)
	}

	unsubscribe := s.OnEvent(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if completed {
			return
		}
		switch e := ev.(type) {
		case *AssistantMessage:
			buffer += e.Content
		case *AssistantMessageDelta:
			buffer += e.DeltaContent
		case *SessionIdle:
			idleReceived = true
			completeLocked()
		case *SessionError:
			resultErr = &rpc.State{Reason: e.Message}
			completed = true
			close(done)
		}
	})
	defer unsubscribe()

	mid, err := s.Send(ctx, prompt, attachments, mode)
	mu.Lock()
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	messageID = mid
	sendCompleted = true
	completeLocked()
	mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if resultErr != nil {
		return nil, resultErr
	}
	if buffer == "" {
		return nil, nil
	}
	return &SendResult{Content: buffer, MessageID: messageID}, nil
}

// destroyFuture is the lazily-installed shared future every concurrent
// Destroy call awaits, guaranteeing destruction runs exactly once even
// when Destroy is invoked re-entrantly from within event dispatch.
type destroyFuture struct {
	done chan struct{}
	err  error
}

// Destroy tears the session down idempotently: the first caller installs
// destroyOnce atomically before any async work begins, so concurrent
// (even synchronous) callers observe the same future.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyOnce != nil {
		f := s.destroyOnce
		s.mu.Unlock()
		<-f.done
		return f.err
	}
	f := &destroyFuture{done: make(chan struct{})}
	s.destroyOnce = f
	s.mu.Unlock()

	f.err = s.doDestroy(ctx)
	close(f.done)
	return f.err
}

// destroyBackoffs bounds the delay between session.destroy retries;
// len(destroyBackoffs)+1 is the total number of attempts.
var destroyBackoffs = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

func (s *Session) doDestroy(ctx context.Context) error {
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()

	// Best-effort: an RPC failure here must not suppress local cleanup.
	// Destroy itself is one-shot (doDestroy only ever runs once per
	// session), so the "up to 3 attempts" retry belongs to the underlying
	// RPC, not to the outer Destroy call.
	var rpcErr error
	for attempt := 0; ; attempt++ {
		_, rpcErr = s.caller.Call(ctx, "session.destroy", map[string]string{"sessionId": s.id})
		if rpcErr == nil || attempt >= len(destroyBackoffs) {
			break
		}
		time.Sleep(destroyBackoffs[attempt])
	}

	s.mu.Lock()
	s.closeBroadcastLocked()
	s.persistent = nil
	s.once = nil
	s.mu.Unlock()
	s.tools.ResetLocal()

	if s.onDestroyed != nil {
		s.onDestroyed(s.id)
	}
	return rpcErr
}

func (s *Session) closeBroadcastLocked() {
	if s.broadcast != nil && !s.broadcastClosed {
		close(s.broadcast)
		s.broadcastClosed = true
	}
}

// HandleConnectionClose synchronously marks the session destroyed and
// tears down its local subscriptions, without issuing any RPCs. Called by
// the client when the underlying connection drops unexpectedly.
func (s *Session) HandleConnectionClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.closeBroadcastLocked()
	s.persistent = nil
	s.once = nil
}

// Destroyed reports whether the session has been torn down.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
