// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentsdk/go-agent-sdk/internal/json"
)

// PermissionHandler answers a permission.request callback for this session.
type PermissionHandler func(ctx context.Context, params json.RawMessage) (PermissionResult, error)

// PermissionResult is the sum of outcomes a permission handler may return.
type PermissionResult struct {
	Kind string // "approved", "denied", "approved_for_session", ...
}

func (r PermissionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"kind": r.Kind})
}

// UserInputHandler answers a userInput.request callback for this session.
type UserInputHandler func(ctx context.Context, params json.RawMessage) (any, error)

// HooksHandler answers a hooks.invoke callback for this session. A nil
// return value signals "no hooks configured", which the client renders as
// an empty reply object rather than {output: null}.
type HooksHandler func(ctx context.Context, params json.RawMessage) (any, error)

// callbacks holds the optional server->client callback handlers a session
// may install, guarded independently of the dispatch/tool state above
// since callback registration is rare compared to event traffic.
type callbacks struct {
	mu         sync.RWMutex
	permission PermissionHandler
	userInput  UserInputHandler
	hooks      HooksHandler
}

// SetPermissionHandler installs the handler invoked for permission.request
// callbacks targeting this session.
func (s *Session) SetPermissionHandler(fn PermissionHandler) {
	s.callbacks.mu.Lock()
	defer s.callbacks.mu.Unlock()
	s.callbacks.permission = fn
}

// SetUserInputHandler installs the handler invoked for userInput.request
// callbacks targeting this session.
func (s *Session) SetUserInputHandler(fn UserInputHandler) {
	s.callbacks.mu.Lock()
	defer s.callbacks.mu.Unlock()
	s.callbacks.userInput = fn
}

// SetHooksHandler installs the handler invoked for hooks.invoke callbacks
// targeting this session.
func (s *Session) SetHooksHandler(fn HooksHandler) {
	s.callbacks.mu.Lock()
	defer s.callbacks.mu.Unlock()
	s.callbacks.hooks = fn
}

// DispatchPermission invokes the installed permission handler, or reports
// an error naming the session when none is configured.
func (s *Session) DispatchPermission(ctx context.Context, params json.RawMessage) (PermissionResult, error) {
	s.callbacks.mu.RLock()
	fn := s.callbacks.permission
	s.callbacks.mu.RUnlock()
	if fn == nil {
		return PermissionResult{}, fmt.Errorf("session %q: no permission handler configured", s.id)
	}
	return fn(ctx, params)
}

// DispatchUserInput invokes the installed user-input handler.
func (s *Session) DispatchUserInput(ctx context.Context, params json.RawMessage) (any, error) {
	s.callbacks.mu.RLock()
	fn := s.callbacks.userInput
	s.callbacks.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("session %q: no user-input handler configured", s.id)
	}
	return fn(ctx, params)
}

// DispatchHooks invokes the installed hooks handler. ok is false when no
// handler is configured or the handler returned nil, signaling the caller
// to reply with an empty object rather than {output: null}.
func (s *Session) DispatchHooks(ctx context.Context, params json.RawMessage) (result any, ok bool, err error) {
	s.callbacks.mu.RLock()
	fn := s.callbacks.hooks
	s.callbacks.mu.RUnlock()
	if fn == nil {
		return nil, false, nil
	}
	out, err := fn(ctx, params)
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}
