// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"

	"github.com/agentsdk/go-agent-sdk/internal/json"
	"github.com/agentsdk/go-agent-sdk/rpc"
	"github.com/agentsdk/go-agent-sdk/session"
	"github.com/agentsdk/go-agent-sdk/wire"
)

// registerHandlers installs the fixed set of server->client handlers on
// conn: one notification handler for session.event, one for
// session.lifecycle, and one request handler each for tool.call,
// permission.request, userInput.request, and hooks.invoke.
func (c *Client) registerHandlers(conn *rpc.Connection) {
	conn.OnNotification("session.event", c.handleSessionEvent)
	conn.OnNotification("session.lifecycle", c.handleSessionLifecycle)
	conn.OnRequest("tool.call", c.handleToolCall)
	conn.OnRequest("permission.request", c.handlePermissionRequest)
	conn.OnRequest("userInput.request", c.handleUserInputRequest)
	conn.OnRequest("hooks.invoke", c.handleHooksInvoke)
}

// eventEnvelope is the shape of a session.event notification, accommodating
// both the flat and {event:{...}} wrapped layouts.
type eventEnvelope struct {
	SessionID string          `json:"sessionId"`
	Event     json.RawMessage `json:"event"`
}

// resolveSessionEvent extracts the sessionId and the unwrapped event JSON
// from a session.event payload, trying the outer sessionId first, then
// falling back to a sessionId embedded in the event object itself (the
// shape session.start payloads use).
func resolveSessionEvent(params json.RawMessage) (sessionID string, eventJSON json.RawMessage, err error) {
	var env eventEnvelope
	if err := json.Unmarshal(params, &env); err != nil {
		return "", nil, fmt.Errorf("session.event: %w", err)
	}

	eventJSON = env.Event
	if len(eventJSON) == 0 {
		eventJSON = params
	}

	sessionID = env.SessionID
	if sessionID == "" {
		var embedded struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(eventJSON, &embedded); err == nil {
			sessionID = embedded.SessionID
		}
	}
	return sessionID, eventJSON, nil
}

func (c *Client) handleSessionEvent(ctx context.Context, method string, params json.RawMessage) {
	sessionID, eventJSON, err := resolveSessionEvent(params)
	if err != nil {
		c.reportError(err)
		return
	}
	if sessionID == "" {
		c.reportError(fmt.Errorf("session.event: missing sessionId"))
		return
	}

	s, ok := c.Session(sessionID)
	if !ok {
		c.reportError(fmt.Errorf("Unknown session: %s", sessionID))
		return
	}

	ev, err := session.ParseEvent(eventJSON)
	if err != nil {
		s.ReportParseError(err)
		return
	}
	s.Dispatch(ev)
}

func (c *Client) handleSessionLifecycle(ctx context.Context, method string, params json.RawMessage) {
	if c.lifecycleFn != nil {
		c.lifecycleFn(params)
	}
}

type toolCallParams struct {
	SessionID  string          `json:"sessionId"`
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId"`
	Arguments  json.RawMessage `json:"arguments"`
}

func (c *Client) handleToolCall(ctx context.Context, method string, params json.RawMessage) (any, error) {
	var p toolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpc.NewJsonRpcError(wire.CodeInvalidParams, "Missing required fields", nil)
	}
	s, ok := c.Session(p.SessionID)
	if !ok {
		return nil, rpc.NewJsonRpcError(wire.CodeUnknownSession, fmt.Sprintf("Unknown session: %s", p.SessionID), nil)
	}
	result := s.Tools().Dispatch(ctx, p.ToolName, p.Arguments)
	return map[string]any{"result": result}, nil
}

func sessionIDOf(params json.RawMessage) (string, error) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", err
	}
	if p.SessionID == "" {
		return "", rpc.NewJsonRpcError(wire.CodeMissingSession, "Missing sessionId", nil)
	}
	return p.SessionID, nil
}

func (c *Client) handlePermissionRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	sessionID, err := sessionIDOf(params)
	if err != nil {
		return nil, err
	}
	s, ok := c.Session(sessionID)
	if !ok {
		return nil, rpc.NewJsonRpcError(wire.CodeUnknownSession, fmt.Sprintf("Unknown session: %s", sessionID), nil)
	}
	result, err := s.DispatchPermission(ctx, params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

func (c *Client) handleUserInputRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	sessionID, err := sessionIDOf(params)
	if err != nil {
		return nil, err
	}
	s, ok := c.Session(sessionID)
	if !ok {
		return nil, rpc.NewJsonRpcError(wire.CodeUnknownSession, fmt.Sprintf("Unknown session: %s", sessionID), nil)
	}
	return s.DispatchUserInput(ctx, params)
}

func (c *Client) handleHooksInvoke(ctx context.Context, method string, params json.RawMessage) (any, error) {
	sessionID, err := sessionIDOf(params)
	if err != nil {
		return nil, err
	}
	s, ok := c.Session(sessionID)
	if !ok {
		return nil, rpc.NewJsonRpcError(wire.CodeUnknownSession, fmt.Sprintf("Unknown session: %s", sessionID), nil)
	}
	output, ok, err := s.DispatchHooks(ctx, params)
	if err != nil {
		// Hook execution failures reply as an empty object rather than a
		// JSON-RPC error, same as the no-hooks-configured case; the error
		// is still surfaced to the client's error callback.
		c.reportError(fmt.Errorf("hooks.invoke: %w", err))
		return map[string]any{}, nil
	}
	if !ok {
		return map[string]any{}, nil
	}
	return map[string]any{"output": output}, nil
}
