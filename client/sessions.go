// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentsdk/go-agent-sdk/internal/json"
	"github.com/agentsdk/go-agent-sdk/rpc"
	"github.com/agentsdk/go-agent-sdk/session"
)

// CreateOptions configures a new session.
type CreateOptions struct {
	WorkspacePath string
	Tools         []*session.Tool
	AutoStart     bool
}

// mergeToolNames merges client-level fallback tool names with
// session-level tool names, client-level first, deduplicated by name, for
// the tool list sent in session.create/session.resume.
func mergeToolNames(fallback, sessionTools []*session.Tool) []string {
	seen := map[string]bool{}
	var names []string
	for _, t := range fallback {
		if !seen[t.Name] {
			seen[t.Name] = true
			names = append(names, t.Name)
		}
	}
	for _, t := range sessionTools {
		if !seen[t.Name] {
			seen[t.Name] = true
			names = append(names, t.Name)
		}
	}
	return names
}

func (c *Client) ensureStarted(ctx context.Context, autoStart bool) error {
	if c.State() == Connected {
		return nil
	}
	if !autoStart {
		return &rpc.State{Reason: "client not connected"}
	}
	return c.Start(ctx)
}

// CreateSession issues session.create and registers the resulting Session
// in the client's registry.
func (c *Client) CreateSession(ctx context.Context, opts CreateOptions) (*session.Session, error) {
	if err := c.ensureStarted(ctx, opts.AutoStart); err != nil {
		return nil, err
	}
	return c.createOrResume(ctx, "session.create", "", opts)
}

// ResumeSession issues session.resume for a previously created session id.
func (c *Client) ResumeSession(ctx context.Context, sessionID string, opts CreateOptions) (*session.Session, error) {
	if err := c.ensureStarted(ctx, opts.AutoStart); err != nil {
		return nil, err
	}
	return c.createOrResume(ctx, "session.resume", sessionID, opts)
}

func (c *Client) createOrResume(ctx context.Context, method, resumeID string, opts CreateOptions) (*session.Session, error) {
	params := map[string]any{
		"tools": mergeToolNames(c.fallbackTools, opts.Tools),
	}
	if resumeID != "" {
		params["sessionId"] = resumeID
	}
	if opts.WorkspacePath != "" {
		params["workspacePath"] = opts.WorkspacePath
	}

	result, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		SessionID     string `json:"sessionId"`
		WorkspacePath string `json:"workspacePath"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", method, err)
	}

	cfg := session.Config{ID: resp.SessionID, WorkspacePath: resp.WorkspacePath, Tools: opts.Tools}
	s, err := session.New(resp.SessionID, c, cfg, c.fallbackTools, c.onSessionDestroyed, c.reportError)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[resp.SessionID] = s
	n := len(c.sessions)
	c.mu.Unlock()
	c.metrics.setActiveSessions(n)
	return s, nil
}

func (c *Client) onSessionDestroyed(id string) {
	c.mu.Lock()
	delete(c.sessions, id)
	n := len(c.sessions)
	c.mu.Unlock()
	c.metrics.setActiveSessions(n)
}

// Stop attempts graceful destruction of every live session, then clears the
// metadata cache, closes the connection and transport, and transitions to
// disconnected regardless of per-session RPC outcome. All per-session
// errors are collected and returned together. The underlying session.destroy
// RPC retries internally (up to 3 attempts with backoff); Destroy itself is
// one-shot idempotent, so it is not retried here.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.forceStopping = true
	sessions := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("destroying session %s: %w", s.ID(), err))
		}
	}

	c.teardown()
	return errors.Join(errs...)
}

// ForceStop skips session RPCs entirely, locally discarding every session,
// then tears down the connection and transport the same way Stop does.
func (c *Client) ForceStop(ctx context.Context) error {
	c.mu.Lock()
	c.forceStopping = true
	sessions := make([]*session.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = map[string]*session.Session{}
	c.mu.Unlock()

	for _, s := range sessions {
		s.HandleConnectionClose()
	}

	c.teardown()
	return nil
}

func (c *Client) teardown() {
	c.metaCache.clear()

	c.mu.Lock()
	conn := c.conn
	t := c.transport
	owns := c.ownsTransport
	c.conn = nil
	if owns {
		// Let the next Start build a fresh transport from the factory.
		c.transport = nil
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if owns && t != nil {
		t.Close()
	}

	c.setState(Disconnected)

	c.mu.Lock()
	c.forceStopping = false
	c.mu.Unlock()
}
