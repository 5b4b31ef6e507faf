// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport provides the concrete byte-stream implementations a
// Connection runs on: a spawned subprocess speaking length-prefixed framing
// on stdio, a TCP socket, a WebSocket, and an in-memory pair for tests.
package transport

import (
	"context"
	"sync"

	"github.com/agentsdk/go-agent-sdk/wire"
)

// Envelope is one decoded message handed to a connection, or a decode
// error that a transport chooses to surface without terminating the
// stream (per spec: a bad body is reported, framing continues).
type Envelope struct {
	Message wire.Message
	Kind    wire.Kind
	Err     error
}

// Transport is the boundary a Connection runs on. Implementations must
// serialize concurrent Send calls themselves; Messages must be closed
// exactly once, after which IsOpen reports false.
type Transport interface {
	// Messages returns the channel of decoded messages. It is closed when
	// the transport is closed, by either side.
	Messages() <-chan Envelope

	// Send enqueues one message for delivery. Implementations chain writes
	// so concurrent callers never interleave bytes on the wire.
	Send(ctx context.Context, msg wire.Message) error

	// Close idempotently shuts the transport down and closes Messages.
	Close() error

	// IsOpen reports whether the transport can still accept Send calls.
	IsOpen() bool
}

// writeSerializer chains writes so concurrent Send calls never interleave
// bytes at the byte-stream level. Grounded on the spec's requirement that
// the transport "internally chains writes so each awaits the previous
// one's completion."
type writeSerializer struct {
	mu sync.Mutex
}

func (s *writeSerializer) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// openFlag is a small idempotent closed-latch shared by every transport.
type openFlag struct {
	mu   sync.Mutex
	open bool
}

func newOpenFlag() *openFlag {
	return &openFlag{open: true}
}

func (f *openFlag) isOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// closeOnce marks the flag closed and reports whether this call was the
// one that transitioned it (so Close bodies can run their teardown once).
func (f *openFlag) closeOnce() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return false
	}
	f.open = false
	return true
}
