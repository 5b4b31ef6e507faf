// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/agentsdk/go-agent-sdk/wire"
)

func TestMemoryPair_RoundTrip(t *testing.T) {
	a, b := NewMemoryPair()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	req, err := wire.NewCall(wire.StringID("1"), "ping", nil)
	if err != nil {
		t.Fatalf("NewCall() failed: %v", err)
	}
	if err := a.Send(ctx, req); err != nil {
		t.Fatalf("a.Send() failed: %v", err)
	}

	select {
	case env := <-b.Messages():
		if env.Err != nil {
			t.Fatalf("b received error: %v", env.Err)
		}
		got := env.Message.(*wire.Request)
		if got.Method != "ping" || got.ID.String() != "1" {
			t.Errorf("got = %+v, unexpected", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryPair_Bidirectional(t *testing.T) {
	a, b := NewMemoryPair()
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	go func() {
		env := <-a.Messages()
		req := env.Message.(*wire.Request)
		resp, _ := wire.NewResult(req.ID, map[string]string{"value": "v"})
		_ = a.Send(ctx, resp)
	}()

	req, _ := wire.NewCall(wire.StringID("req-1"), "b-to-a", nil)
	if err := b.Send(ctx, req); err != nil {
		t.Fatalf("b.Send() failed: %v", err)
	}

	select {
	case env := <-b.Messages():
		if env.Err != nil {
			t.Fatalf("b received error: %v", env.Err)
		}
		resp := env.Message.(*wire.Response)
		if resp.ID.String() != "req-1" {
			t.Errorf("resp.ID = %q, want %q", resp.ID.String(), "req-1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestMemoryPair_CloseTerminatesMessages(t *testing.T) {
	a, b := NewMemoryPair()
	defer b.Close()

	if err := a.Close(); err != nil {
		t.Fatalf("a.Close() failed: %v", err)
	}
	if a.IsOpen() {
		t.Error("a.IsOpen() = true after Close")
	}

	select {
	case _, ok := <-b.Messages():
		if ok {
			t.Fatal("b.Messages() delivered a value after peer close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for b.Messages() to close")
	}
}

func TestMemoryPair_SendAfterCloseFails(t *testing.T) {
	a, b := NewMemoryPair()
	defer b.Close()
	a.Close()

	if err := a.Send(context.Background(), mustNotification(t)); err == nil {
		t.Error("Send() on closed transport succeeded, want error")
	}
}

func mustNotification(t *testing.T) wire.Message {
	t.Helper()
	n, err := wire.NewNotification("noop", nil)
	if err != nil {
		t.Fatalf("NewNotification() failed: %v", err)
	}
	return n
}
