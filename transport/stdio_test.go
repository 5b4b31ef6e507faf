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

// TestStdio_EchoRoundTrip spawns `cat`, which echoes framed bytes back
// unchanged, exercising the real subprocess + framing path end to end.
func TestStdio_EchoRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Spawn(ctx, "cat", nil)
	if err != nil {
		t.Skipf("cat not available: %v", err)
	}
	defer s.Close()

	req, err := wire.NewCall(wire.StringID("1"), "ping", nil)
	if err != nil {
		t.Fatalf("NewCall() failed: %v", err)
	}
	if err := s.Send(ctx, req); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	select {
	case env := <-s.Messages():
		if env.Err != nil {
			t.Fatalf("received error: %v", env.Err)
		}
		got := env.Message.(*wire.Request)
		if got.Method != "ping" || got.ID.String() != "1" {
			t.Errorf("got = %+v, unexpected", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}
}

func TestStdio_ExitCallback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan int, 1)
	s, err := Spawn(ctx, "sh", []string{"-c", "exit 7"}, WithExitCallback(func(code int, _ string) {
		done <- code
	}))
	if err != nil {
		t.Skipf("sh not available: %v", err)
	}
	defer s.Close()

	select {
	case code := <-done:
		if code != 7 {
			t.Errorf("exit code = %d, want 7", code)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("exit callback not invoked")
	}
}
