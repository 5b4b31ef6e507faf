// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseEvent_KnownVariant(t *testing.T) {
	raw := []byte(`{"id":"e1","timestamp":"2026-01-01T00:00:00Z","type":"assistant.message","content":"hello"}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent() failed: %v", err)
	}
	msg, ok := ev.(*AssistantMessage)
	if !ok {
		t.Fatalf("ev = %T, want *AssistantMessage", ev)
	}
	if msg.Content != "hello" || msg.ID != "e1" {
		t.Errorf("msg = %+v, unexpected", msg)
	}
	if msg.EventType() != TypeAssistantMessage {
		t.Errorf("EventType() = %q", msg.EventType())
	}
}

func TestParseEvent_Unknown(t *testing.T) {
	raw := []byte(`{"id":"e2","timestamp":"2026-01-01T00:00:00Z","type":"future.thing","odd":true}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent() failed: %v", err)
	}
	unk, ok := ev.(*Unknown)
	if !ok {
		t.Fatalf("ev = %T, want *Unknown", ev)
	}
	if diff := cmp.Diff(string(raw), string(unk.Raw)); diff != "" {
		t.Errorf("Raw mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEvent_MissingType(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"id":"e3"}`)); err == nil {
		t.Fatal("ParseEvent() succeeded, want error for missing type")
	}
}

func TestParseEvent_MalformedFieldType(t *testing.T) {
	// session.error requires "message"; supplying a non-string should fail
	// to unmarshal and surface as a parse error rather than a silently
	// empty field.
	raw := []byte(`{"id":"e4","timestamp":"2026-01-01T00:00:00Z","type":"session.error","message":123}`)
	if _, err := ParseEvent(raw); err == nil {
		t.Fatal("ParseEvent() succeeded, want error for malformed required field")
	}
}

func TestParseEvent_NestedDataFallback(t *testing.T) {
	raw := []byte(`{"id":"e6","timestamp":"2026-01-01T00:00:00Z","type":"assistant.message","data":{"content":"nested"}}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent() failed: %v", err)
	}
	msg, ok := ev.(*AssistantMessage)
	if !ok {
		t.Fatalf("ev = %T, want *AssistantMessage", ev)
	}
	if msg.Content != "nested" {
		t.Errorf("Content = %q, want %q", msg.Content, "nested")
	}
}

func TestParseEvent_FlatFieldWinsOverNestedData(t *testing.T) {
	raw := []byte(`{"id":"e7","timestamp":"2026-01-01T00:00:00Z","type":"assistant.message","content":"flat","data":{"content":"nested"}}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent() failed: %v", err)
	}
	msg := ev.(*AssistantMessage)
	if msg.Content != "flat" {
		t.Errorf("Content = %q, want %q", msg.Content, "flat")
	}
}

func TestParseEvent_SessionIdleVariant(t *testing.T) {
	raw := []byte(`{"id":"e5","timestamp":"2026-01-01T00:00:00Z","type":"session.idle"}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent() failed: %v", err)
	}
	if _, ok := ev.(*SessionIdle); !ok {
		t.Fatalf("ev = %T, want *SessionIdle", ev)
	}
}
