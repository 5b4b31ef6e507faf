// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeMessage_Request(t *testing.T) {
	msg, kind, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":"1","method":"session/new","params":{"cwd":"/tmp"}}`))
	if err != nil {
		t.Fatalf("DecodeMessage() failed: %v", err)
	}
	if kind != KindRequest {
		t.Fatalf("kind = %v, want KindRequest", kind)
	}
	req, ok := msg.(*Request)
	if !ok {
		t.Fatalf("msg is %T, want *Request", msg)
	}
	if req.Method != "session/new" || req.ID.String() != "1" || !req.IsCall() {
		t.Errorf("req = %+v, unexpected", req)
	}
}

func TestDecodeMessage_Notification(t *testing.T) {
	msg, kind, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","method":"session/update","params":{}}`))
	if err != nil {
		t.Fatalf("DecodeMessage() failed: %v", err)
	}
	if kind != KindNotification {
		t.Fatalf("kind = %v, want KindNotification", kind)
	}
	req := msg.(*Request)
	if req.IsCall() {
		t.Errorf("notification classified as call")
	}
}

func TestDecodeMessage_ResponseOK(t *testing.T) {
	msg, kind, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":"7","result":{"ok":true}}`))
	if err != nil {
		t.Fatalf("DecodeMessage() failed: %v", err)
	}
	if kind != KindResponseOK {
		t.Fatalf("kind = %v, want KindResponseOK", kind)
	}
	resp := msg.(*Response)
	if resp.ID.String() != "7" || resp.Error != nil {
		t.Errorf("resp = %+v, unexpected", resp)
	}
}

func TestDecodeMessage_ResponseErr(t *testing.T) {
	msg, kind, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":"7","error":{"code":-32601,"message":"not found"}}`))
	if err != nil {
		t.Fatalf("DecodeMessage() failed: %v", err)
	}
	if kind != KindResponseErr {
		t.Fatalf("kind = %v, want KindResponseErr", kind)
	}
	resp := msg.(*Response)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("resp.Error = %+v, unexpected", resp.Error)
	}
}

func TestDecodeMessage_Invalid(t *testing.T) {
	for _, body := range []string{
		`{"jsonrpc":"2.0"}`,
		`{"jsonrpc":"2.0","id":"1"}`,
		`not json`,
	} {
		if _, _, err := DecodeMessage([]byte(body)); err == nil {
			t.Errorf("DecodeMessage(%q) succeeded, want error", body)
		}
	}
}

func TestDecodeMessage_RejectsFieldCaseSmuggling(t *testing.T) {
	for _, body := range []string{
		`{"jsonrpc":"2.0","id":"1","Method":"session/new"}`,
		`{"jsonrpc":"2.0","id":"1","method":"session/new","Method":"smuggled"}`,
		`{"jsonrpc":"2.0","id":"1","method":"session/new","extra":true}`,
	} {
		if _, _, err := DecodeMessage([]byte(body)); err == nil {
			t.Errorf("DecodeMessage(%q) succeeded, want error", body)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	req, err := NewCall(StringID("abc"), "session/prompt", map[string]string{"text": "Hello, 世界! 🌍"})
	if err != nil {
		t.Fatalf("NewCall() failed: %v", err)
	}
	data, err := EncodeMessage(req)
	if err != nil {
		t.Fatalf("EncodeMessage() failed: %v", err)
	}
	msg, kind, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage() failed: %v", err)
	}
	if kind != KindRequest {
		t.Fatalf("kind = %v, want KindRequest", kind)
	}
	got := msg.(*Request)
	if diff := cmp.Diff(req.Method, got.Method); diff != "" {
		t.Errorf("method mismatch (-want +got):\n%s", diff)
	}
	if got.ID.String() != "abc" {
		t.Errorf("id = %q, want %q", got.ID.String(), "abc")
	}
}

func TestNewResult_NilValue(t *testing.T) {
	resp, err := NewResult(StringID("1"), nil)
	if err != nil {
		t.Fatalf("NewResult() failed: %v", err)
	}
	if string(resp.Result) != "null" {
		t.Errorf("Result = %q, want null", resp.Result)
	}
}
