// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/agentsdk/go-agent-sdk/wire"
)

func TestDialWebSocket_RoundTrip(t *testing.T) {
	upgrader := gorilla.Upgrader{Subprotocols: []string{subprotocol}}
	serverMsgs := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("server read failed: %v", err)
			return
		}
		serverMsgs <- data
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := DialWebSocket(ctx, wsURL, nil, nil)
	if err != nil {
		t.Fatalf("DialWebSocket() failed: %v", err)
	}
	defer client.Close()

	req, err := wire.NewCall(wire.StringID("1"), "ping", nil)
	if err != nil {
		t.Fatalf("NewCall() failed: %v", err)
	}
	if err := client.Send(ctx, req); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	select {
	case data := <-serverMsgs:
		msg, _, err := wire.DecodeMessage(data)
		if err != nil {
			t.Fatalf("DecodeMessage() failed: %v", err)
		}
		if msg.(*wire.Request).Method != "ping" {
			t.Errorf("method = %q, want ping", msg.(*wire.Request).Method)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for server message")
	}
}
