// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentsdk/go-agent-sdk/wire"
)

// subprotocol is the WebSocket subprotocol this SDK negotiates. Over
// WebSocket, framing per spec.md §4.2 is delegated to the WebSocket message
// boundary: no Content-Length header, one JSON text frame per message.
const subprotocol = "agentsdk"

// WebSocket is a transport carrying plain JSON text frames over a WebSocket
// connection, adapted for a client dialing an agent process that exposes a
// WebSocket endpoint instead of stdio.
type WebSocket struct {
	conn *websocket.Conn

	*openFlag
	ser writeSerializer

	messages chan Envelope
}

// DialWebSocket connects to url and wraps the resulting connection.
func DialWebSocket(ctx context.Context, url string, header http.Header, dialer *websocket.Dialer) (*WebSocket, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	d := *dialer
	d.Subprotocols = []string{subprotocol}

	conn, resp, err := d.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket transport: dial %s: %w", url, err)
	}
	return newWebSocket(conn), nil
}

func newWebSocket(conn *websocket.Conn) *WebSocket {
	t := &WebSocket{conn: conn, openFlag: newOpenFlag(), messages: make(chan Envelope, 16)}
	go t.readLoop()
	return t
}

func (t *WebSocket) readLoop() {
	defer t.Close()
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.messages <- Envelope{Err: fmt.Errorf("websocket transport: read: %w", err)}
			return
		}
		if messageType != websocket.TextMessage {
			t.messages <- Envelope{Err: fmt.Errorf("websocket transport: unexpected message type %d", messageType)}
			continue
		}
		msg, kind, err := wire.DecodeMessage(data)
		if err != nil {
			t.messages <- Envelope{Err: err}
			continue
		}
		t.messages <- Envelope{Message: msg, Kind: kind}
	}
}

// Messages implements Transport.
func (t *WebSocket) Messages() <-chan Envelope { return t.messages }

// Send implements Transport.
func (t *WebSocket) Send(ctx context.Context, msg wire.Message) error {
	if !t.isOpen() {
		return fmt.Errorf("websocket transport: closed")
	}
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return t.ser.do(func() error {
		if deadline, ok := ctx.Deadline(); ok {
			_ = t.conn.SetWriteDeadline(deadline)
			defer t.conn.SetWriteDeadline(time.Time{})
		}
		return t.conn.WriteMessage(websocket.TextMessage, data)
	})
}

// IsOpen implements Transport.
func (t *WebSocket) IsOpen() bool { return t.isOpen() }

// Close implements Transport.
func (t *WebSocket) Close() error {
	if !t.openFlag.closeOnce() {
		return nil
	}
	err := t.conn.Close()
	close(t.messages)
	return err
}
