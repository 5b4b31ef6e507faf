// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/agentsdk/go-agent-sdk/internal/netutil"
	"github.com/agentsdk/go-agent-sdk/wire"
)

// TCP is a transport over a dialed TCP socket, framed with Content-Length
// headers like Stdio.
type TCP struct {
	conn   net.Conn
	writer *wire.Writer
	reader *wire.Reader

	*openFlag
	ser writeSerializer

	messages chan Envelope
}

// DialTCP connects to addr and wraps the connection in a length-prefixed
// JSON-RPC transport. Non-loopback addresses are accepted but the caller is
// responsible for any transport-level security; this layer does not add TLS.
func DialTCP(ctx context.Context, addr string) (*TCP, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp transport: dial %s: %w", addr, err)
	}
	return newTCP(conn), nil
}

func newTCP(conn net.Conn) *TCP {
	framer := wire.NewFramer()
	t := &TCP{
		conn:     conn,
		writer:   framer.Writer(conn),
		reader:   framer.Reader(conn),
		openFlag: newOpenFlag(),
		messages: make(chan Envelope, 16),
	}
	go t.readLoop()
	return t
}

// IsLocalAddr reports whether addr's host is "localhost" or a loopback IP
// literal. No DNS lookup is made.
func IsLocalAddr(addr string) bool { return netutil.IsLoopback(addr) }

func (t *TCP) readLoop() {
	defer t.Close()
	ctx := context.Background()
	for {
		msg, kind, err := t.reader.Read(ctx)
		if err != nil {
			var bodyErr *wire.BodyError
			if errors.As(err, &bodyErr) {
				t.messages <- Envelope{Err: err}
				continue
			}
			if err != io.EOF {
				t.messages <- Envelope{Err: err}
			}
			return
		}
		t.messages <- Envelope{Message: msg, Kind: kind}
	}
}

// Messages implements Transport.
func (t *TCP) Messages() <-chan Envelope { return t.messages }

// Send implements Transport.
func (t *TCP) Send(ctx context.Context, msg wire.Message) error {
	if !t.isOpen() {
		return fmt.Errorf("tcp transport: closed")
	}
	return t.ser.do(func() error { return t.writer.Write(ctx, msg) })
}

// IsOpen implements Transport.
func (t *TCP) IsOpen() bool { return t.isOpen() }

// Close implements Transport.
func (t *TCP) Close() error {
	if !t.openFlag.closeOnce() {
		return nil
	}
	err := t.conn.Close()
	close(t.messages)
	return err
}
