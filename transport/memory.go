// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/agentsdk/go-agent-sdk/wire"
)

// Memory is an in-process transport, paired with another Memory via
// NewMemoryPair, used to test bidirectional connection behavior without a
// subprocess or socket (spec.md §8's "two connections A and B" scenario).
type Memory struct {
	writer *wire.Writer
	reader *wire.Reader
	closer io.Closer

	*openFlag
	ser writeSerializer

	messages chan Envelope
}

// NewMemoryPair returns two Memory transports, each other's peer: messages
// sent on one arrive as decoded Envelopes on the other.
func NewMemoryPair() (a, b *Memory) {
	arPipe, awPipe := io.Pipe()
	brPipe, bwPipe := io.Pipe()

	framer := wire.NewFramer()
	a = newMemory(framer.Writer(bwPipe), framer.Reader(arPipe), multiCloser{awPipe, brPipe})
	b = newMemory(framer.Writer(awPipe), framer.Reader(brPipe), multiCloser{bwPipe, arPipe})
	return a, b
}

func newMemory(w *wire.Writer, r *wire.Reader, closer io.Closer) *Memory {
	m := &Memory{
		writer:   w,
		reader:   r,
		closer:   closer,
		openFlag: newOpenFlag(),
		messages: make(chan Envelope, 16),
	}
	go m.readLoop()
	return m
}

func (m *Memory) readLoop() {
	defer m.Close()
	ctx := context.Background()
	for {
		msg, kind, err := m.reader.Read(ctx)
		if err != nil {
			var bodyErr *wire.BodyError
			if errors.As(err, &bodyErr) {
				m.messages <- Envelope{Err: err}
				continue
			}
			// A peer Close closes this side's pipe reader; treat that like
			// EOF so a clean close delivers no error envelope.
			if err != io.EOF && !errors.Is(err, io.ErrClosedPipe) {
				m.messages <- Envelope{Err: err}
			}
			return
		}
		m.messages <- Envelope{Message: msg, Kind: kind}
	}
}

// Messages implements Transport.
func (m *Memory) Messages() <-chan Envelope { return m.messages }

// Send implements Transport.
func (m *Memory) Send(ctx context.Context, msg wire.Message) error {
	if !m.isOpen() {
		return fmt.Errorf("memory transport: closed")
	}
	return m.ser.do(func() error { return m.writer.Write(ctx, msg) })
}

// IsOpen implements Transport.
func (m *Memory) IsOpen() bool { return m.isOpen() }

// Close implements Transport.
func (m *Memory) Close() error {
	if !m.openFlag.closeOnce() {
		return nil
	}
	err := m.closer.Close()
	close(m.messages)
	return err
}

// multiCloser closes several closers, returning the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
