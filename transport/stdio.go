// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agentsdk/go-agent-sdk/wire"
)

// gracefulTermTimeout bounds how long Close waits for the child process to
// exit after a graceful termination signal before it is force-killed.
const gracefulTermTimeout = 5 * time.Second

// Stdio is a transport over the stdin/stdout of a spawned agent process.
// Framing is length-prefixed (Content-Length) per spec.md §4.1.
type Stdio struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *wire.Writer
	reader *wire.Reader

	*openFlag
	ser writeSerializer

	messages chan Envelope
	exited   chan struct{}
	readDone chan struct{}

	stderrMu  sync.Mutex
	stderrBuf strings.Builder

	exitCallback func(code int, stderr string)
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithExitCallback installs a callback invoked once the spawned process has
// exited, carrying its exit code and any buffered stderr.
func WithExitCallback(fn func(code int, stderr string)) StdioOption {
	return func(s *Stdio) { s.exitCallback = fn }
}

// Spawn starts name with args, wiring a length-prefixed JSON-RPC transport
// to its stdin/stdout and buffering its stderr for diagnostics.
func Spawn(ctx context.Context, name string, args []string, opts ...StdioOption) (*Stdio, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// Detach from ctx cancellation killing the process outright; Close
	// handles graceful shutdown explicitly below.
	cmd.Cancel = func() error { return nil }

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio transport: stderr pipe: %w", err)
	}

	s := &Stdio{
		cmd:      cmd,
		stdin:    stdin,
		openFlag: newOpenFlag(),
		messages: make(chan Envelope, 16),
		exited:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	framer := wire.NewFramer()
	s.writer = framer.Writer(stdin)
	s.reader = framer.Reader(stdout)

	for _, opt := range opts {
		opt(s)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio transport: start: %w", err)
	}

	go s.bufferStderr(stderr)
	go s.readLoop()
	go s.waitExit()

	return s, nil
}

func (s *Stdio) bufferStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)
	for scanner.Scan() {
		s.stderrMu.Lock()
		s.stderrBuf.WriteString(scanner.Text())
		s.stderrBuf.WriteByte('\n')
		s.stderrMu.Unlock()
	}
}

func (s *Stdio) waitExit() {
	err := s.cmd.Wait()
	close(s.exited)

	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	if s.exitCallback != nil {
		s.stderrMu.Lock()
		stderr := s.stderrBuf.String()
		s.stderrMu.Unlock()
		s.exitCallback(code, stderr)
	}
}

// readLoop is the sole goroutine that sends on s.messages; Close waits for
// readDone before closing that channel, so a message read just before the
// underlying process exits can never race a close of an already-closed
// channel.
func (s *Stdio) readLoop() {
	defer s.Close()
	defer close(s.readDone)
	ctx := context.Background()
	for {
		msg, kind, err := s.reader.Read(ctx)
		if err != nil {
			var bodyErr *wire.BodyError
			if errors.As(err, &bodyErr) {
				s.messages <- Envelope{Err: err}
				continue
			}
			if err != io.EOF {
				s.messages <- Envelope{Err: err}
			}
			return
		}
		s.messages <- Envelope{Message: msg, Kind: kind}
	}
}

// Messages implements Transport.
func (s *Stdio) Messages() <-chan Envelope { return s.messages }

// Send implements Transport.
func (s *Stdio) Send(ctx context.Context, msg wire.Message) error {
	if !s.isOpen() {
		return fmt.Errorf("stdio transport: closed")
	}
	return s.ser.do(func() error { return s.writer.Write(ctx, msg) })
}

// IsOpen implements Transport.
func (s *Stdio) IsOpen() bool { return s.isOpen() }

// Close gracefully terminates the child process, waiting up to 5 seconds
// before force-killing it, then closes the message stream.
func (s *Stdio) Close() error {
	if !s.openFlag.closeOnce() {
		return nil
	}
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-s.exited:
		case <-time.After(gracefulTermTimeout):
			_ = s.cmd.Process.Kill()
			<-s.exited
		}
	}
	<-s.readDone
	close(s.messages)
	return nil
}
