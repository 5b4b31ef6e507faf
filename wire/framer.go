// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/agentsdk/go-agent-sdk/internal/sdkdebug"
)

// tracewire, when set via AGENTSDK_DEBUG=tracewire=1, dumps every framed
// message body to stderr as it is read or written.
var tracewire = sdkdebug.Value("tracewire") != ""

// Default framing bounds, overridable via FramerOption.
const (
	DefaultMaxHeaderBytes  = 64 * 1024
	DefaultMaxMessageBytes = 32 * 1024 * 1024
)

// Framer wraps byte streams into message readers and writers using the
// Content-Length header framing described in spec.md §3.
type Framer struct {
	maxHeaderBytes  int
	maxMessageBytes int
}

// FramerOption configures a Framer.
type FramerOption func(*Framer)

// WithMaxHeaderBytes bounds the size of the unterminated header accumulated
// while scanning for the blank-line delimiter.
func WithMaxHeaderBytes(n int) FramerOption {
	return func(f *Framer) { f.maxHeaderBytes = n }
}

// WithMaxMessageBytes bounds the declared Content-Length and the number of
// bytes the decoder will buffer for a single message.
func WithMaxMessageBytes(n int) FramerOption {
	return func(f *Framer) { f.maxMessageBytes = n }
}

// NewFramer constructs a Framer with the given bounds, falling back to the
// package defaults when an option is not supplied.
func NewFramer(opts ...FramerOption) *Framer {
	f := &Framer{
		maxHeaderBytes:  DefaultMaxHeaderBytes,
		maxMessageBytes: DefaultMaxMessageBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Reader wraps r into a stream of decoded messages.
func (f *Framer) Reader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r), maxHeaderBytes: f.maxHeaderBytes, maxMessageBytes: f.maxMessageBytes}
}

// Writer wraps w so that messages are encoded and framed on write.
func (f *Framer) Writer(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Reader is a stateful decoder over a byte stream. Once Read returns a
// framing error, the decoder has latched and every subsequent call returns
// the same error; io.EOF and *BodyError do not latch.
type Reader struct {
	br              *bufio.Reader
	maxHeaderBytes  int
	maxMessageBytes int

	failed error
}

// Read returns the next framed message, or an error if the stream ended
// cleanly (io.EOF) or framing failed. Framing failures latch: once Read
// returns a framing error, it returns that same error forever after. A
// *BodyError (a well-framed body that is not a valid envelope) does not
// latch.
func (r *Reader) Read(ctx context.Context) (Message, Kind, error) {
	if r.failed != nil {
		return nil, KindInvalid, r.failed
	}

	select {
	case <-ctx.Done():
		return nil, KindInvalid, ctx.Err()
	default:
	}

	n, err := r.readContentLength()
	if err != nil {
		if err != io.EOF {
			r.failed = err
		}
		return nil, KindInvalid, err
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r.br, data); err != nil {
		r.failed = fmt.Errorf("reading message body: %w", err)
		return nil, KindInvalid, r.failed
	}

	if tracewire {
		fmt.Fprintf(os.Stderr, "wire: read %s\n", data)
	}

	msg, kind, err := DecodeMessage(data)
	if err != nil {
		// A bad message body does not latch the decoder: the surrounding
		// framing bytes were valid, so the next message can still be read.
		return nil, KindInvalid, &BodyError{Err: err}
	}
	return msg, kind, nil
}

// BodyError wraps a JSON body that failed to parse or classify as a valid
// JSON-RPC envelope. Unlike other Read errors, it does not latch the
// decoder: the next Read call resumes scanning for the next message.
type BodyError struct {
	Err error
}

func (e *BodyError) Error() string { return e.Err.Error() }
func (e *BodyError) Unwrap() error { return e.Err }

// readContentLength accumulates header bytes up to the first blank line,
// enforcing maxHeaderBytes, and returns the parsed Content-Length.
func (r *Reader) readContentLength() (int64, error) {
	var header bytes.Buffer
	firstRead := true
	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if firstRead && line == "" {
					return 0, io.EOF
				}
				return 0, fmt.Errorf("framing: %w", io.ErrUnexpectedEOF)
			}
			return 0, fmt.Errorf("framing: reading header: %w", err)
		}
		firstRead = false

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}

		header.WriteString(trimmed)
		header.WriteByte('\n')
		if header.Len() > r.maxHeaderBytes {
			return 0, fmt.Errorf("framing: header exceeds maxHeaderBytes (%d)", r.maxHeaderBytes)
		}
	}

	var contentLength int64
	found := false
	for _, line := range strings.Split(header.String(), "\n") {
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return 0, fmt.Errorf("framing: invalid header line %q", line)
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		if strings.EqualFold(name, "content-length") {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("framing: invalid Content-Length %q", value)
			}
			contentLength = n
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("framing: missing Content-Length header")
	}
	if contentLength > int64(r.maxMessageBytes) {
		return 0, fmt.Errorf("framing: Content-Length %d exceeds maxMessageBytes (%d)", contentLength, r.maxMessageBytes)
	}
	return contentLength, nil
}

// Writer encodes and frames messages onto an underlying byte stream.
type Writer struct {
	w io.Writer
}

// Write frames and writes msg as a single Content-Length-prefixed block.
func (w *Writer) Write(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	if tracewire {
		fmt.Fprintf(os.Stderr, "wire: write %s\n", data)
	}
	if _, err := fmt.Fprintf(w.w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}
