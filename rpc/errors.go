// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package rpc implements a bidirectional JSON-RPC 2.0 connection over a
// transport.Transport: outgoing request correlation, method dispatch for
// incoming requests and notifications, and close fan-out.
package rpc

import (
	"fmt"
	"time"

	"github.com/agentsdk/go-agent-sdk/wire"
)

// JsonRpcError is a structured JSON-RPC error surfaced to a caller of Call,
// or returned by a request handler to control the code/message/data sent
// back to the peer unchanged.
type JsonRpcError struct {
	Code    int64
	Message string
	Data    any
}

func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewJsonRpcError constructs a JsonRpcError.
func NewJsonRpcError(code int64, message string, data any) *JsonRpcError {
	return &JsonRpcError{Code: code, Message: message, Data: data}
}

func (e *JsonRpcError) toWire() *wire.Error {
	var raw []byte
	if e.Data != nil {
		if b, err := marshalAny(e.Data); err == nil {
			raw = b
		}
	}
	return &wire.Error{Code: e.Code, Message: e.Message, Data: raw}
}

func fromWire(e *wire.Error) *JsonRpcError {
	return &JsonRpcError{Code: e.Code, Message: e.Message, Data: e.Data}
}

// Timeout reports that a Call did not receive a response within its
// deadline. The pending awaiter is removed; a late response is dropped.
type Timeout struct {
	Method   string
	Duration time.Duration
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("jsonrpc: %s timed out after %s", e.Method, e.Duration)
}

// State reports an invalid operation against the connection's lifecycle:
// sending on a closed connection, or any other not-connected condition.
type State struct {
	Reason string
}

func (e *State) Error() string { return "jsonrpc: " + e.Reason }
