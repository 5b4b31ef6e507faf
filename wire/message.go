// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package wire defines the JSON-RPC 2.0 envelope types exchanged with the
// agent process, and the length-prefixed framing codec used to carry them
// over a byte stream.
package wire

import (
	"fmt"

	"github.com/agentsdk/go-agent-sdk/internal/json"
	"github.com/agentsdk/go-agent-sdk/internal/jsonrpc2"
)

const protocolVersion = "2.0"

// ID is a JSON-RPC request identifier. The spec requires ids to be opaque
// strings generated by the sender; responses echo the request's id as-is.
type ID struct {
	value string
	valid bool
}

// StringID creates an ID from an opaque string.
func StringID(s string) ID { return ID{value: s, valid: true} }

// IsValid reports whether the ID was actually set (as opposed to the zero
// value, which denotes a notification).
func (id ID) IsValid() bool { return id.valid }

// String returns the id's string form, or "" for an invalid id.
func (id ID) String() string { return id.value }

// Error is a JSON-RPC 2.0 error object, as carried in a response-err
// envelope or returned from an incoming-request handler.
type Error struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Reserved JSON-RPC 2.0 error codes used by this SDK (spec.md §6).
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnknownSession = CodeInvalidRequest
	CodeMissingParams  = CodeInvalidParams
	CodeMissingSession = CodeInvalidParams
)

// envelope is the wire shape of every JSON-RPC 2.0 message this SDK sends
// or receives. A single struct is decoded first and then classified by
// field presence, mirroring golang-tools' jsonrpc2_v2 wireCombined.
type envelope struct {
	Version string          `json:"jsonrpc"`
	ID      *string         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Message is the closed set of message shapes a connection may send or
// receive: *Request (call or notification) and *Response.
type Message interface {
	toEnvelope() envelope
}

// Request is either a call (ID.IsValid()) or a notification (!ID.IsValid()).
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

func (r *Request) toEnvelope() envelope {
	e := envelope{Version: protocolVersion, Method: r.Method, Params: r.Params}
	if r.ID.IsValid() {
		id := r.ID.value
		e.ID = &id
	}
	return e
}

// IsCall reports whether this request expects a response.
func (r *Request) IsCall() bool { return r.ID.IsValid() }

// Response is a reply to a call Request; exactly one of Result/Error is set.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *Error
}

func (r *Response) toEnvelope() envelope {
	id := r.ID.value
	return envelope{Version: protocolVersion, ID: &id, Result: r.Result, Error: r.Error}
}

// NewNotification builds a Request with no id.
func NewNotification(method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{Method: method, Params: raw}, nil
}

// NewCall builds a Request with the given id.
func NewCall(id ID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: method, Params: raw}, nil
}

// NewResult builds a successful Response. A nil result is carried as a
// JSON null so the response still has a result field.
func NewResult(id ID, result any) (*Response, error) {
	raw, err := marshalParams(result)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewError builds a failed Response.
func NewError(id ID, err *Error) *Response {
	return &Response{ID: id, Error: err}
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling jsonrpc message: %w", err)
	}
	return json.RawMessage(data), nil
}

// EncodeMessage marshals a Message to its wire JSON form.
func EncodeMessage(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg.toEnvelope())
	if err != nil {
		return nil, fmt.Errorf("marshaling jsonrpc envelope: %w", err)
	}
	return data, nil
}

// Kind classifies a decoded envelope per spec.md §3's four shapes.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindResponseOK
	KindResponseErr
	KindNotification
)

// DecodeMessage parses a raw JSON-RPC 2.0 envelope and classifies it.
//
// Classification follows spec.md §4.3 in order:
//  1. has id and (result or error) -> response
//  2. has method and id            -> request (call)
//  3. has method, no id            -> notification
//  4. otherwise                    -> invalid
func DecodeMessage(data []byte) (Message, Kind, error) {
	var e envelope
	if err := jsonrpc2.StrictUnmarshal(data, &e); err != nil {
		return nil, KindInvalid, fmt.Errorf("unmarshaling jsonrpc message: %w", err)
	}

	hasID := e.ID != nil
	hasResult := e.Result != nil
	hasError := e.Error != nil

	switch {
	case hasID && (hasResult || hasError):
		return &Response{ID: StringID(*e.ID), Result: e.Result, Error: e.Error}, kindForResponse(e.Error), nil
	case e.Method != "" && hasID:
		return &Request{ID: StringID(*e.ID), Method: e.Method, Params: e.Params}, KindRequest, nil
	case e.Method != "" && !hasID:
		return &Request{Method: e.Method, Params: e.Params}, KindNotification, nil
	default:
		return nil, KindInvalid, fmt.Errorf("jsonrpc message is neither a call, notification, nor response")
	}
}

func kindForResponse(err *Error) Kind {
	if err != nil {
		return KindResponseErr
	}
	return KindResponseOK
}
