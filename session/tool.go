// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/agentsdk/go-agent-sdk/internal/json"
)

// ToolResult is the sum type a tool handler produces: exactly one of
// Success, Failure, or Object is populated, enforced by construction
// through the package-level constructors rather than by exported fields.
type ToolResult struct {
	kind         string // "success", "failure", or an Object-supplied kind
	text         string
	err          error
	textForLlm   string
	telemetry    map[string]any
	binaries     []Binary
	sessionLog   []json.RawMessage
}

// Binary is an opaque binary attachment carried by an Object tool result.
type Binary struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Success builds a ToolResult carrying a plain text payload.
func Success(text string) ToolResult {
	return ToolResult{kind: "success", text: text}
}

// Failure builds a failed ToolResult. textForLlm, if non-empty, overrides
// the default text shown to the model in place of the raw error.
func Failure(err error, textForLlm ...string) ToolResult {
	tr := ToolResult{kind: "failure", err: err}
	if len(textForLlm) > 0 {
		tr.textForLlm = textForLlm[0]
	}
	return tr
}

// Object builds a structured ToolResult. kind labels the result for the
// agent beyond plain success/failure (e.g. "diff", "search_results").
func Object(text, kind string, opts ...ObjectOption) ToolResult {
	tr := ToolResult{kind: kind, text: text}
	for _, opt := range opts {
		opt(&tr)
	}
	return tr
}

// ObjectOption configures optional fields of an Object ToolResult.
type ObjectOption func(*ToolResult)

func WithObjectError(err error) ObjectOption {
	return func(tr *ToolResult) { tr.err = err }
}

func WithTelemetry(telemetry map[string]any) ObjectOption {
	return func(tr *ToolResult) { tr.telemetry = telemetry }
}

func WithBinaries(binaries []Binary) ObjectOption {
	return func(tr *ToolResult) { tr.binaries = binaries }
}

func WithSessionLog(entries []json.RawMessage) ObjectOption {
	return func(tr *ToolResult) { tr.sessionLog = entries }
}

// MarshalJSON renders the canonical wire form for each variant.
func (tr ToolResult) MarshalJSON() ([]byte, error) {
	telemetry := tr.telemetry
	if telemetry == nil {
		telemetry = map[string]any{}
	}

	switch tr.kind {
	case "success":
		return json.Marshal(map[string]any{
			"textResultForLlm": tr.text,
			"resultType":       "success",
			"toolTelemetry":    telemetry,
		})
	case "failure":
		text := tr.textForLlm
		if text == "" {
			text = defaultFailureText(tr.err)
		}
		return json.Marshal(map[string]any{
			"textResultForLlm": text,
			"resultType":       "failure",
			"error":            errString(tr.err),
			"toolTelemetry":    telemetry,
		})
	default:
		m := map[string]any{
			"textResultForLlm": tr.text,
			"resultType":       tr.kind,
			"toolTelemetry":    telemetry,
		}
		if tr.err != nil {
			m["error"] = errString(tr.err)
		}
		if tr.binaries != nil {
			m["binaries"] = tr.binaries
		}
		if tr.sessionLog != nil {
			m["sessionLog"] = tr.sessionLog
		}
		return json.Marshal(m)
	}
}

func defaultFailureText(err error) string {
	if err == nil {
		return "Tool call failed."
	}
	return fmt.Sprintf("Tool call failed: %s", err.Error())
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ToolHandler is a session- or client-registered tool callback. args is the
// raw JSON arguments object from the tool.call request; handlers that want
// typed arguments unmarshal from args themselves. A Tool's InputSchema, if
// set, validates args before the handler runs.
type ToolHandler func(ctx context.Context, args json.RawMessage) ToolResult

// Tool pairs a handler with an optional input schema used to validate
// arguments before invocation.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     ToolHandler

	resolved *jsonschema.Resolved
}

// resolve validates and compiles the tool's input schema, if any. Tools
// with no schema skip validation entirely; this mirrors accepting
// unchecked arguments rather than silently validating against an empty
// schema that would reject any nonempty object.
func (t *Tool) resolve() error {
	if t.InputSchema == nil {
		return nil
	}
	resolved, err := t.InputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return fmt.Errorf("tool %q: resolving input schema: %w", t.Name, err)
	}
	t.resolved = resolved
	return nil
}

// invoke validates args against the tool's schema (if any) and calls the
// handler, converting a validation failure or panic into a failure
// ToolResult instead of propagating it.
func (t *Tool) invoke(ctx context.Context, args json.RawMessage) (result ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = Failure(fmt.Errorf("tool %q panicked: %v", t.Name, r))
		}
	}()

	if t.resolved != nil {
		var v any
		if err := json.Unmarshal(args, &v); err != nil {
			return Failure(fmt.Errorf("tool %q: invalid arguments JSON: %w", t.Name, err))
		}
		if err := t.resolved.ApplyDefaults(v); err != nil {
			return Failure(fmt.Errorf("tool %q: applying schema defaults: %w", t.Name, err))
		}
		if err := t.resolved.Validate(v); err != nil {
			return Failure(fmt.Errorf("tool %q: arguments do not match schema: %w", t.Name, err))
		}
	}
	return t.Handler(ctx, args)
}

// toolRegistry resolves tool names against a session-local map, a
// session-config list, and a client-level fallback list, in that order
// (spec.md §4.5 tool dispatch). config and fallback are populated once at
// construction and read-only thereafter; local is mutated by Register and
// Unregister from callers' goroutines and by ResetLocal on session destroy,
// while Dispatch reads it from the connection's request-handling
// goroutines, so local is guarded by mu.
type toolRegistry struct {
	mu       sync.Mutex
	local    map[string]*Tool
	config   map[string]*Tool
	fallback map[string]*Tool
}

func newToolRegistry(config, fallback []*Tool) (*toolRegistry, error) {
	r := &toolRegistry{
		local:    map[string]*Tool{},
		config:   map[string]*Tool{},
		fallback: map[string]*Tool{},
	}
	for _, t := range config {
		if err := t.resolve(); err != nil {
			return nil, err
		}
		r.config[t.Name] = t
	}
	for _, t := range fallback {
		if err := t.resolve(); err != nil {
			return nil, err
		}
		r.fallback[t.Name] = t
	}
	return r, nil
}

// Register adds or replaces a session-local tool.
func (r *toolRegistry) Register(t *Tool) error {
	if err := t.resolve(); err != nil {
		return err
	}
	r.mu.Lock()
	r.local[t.Name] = t
	r.mu.Unlock()
	return nil
}

// Unregister removes a session-local tool.
func (r *toolRegistry) Unregister(name string) {
	r.mu.Lock()
	delete(r.local, name)
	r.mu.Unlock()
}

// ResetLocal clears all session-local tools, called once on session
// destroy.
func (r *toolRegistry) ResetLocal() {
	r.mu.Lock()
	r.local = map[string]*Tool{}
	r.mu.Unlock()
}

func (r *toolRegistry) lookup(name string) (*Tool, bool) {
	r.mu.Lock()
	t, ok := r.local[name]
	r.mu.Unlock()
	if ok {
		return t, true
	}
	if t, ok := r.config[name]; ok {
		return t, true
	}
	if t, ok := r.fallback[name]; ok {
		return t, true
	}
	return nil, false
}

// Dispatch resolves name through the local/config/fallback chain and
// invokes its handler, or returns a failure ToolResult naming the missing
// tool when name is registered nowhere.
func (r *toolRegistry) Dispatch(ctx context.Context, name string, args json.RawMessage) ToolResult {
	t, ok := r.lookup(name)
	if !ok {
		return Failure(fmt.Errorf("Unknown tool: %s", name))
	}
	return t.invoke(ctx, args)
}
