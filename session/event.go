// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package session implements the client-side view of one agent session:
// event dispatch, tool dispatch, send/sendAndWait, and destroy semantics.
package session

import (
	"fmt"

	"github.com/agentsdk/go-agent-sdk/internal/json"
)

// Base carries the fields present on every event variant.
type Base struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	ParentID  string `json:"parentId,omitempty"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
}

// Event is the closed sum over known session event variants. Unknown
// discriminators parse to Unknown, preserving the original JSON.
type Event interface {
	base() Base
	// EventType returns the discriminator string this event was parsed from.
	EventType() string
}

func (b Base) base() Base       { return b }
func (b Base) EventType() string { return b.Type }

// Unknown carries any event whose type discriminator is not registered.
type Unknown struct {
	Base
	Raw json.RawMessage
}

// Known session-lifecycle discriminants (spec.md §6).
const (
	TypeSessionStart              = "session.start"
	TypeSessionResume             = "session.resume"
	TypeSessionError              = "session.error"
	TypeSessionIdle               = "session.idle"
	TypeSessionShutdown           = "session.shutdown"
	TypeSessionTitleChanged       = "session.title_changed"
	TypeSessionModelChange        = "session.model_change"
	TypeSessionModeChanged        = "session.mode_changed"
	TypeSessionPlanChanged        = "session.plan_changed"
	TypeSessionTruncation         = "session.truncation"
	TypeSessionInfo               = "session.info"
	TypeSessionWarning            = "session.warning"
	TypeSessionHandoff            = "session.handoff"
	TypeSessionWorkspaceFileChange = "session.workspace_file_changed"
	TypeSessionSnapshotRewind     = "session.snapshot_rewind"
	TypeSessionContextChanged     = "session.context_changed"
	TypeSessionUsageInfo          = "session.usage_info"
	TypeSessionCompactionStart    = "session.compaction_start"
	TypeSessionCompactionComplete = "session.compaction_complete"
	TypeSessionTaskComplete       = "session.task_complete"

	TypeUserMessage              = "user.message"
	TypeSystemMessage            = "system.message"
	TypePendingMessagesModified  = "pending_messages.modified"

	TypeAssistantTurnStart     = "assistant.turn_start"
	TypeAssistantIntent        = "assistant.intent"
	TypeAssistantReasoning     = "assistant.reasoning"
	TypeAssistantReasoningDelta = "assistant.reasoning_delta"
	TypeAssistantStreamingDelta = "assistant.streaming_delta"
	TypeAssistantMessage       = "assistant.message"
	TypeAssistantMessageDelta  = "assistant.message_delta"
	TypeAssistantTurnEnd       = "assistant.turn_end"
	TypeAssistantUsage         = "assistant.usage"
	TypeAssistantThinking      = "assistant.thinking"

	TypeAbort = "abort"

	TypeToolUserRequested         = "tool.user_requested"
	TypeToolCall                  = "tool.call"
	TypeToolExecutionStart        = "tool.execution_start"
	TypeToolExecutionPartialResult = "tool.execution_partial_result"
	TypeToolExecutionProgress     = "tool.execution_progress"
	TypeToolExecutionComplete     = "tool.execution_complete"

	TypeSkillInvoked = "skill.invoked"

	TypeSubagentStarted   = "subagent.started"
	TypeSubagentCompleted = "subagent.completed"
	TypeSubagentFailed    = "subagent.failed"
	TypeSubagentSelected  = "subagent.selected"

	TypeHookStart = "hook.start"
	TypeHookEnd   = "hook.end"
)

// SessionError is the variant SendAndWait watches for to fail a pending
// aggregation.
type SessionError struct {
	Base
	Message string `json:"message"`
}

// SessionIdle marks the agent has gone quiet; SendAndWait treats this as a
// signal that streamed output is complete.
type SessionIdle struct {
	Base
}

// AssistantMessage carries a complete assistant message.
type AssistantMessage struct {
	Base
	Content string `json:"content"`
}

// AssistantMessageDelta carries one incremental chunk of assistant output.
type AssistantMessageDelta struct {
	Base
	DeltaContent string `json:"deltaContent"`
}

// ToolCallEvent mirrors the tool.call discriminant as an Event (distinct
// from the server->client tool.call RPC request, which the client routes
// to toolRegistry.Dispatch).
type ToolCallEvent struct {
	Base
	ToolName   string          `json:"toolName"`
	ToolCallID string          `json:"toolCallId"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
}

// factory decodes raw JSON (already known to carry this discriminator)
// into a concrete Event. A field whose JSON type does not match the
// variant's struct is a parse error; a missing field is not detected and
// is left at its zero value.
type factory func(base Base, raw json.RawMessage) (Event, error)

var registry = map[string]factory{
	TypeSessionError:         decodeAs(func() *SessionError { return &SessionError{} }),
	TypeSessionIdle:          decodeAs(func() *SessionIdle { return &SessionIdle{} }),
	TypeAssistantMessage:      decodeAs(func() *AssistantMessage { return &AssistantMessage{} }),
	TypeAssistantMessageDelta: decodeAs(func() *AssistantMessageDelta { return &AssistantMessageDelta{} }),
	TypeToolCall:              decodeAs(func() *ToolCallEvent { return &ToolCallEvent{} }),
}

// Plain is the variant for every registered discriminant without a bespoke
// struct: it carries Base plus the event's nested "data" object, if any.
// Other top-level fields of such an event are not kept.
type Plain struct {
	Base
	Data json.RawMessage `json:"data,omitempty"`
}

func init() {
	for _, t := range []string{
		TypeSessionStart, TypeSessionResume, TypeSessionShutdown,
		TypeSessionTitleChanged, TypeSessionModelChange, TypeSessionModeChanged,
		TypeSessionPlanChanged, TypeSessionTruncation, TypeSessionInfo,
		TypeSessionWarning, TypeSessionHandoff, TypeSessionWorkspaceFileChange,
		TypeSessionSnapshotRewind, TypeSessionContextChanged, TypeSessionUsageInfo,
		TypeSessionCompactionStart, TypeSessionCompactionComplete, TypeSessionTaskComplete,
		TypeUserMessage, TypeSystemMessage, TypePendingMessagesModified,
		TypeAssistantTurnStart, TypeAssistantIntent, TypeAssistantReasoning,
		TypeAssistantReasoningDelta, TypeAssistantStreamingDelta, TypeAssistantTurnEnd,
		TypeAssistantUsage, TypeAssistantThinking, TypeAbort,
		TypeToolUserRequested, TypeToolExecutionStart, TypeToolExecutionPartialResult,
		TypeToolExecutionProgress, TypeToolExecutionComplete, TypeSkillInvoked,
		TypeSubagentStarted, TypeSubagentCompleted, TypeSubagentFailed, TypeSubagentSelected,
		TypeHookStart, TypeHookEnd,
	} {
		registry[t] = decodeAs(func() *Plain { return &Plain{} })
	}
}

// decodeAs builds a factory for a concrete event variant. Some variants are
// emitted either with their fields flat on the event object or nested under
// a sibling "data" object for backwards compatibility (spec.md §4.6); the
// data.* layout is decoded first as a fallback, then the flat layout is
// decoded on top so flat fields always win when both are present.
func decodeAs[T interface {
	*E
	Event
}, E any](newT func() T) factory {
	return func(base Base, raw json.RawMessage) (Event, error) {
		v := newT()
		var wrapper struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Data) > 0 {
			// Best-effort: a variant with no nested layout simply leaves v
			// unchanged here, and the flat decode below is authoritative.
			json.Unmarshal(wrapper.Data, v)
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("session event %q: %w", base.Type, err)
		}
		return v, nil
	}
}

// ParseEvent decodes one session.event payload. The event may be flat or
// wrapped as {event: {...}}; this function expects the unwrapped object
// (unwrapping is the caller's job, since it also needs the sibling
// sessionId). A missing type discriminator or a field of the wrong JSON
// type is a parse error; missing fields are not checked and default to
// their zero value.
func ParseEvent(raw json.RawMessage) (Event, error) {
	var base Base
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("session event: %w", err)
	}
	if base.Type == "" {
		return nil, fmt.Errorf("session event: missing type discriminator")
	}

	fn, ok := registry[base.Type]
	if !ok {
		return &Unknown{Base: base, Raw: raw}, nil
	}
	return fn(base, raw)
}
