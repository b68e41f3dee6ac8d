// Package runtime defines the boundary between the Experience Server and
// the local agent Runtime: the coordinator capability bag, the canonical
// event vocabulary it emits, and the session handle it hands back.
//
// The Runtime's internals (LLM calls, tool execution) are an external
// collaborator and are not implemented here. This package only models the
// shape the server depends on, plus a deterministic in-memory
// implementation used by tests and the Mock Backend.
package runtime

import (
	"context"
	"time"
)

// EventName enumerates every canonical event the Runtime emits. The
// Streaming Hook registers exactly one handler per name below — no
// wildcard subscription.
type EventName string

const (
	EventContentBlockStart EventName = "content_block:start"
	EventContentBlockDelta EventName = "content_block:delta"
	EventContentBlockEnd   EventName = "content_block:end"
	EventThinkingDelta     EventName = "thinking:delta"
	EventThinkingFinal     EventName = "thinking:final"
	EventToolPre           EventName = "tool:pre"
	EventToolPost          EventName = "tool:post"
	EventToolError         EventName = "tool:error"
	EventSessionFork       EventName = "session:fork"
	EventSessionStart      EventName = "session:start"
	EventSessionEnd        EventName = "session:end"
	EventProviderRequest   EventName = "provider:request"
	EventLLMRequest        EventName = "llm:request"
	EventLLMRequestRaw     EventName = "llm:request:raw"
	EventProviderResponse  EventName = "provider:response"
	EventLLMResponse       EventName = "llm:response"
	EventLLMResponseRaw    EventName = "llm:response:raw"
	EventContextCompaction EventName = "context:compaction"
	EventUserNotification  EventName = "user:notification"
	EventCancelRequested   EventName = "cancel:requested"
	EventCancelCompleted   EventName = "cancel:completed"
)

// EventsToCapture is the full canonical vocabulary the Streaming Hook
// subscribes to. Order is not meaningful; it exists so callers (and tests)
// can range over "every event the hook cares about."
var EventsToCapture = []EventName{
	EventContentBlockStart, EventContentBlockDelta, EventContentBlockEnd,
	EventThinkingDelta, EventThinkingFinal,
	EventToolPre, EventToolPost, EventToolError,
	EventSessionFork, EventSessionStart, EventSessionEnd,
	EventProviderRequest, EventLLMRequest, EventLLMRequestRaw,
	EventProviderResponse, EventLLMResponse, EventLLMResponseRaw,
	EventContextCompaction, EventUserNotification,
	EventCancelRequested, EventCancelCompleted,
}

// Event is one canonical Runtime event. Payload carries event-specific
// fields as a string-keyed map so the Streaming Hook can sanitize it
// generically before mapping it to a wire message.
type Event struct {
	Name      EventName
	SessionID string
	Payload   map[string]any
}

// HookHandler is a single canonical-event handler, mirroring the
// Runtime's hook pipeline contract: return an error only to signal the
// handler itself failed (the pipeline logs and continues regardless).
type HookHandler func(ctx context.Context, ev Event) error

// Coordinator is the Runtime's capability bag: a small set of named,
// typed slots rather than a string-keyed map, per the static-typing
// redesign this server adopts. Capabilities are installed after session
// creation ("late registration") via the SetApproval/SetDisplay methods
// below.
type Coordinator interface {
	// RegisterHook subscribes handler to every name in EventsToCapture and
	// returns a registration ID that UnregisterHook releases.
	RegisterHook(handler HookHandler) string
	UnregisterHook(id string)

	// SetApproval installs the approval capability under the well-known
	// "approval" slot.
	SetApproval(ApprovalCapability)
	// SetDisplay installs the display capability under the well-known
	// "display" slot.
	SetDisplay(DisplayCapability)
}

// ApprovalCapability is what the Runtime calls to gate a dangerous action.
type ApprovalCapability interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (string, error)
}

// ApprovalRequest describes one approval gate raised by the Runtime.
type ApprovalRequest struct {
	RequestID string
	Prompt    string
	Options   []string
	Timeout   time.Duration
	Default   string
}

// DisplayCapability is what the Runtime calls to surface a user-visible
// status message outside of the model's own text stream.
type DisplayCapability interface {
	Display(ctx context.Context, level, message string)
}

// Session is the live Runtime session object bound to one working
// directory. It is the thing a Handle wraps.
type Session struct {
	ID         string
	WorkingDir string
	IsResumed  bool
	Coord      Coordinator
	// Messages holds whatever CreateOptions.InitialMessages the session
	// was seeded with, so callers that need to inspect restored context
	// (e.g. a reconnect's system-message check) can do so after creation.
	Messages []Message
}

// CreateOptions parametrizes Runtime.CreateSession.
type CreateOptions struct {
	SessionID  string // non-empty to resume/recreate a specific id
	WorkingDir string
	Bundle     string
	IsResumed  bool
	// InitialMessages seeds the fresh session's context, replacing the
	// provider-issued default (used by reconnect to restore a transcript).
	InitialMessages []Message
}

// Message is the Runtime's own transcript message shape, used to seed a
// reconnected session and to describe loaded/repaired transcripts.
type Message struct {
	Role        string // user | assistant | system | tool
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall mirrors an assistant tool invocation request.
type ToolCall struct {
	ID       string
	Name     string
	ArgsJSON string
}

// ToolResult mirrors a tool's output bound to a ToolCall.ID.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Runtime is the external collaborator this server drives. It is not
// re-specified here beyond the shape the server depends on.
type Runtime interface {
	CreateSession(ctx context.Context, opts CreateOptions) (*Session, error)
	// Run executes one turn (a user message or an execute()-style prompt)
	// against sess and returns the final assistant text.
	Run(ctx context.Context, sess *Session, input string, images [][]byte) (string, error)
	// Cancel requests cancellation at the given level for sess.
	Cancel(ctx context.Context, sess *Session, immediate bool) error
}
