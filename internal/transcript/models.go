// Package transcript implements the Transcript Store: append-only JSONL
// transcripts, an atomically-written per-conversation document and a fast
// index.json listing, title enrichment from the first user turn, and
// cross-interface mirroring into the Runtime's own session tree.
package transcript

import "time"

// Status is a VoiceConversation's lifecycle state.
type Status string

const (
	StatusActive       Status = "active"
	StatusDisconnected Status = "disconnected"
	StatusEnded        Status = "ended"
)

// EndReason classifies why a conversation ended.
type EndReason string

const (
	EndReasonSessionLimit EndReason = "session_limit"
	EndReasonNetworkError EndReason = "network_error"
	EndReasonUserEnded    EndReason = "user_ended"
	EndReasonIdleTimeout  EndReason = "idle_timeout"
	EndReasonError        EndReason = "error"
)

// DisconnectEvent records one disconnect during a voice conversation.
type DisconnectEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Reason      string    `json:"reason"`
	Reconnected bool      `json:"reconnected"`
}

// VoiceConversation is the conversation-level document. Its id is the
// same id as the bound Runtime session — there is no separate voice
// session identifier.
type VoiceConversation struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Status            Status            `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
	EndReason         EndReason         `json:"end_reason,omitempty"`
	DurationSeconds   *float64          `json:"duration_seconds,omitempty"`
	FirstMessage      string            `json:"first_message,omitempty"`
	LastMessage       string            `json:"last_message,omitempty"`
	ToolCallCount     int               `json:"tool_call_count"`
	ReconnectCount    int               `json:"reconnect_count"`
	DisconnectHistory []DisconnectEvent `json:"disconnect_history"`
}

// EntryRole distinguishes the four transcript entry kinds.
type EntryRole string

const (
	RoleUser       EntryRole = "user"
	RoleAssistant  EntryRole = "assistant"
	RoleToolCall   EntryRole = "tool_call"
	RoleToolResult EntryRole = "tool_result"
)

// Entry is a single append-only transcript.jsonl line.
type Entry struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	Role            EntryRole `json:"role"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	AudioDurationMs *int      `json:"audio_duration_ms,omitempty"`
	ItemID          string    `json:"item_id,omitempty"`
	ToolName        string    `json:"tool_name,omitempty"`
	CallID          string    `json:"call_id,omitempty"`
}

// indexEntry is the compact per-conversation row persisted in index.json
// for fast listing; it mirrors a subset of VoiceConversation's fields,
// patched in place by the same operations that touch conversation.json.
type indexEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	EndReason EndReason `json:"end_reason,omitempty"`
}

// ResumptionItem is one entry in the OpenAI Realtime API resumption-context
// format returned by GetResumptionContext.
type ResumptionItem struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Content   []ResumptionContent `json:"content,omitempty"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// ResumptionContent is one content block of a message-typed ResumptionItem.
type ResumptionContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
