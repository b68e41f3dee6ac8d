// Package streaming maps the Runtime's canonical event vocabulary onto a
// compact wire-message vocabulary for SSE/WebRTC consumers, and sanitizes
// oversized payloads before they leave the process.
package streaming

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus-experience/internal/runtime"
)

// oversizedPlaceholder replaces any string payload value longer than
// base64Threshold characters before a message is mapped and enqueued.
const (
	oversizedPlaceholder = "[image data omitted]"
	base64Threshold      = 1000
)

// WireMessage is a tagged record fed to SSE/WebRTC consumers.
type WireMessage struct {
	Type   string
	Fields map[string]any
}

// Sink receives mapped wire messages for one session. Implementations must
// not block; voiceconn's queueSink, over an eventqueue.Queue, is the
// bounded, non-blocking implementation.
type Sink interface {
	// Offer attempts a non-blocking enqueue. It returns false if the queue
	// was full and the message was dropped.
	Offer(sessionID string, msg WireMessage) bool
}

// Hook is the single handler registered for every canonical event name.
// It sanitizes, maps, and non-blockingly enqueues; it never blocks the
// Runtime and never returns an error that would break the hook pipeline.
type Hook struct {
	logger *slog.Logger
	sink   Sink

	mu          sync.Mutex
	blockTypes  map[string]map[int]string // sessionID -> index -> block_type
}

// NewHook constructs a Hook writing onto sink. If logger is nil,
// slog.Default() is used.
func NewHook(sink Sink, logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hook{sink: sink, logger: logger, blockTypes: make(map[string]map[int]string)}
}

// Handle implements runtime.HookHandler. It always returns nil: hook
// handlers swallow and log their own exceptions so the pipeline proceeds.
func (h *Hook) Handle(ctx context.Context, ev runtime.Event) error {
	payload := sanitize(ev.Payload)
	msg, ok := h.mapEvent(ev.SessionID, ev.Name, payload)
	if !ok {
		return nil
	}
	if !h.sink.Offer(ev.SessionID, msg) {
		h.logger.Warn("streaming event dropped: queue full", "session_id", ev.SessionID, "type", msg.Type)
	}
	return nil
}

// sanitize recursively copies payload, replacing any string value longer
// than base64Threshold characters with oversizedPlaceholder.
func sanitize(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		if len(val) > base64Threshold {
			return oversizedPlaceholder
		}
		return val
	case map[string]any:
		return sanitize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return val
	}
}

// mapEvent implements the canonical-to-wire mapping table. ok is false
// when the event carries no mappable content (never happens for the
// current vocabulary, but guards future additions safely).
func (h *Hook) mapEvent(sessionID string, name runtime.EventName, payload map[string]any) (WireMessage, bool) {
	switch name {
	case runtime.EventContentBlockStart:
		index, _ := payload["index"].(int)
		blockType := extractBlockType(payload)
		h.mu.Lock()
		if h.blockTypes[sessionID] == nil {
			h.blockTypes[sessionID] = make(map[int]string)
		}
		h.blockTypes[sessionID][index] = blockType
		h.mu.Unlock()
		return WireMessage{Type: "content_start", Fields: map[string]any{"index": index, "block_type": blockType}}, true

	case runtime.EventContentBlockDelta:
		index, _ := payload["index"].(int)
		h.mu.Lock()
		blockType := h.blockTypes[sessionID][index]
		h.mu.Unlock()
		return WireMessage{Type: "content_delta", Fields: map[string]any{
			"index": index, "block_type": blockType, "delta": extractDeltaText(payload),
		}}, true

	case runtime.EventContentBlockEnd:
		index, _ := payload["index"].(int)
		h.mu.Lock()
		if m := h.blockTypes[sessionID]; m != nil {
			delete(m, index)
		}
		h.mu.Unlock()
		return WireMessage{Type: "content_end", Fields: map[string]any{"index": index}}, true

	case runtime.EventThinkingDelta:
		return WireMessage{Type: "thinking_delta", Fields: payload}, true
	case runtime.EventThinkingFinal:
		return WireMessage{Type: "thinking_final", Fields: payload}, true

	case runtime.EventToolPre:
		return WireMessage{Type: "tool_call", Fields: map[string]any{
			"tool_name":     payload["tool_name"],
			"tool_call_id":  payload["tool_call_id"],
			"arguments":     payload["arguments"],
			"status":        "pending",
		}}, true
	case runtime.EventToolPost:
		return WireMessage{Type: "tool_result", Fields: map[string]any{
			"tool_name":    payload["tool_name"],
			"tool_call_id": payload["tool_call_id"],
			"output":       payload["output"],
			"success":      payload["success"],
			"error":        payload["error"],
		}}, true
	case runtime.EventToolError:
		return WireMessage{Type: "tool_error", Fields: payload}, true

	case runtime.EventSessionFork:
		return WireMessage{Type: "session_fork", Fields: map[string]any{
			"child_session_id": payload["child_session_id"],
			"agent":            payload["agent"],
		}}, true
	case runtime.EventSessionStart:
		return WireMessage{Type: "session_start", Fields: payload}, true
	case runtime.EventSessionEnd:
		return WireMessage{Type: "session_end", Fields: payload}, true

	case runtime.EventProviderRequest, runtime.EventLLMRequest, runtime.EventLLMRequestRaw:
		return WireMessage{Type: "provider_request", Fields: map[string]any{"event": string(name)}}, true
	case runtime.EventProviderResponse, runtime.EventLLMResponse, runtime.EventLLMResponseRaw:
		return WireMessage{Type: "provider_response", Fields: map[string]any{"event": string(name)}}, true

	case runtime.EventContextCompaction:
		return WireMessage{Type: "context_compaction", Fields: payload}, true
	case runtime.EventUserNotification:
		return WireMessage{Type: "display_message", Fields: payload}, true

	case runtime.EventCancelRequested:
		return WireMessage{Type: "cancel_requested", Fields: map[string]any{
			"level":         payload["level"],
			"running_tools": payload["running_tools"],
		}}, true
	case runtime.EventCancelCompleted:
		return WireMessage{Type: "cancel_completed", Fields: map[string]any{
			"level":           payload["level"],
			"tools_cancelled": payload["tools_cancelled"],
		}}, true

	default:
		derived := strings.ReplaceAll(strings.ReplaceAll(string(name), ":", "_"), "_block", "")
		return WireMessage{Type: derived, Fields: payload}, true
	}
}

func extractBlockType(payload map[string]any) string {
	block, _ := payload["content_block"].(map[string]any)
	if block == nil {
		return ""
	}
	t, _ := block["type"].(string)
	return t
}

// extractDeltaText pulls the delta text: the delta object's "text" field,
// or the delta itself when it is already a bare string.
func extractDeltaText(payload map[string]any) string {
	switch delta := payload["delta"].(type) {
	case string:
		return delta
	case map[string]any:
		if text, ok := delta["text"].(string); ok {
			return text
		}
	}
	return ""
}

// ReleaseSession drops per-session block-type bookkeeping. Called by the
// owner when a session's wiring is torn down, so the map does not grow
// unbounded across reconnects.
func (h *Hook) ReleaseSession(sessionID string) {
	h.mu.Lock()
	delete(h.blockTypes, sessionID)
	h.mu.Unlock()
}
