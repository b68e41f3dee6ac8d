package streaming

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus-experience/internal/runtime"
)

type fakeSink struct {
	msgs []WireMessage
	full bool
}

func (f *fakeSink) Offer(sessionID string, msg WireMessage) bool {
	if f.full {
		return false
	}
	f.msgs = append(f.msgs, msg)
	return true
}

func TestSanitizeReplacesOversizedStrings(t *testing.T) {
	long := make([]byte, base64Threshold+1)
	for i := range long {
		long[i] = 'a'
	}
	out := sanitize(map[string]any{
		"short":  "fine",
		"long":   string(long),
		"nested": map[string]any{"long": string(long)},
	})
	if out["short"] != "fine" {
		t.Fatalf("short value mutated: %v", out["short"])
	}
	if out["long"] != oversizedPlaceholder {
		t.Fatalf("expected placeholder, got %v", out["long"])
	}
	nested := out["nested"].(map[string]any)
	if nested["long"] != oversizedPlaceholder {
		t.Fatalf("expected nested placeholder, got %v", nested["long"])
	}
}

func TestContentBlockLifecycleTracksType(t *testing.T) {
	sink := &fakeSink{}
	h := NewHook(sink, nil)
	ctx := context.Background()

	_ = h.Handle(ctx, runtime.Event{Name: runtime.EventContentBlockStart, SessionID: "s1", Payload: map[string]any{
		"index": 0, "content_block": map[string]any{"type": "text"},
	}})
	_ = h.Handle(ctx, runtime.Event{Name: runtime.EventContentBlockDelta, SessionID: "s1", Payload: map[string]any{
		"index": 0, "delta": map[string]any{"text": "hello"},
	}})
	_ = h.Handle(ctx, runtime.Event{Name: runtime.EventContentBlockEnd, SessionID: "s1", Payload: map[string]any{"index": 0}})

	if len(sink.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(sink.msgs))
	}
	if sink.msgs[0].Type != "content_start" {
		t.Fatalf("expected content_start, got %s", sink.msgs[0].Type)
	}
	delta := sink.msgs[1]
	if delta.Type != "content_delta" || delta.Fields["block_type"] != "text" || delta.Fields["delta"] != "hello" {
		t.Fatalf("unexpected delta message: %+v", delta)
	}
	if sink.msgs[2].Type != "content_end" {
		t.Fatalf("expected content_end, got %s", sink.msgs[2].Type)
	}
}

func TestFallbackMappingDerivesType(t *testing.T) {
	sink := &fakeSink{}
	h := NewHook(sink, nil)
	_ = h.Handle(context.Background(), runtime.Event{Name: runtime.EventName("weird:event_block"), SessionID: "s1"})
	if len(sink.msgs) != 1 || sink.msgs[0].Type != "weird_event" {
		t.Fatalf("unexpected fallback mapping: %+v", sink.msgs)
	}
}

func TestDropOnFullQueueDoesNotError(t *testing.T) {
	sink := &fakeSink{full: true}
	h := NewHook(sink, nil)
	if err := h.Handle(context.Background(), runtime.Event{Name: runtime.EventToolPre, SessionID: "s1"}); err != nil {
		t.Fatalf("hook must never return an error to the pipeline: %v", err)
	}
}
