package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// coordinator is the default in-memory Coordinator: a registry of one
// hook (set by RegisterHook) plus the approval/display slots.
type coordinator struct {
	mu       sync.Mutex
	handlers map[string]HookHandler
	approval ApprovalCapability
	display  DisplayCapability
}

func newCoordinator() *coordinator {
	return &coordinator{handlers: make(map[string]HookHandler)}
}

func (c *coordinator) RegisterHook(h HookHandler) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.handlers[id] = h
	return id
}

func (c *coordinator) UnregisterHook(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, id)
}

func (c *coordinator) SetApproval(a ApprovalCapability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approval = a
}

func (c *coordinator) SetDisplay(d DisplayCapability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.display = d
}

func (c *coordinator) emit(ctx context.Context, ev Event) {
	c.mu.Lock()
	handlers := make([]HookHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		// Hook handlers swallow and log their own exceptions; they must not
		// break the pipeline. The mock emitter mirrors that contract.
		_ = h(ctx, ev)
	}
}

// MockRuntime is a deterministic, in-process Runtime used by
// cmd/experienced as its Runtime and by component tests that need a real
// (if synthetic) event
// stream to drive the Streaming Hook and Protocol Adapters end to end.
type MockRuntime struct {
	mu       sync.Mutex
	sessions map[string]*coordinator
	// ResponseFn overrides the default "[Mock response to: <msg>]" text.
	ResponseFn func(sessionID, input string) string
}

// NewMockRuntime constructs an empty MockRuntime.
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{sessions: make(map[string]*coordinator)}
}

func (m *MockRuntime) CreateSession(ctx context.Context, opts CreateOptions) (*Session, error) {
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	coord := newCoordinator()
	m.mu.Lock()
	m.sessions[id] = coord
	m.mu.Unlock()
	coord.emit(ctx, Event{Name: EventSessionStart, SessionID: id})
	return &Session{ID: id, WorkingDir: opts.WorkingDir, IsResumed: opts.IsResumed, Coord: coord, Messages: opts.InitialMessages}, nil
}

func (m *MockRuntime) Run(ctx context.Context, sess *Session, input string, images [][]byte) (string, error) {
	coord, ok := sess.Coord.(*coordinator)
	if !ok {
		coord = newCoordinator()
	}
	coord.emit(ctx, Event{Name: EventContentBlockStart, SessionID: sess.ID, Payload: map[string]any{"index": 0, "content_block": map[string]any{"type": "text"}}})
	result := fmt.Sprintf("[Mock response to: %s]", input)
	if m.ResponseFn != nil {
		result = m.ResponseFn(sess.ID, input)
	}
	coord.emit(ctx, Event{Name: EventContentBlockDelta, SessionID: sess.ID, Payload: map[string]any{"index": 0, "delta": map[string]any{"text": result}}})
	coord.emit(ctx, Event{Name: EventContentBlockEnd, SessionID: sess.ID, Payload: map[string]any{"index": 0}})
	return result, nil
}

func (m *MockRuntime) Cancel(ctx context.Context, sess *Session, immediate bool) error {
	coord, ok := sess.Coord.(*coordinator)
	if !ok {
		return nil
	}
	level := "graceful"
	if immediate {
		level = "immediate"
	}
	coord.emit(ctx, Event{Name: EventCancelRequested, SessionID: sess.ID, Payload: map[string]any{"level": level}})
	coord.emit(ctx, Event{Name: EventCancelCompleted, SessionID: sess.ID, Payload: map[string]any{"level": level}})
	return nil
}

// NewCoordinator exposes a standalone Coordinator for tests that want to
// drive hook registration without a full MockRuntime session.
func NewCoordinator() Coordinator { return newCoordinator() }

// Emit is a test helper that fires ev through coord's registered hooks.
func Emit(ctx context.Context, coord Coordinator, ev Event) {
	if c, ok := coord.(*coordinator); ok {
		c.emit(ctx, ev)
	}
}
