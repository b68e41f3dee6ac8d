// Package approval implements the Protocol Adapters: the ApprovalSystem
// and QueueDisplaySystem capabilities registered on the Runtime's
// coordinator, plus the voice-only variants that classify tools and
// filter display text for speech.
package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/runtime"
	"github.com/haasonsaas/nexus-experience/internal/streaming"
)

// Sink is the same non-blocking enqueue contract the Streaming Hook
// writes through (streaming.Sink), so the approval and display adapters
// and the hook all share one bounded event queue per session.
type Sink = streaming.Sink

// System is registered on the Runtime coordinator under the "approval"
// key. It enqueues an approval_request wire message and blocks the
// Runtime's calling goroutine until resolve_approval wakes the waiter
// (or the request's own timeout fires).
type System struct {
	sessionID string
	sink      Sink
	logger    *slog.Logger

	mu      sync.Mutex
	waiters map[string]chan string
}

// NewSystem constructs an ApprovalSystem writing onto sink for sessionID.
func NewSystem(sessionID string, sink Sink, logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{sessionID: sessionID, sink: sink, logger: logger, waiters: make(map[string]chan string)}
}

// RequestApproval implements runtime.ApprovalCapability. Multiple
// outstanding requests per session are permitted and keyed by RequestID.
func (s *System) RequestApproval(ctx context.Context, req runtime.ApprovalRequest) (string, error) {
	ch := make(chan string, 1)
	s.mu.Lock()
	s.waiters[req.RequestID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiters, req.RequestID)
		s.mu.Unlock()
	}()

	if !s.sink.Offer(s.sessionID, streaming.WireMessage{Type: "approval_request", Fields: map[string]any{
		"request_id": req.RequestID,
		"prompt":     req.Prompt,
		"options":    req.Options,
		"timeout":    req.Timeout.Seconds(),
		"default":    req.Default,
	}}) {
		s.logger.Warn("approval request dropped: queue full", "session_id", s.sessionID, "request_id", req.RequestID)
	}

	var timeoutC <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case choice := <-ch:
		return choice, nil
	case <-ctx.Done():
		return req.Default, ctx.Err()
	case <-timeoutC:
		return req.Default, nil
	}
}

// Resolve wakes the waiter for requestID with choice. It returns true iff
// a waiter was woken; it never blocks and never panics on an unknown id.
func (s *System) Resolve(requestID, choice string) bool {
	s.mu.Lock()
	ch, ok := s.waiters[requestID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- choice:
		return true
	default:
		return false
	}
}

var _ runtime.ApprovalCapability = (*System)(nil)
