package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus-experience/internal/streaming"
)

// SafeTools are auto-approved without prompting.
var SafeTools = map[string]bool{
	"read_file":  true,
	"list_files": true,
	"search":     true,
	"grep":       true,
	"glob":       true,
}

// DangerousTools always require a prompt.
var DangerousTools = map[string]bool{
	"bash":       true,
	"execute":    true,
	"write_file": true,
	"delete":     true,
	"git_push":   true,
	"git_commit": true,
}

// dangerousKeywords classifies unknown tool names: approval is required
// iff the name contains any of these substrings.
var dangerousKeywords = []string{
	"write", "delete", "push", "commit", "reset", "checkout", "patch", "move",
}

// RequiresApproval implements spec.md §4.3's voice approval policy: safe
// tools never prompt, dangerous tools always prompt, unknown tools prompt
// iff their name contains a dangerous keyword.
func RequiresApproval(toolName string) bool {
	if SafeTools[toolName] {
		return false
	}
	if DangerousTools[toolName] {
		return true
	}
	lower := strings.ToLower(toolName)
	for _, kw := range dangerousKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// VoiceApprovalSystem classifies tools itself (rather than deferring to
// an interactive request/response gate keyed by arbitrary prompts) and
// enforces that only one approval is ever in flight, guaranteed by
// sequential tool execution in the session worker and asserted here as a
// defensive invariant.
type VoiceApprovalSystem struct {
	sessionID string
	sink      Sink
	logger    *slog.Logger

	mu      sync.Mutex
	pending chan bool
}

// NewVoiceApprovalSystem constructs a VoiceApprovalSystem.
func NewVoiceApprovalSystem(sessionID string, sink Sink, logger *slog.Logger) *VoiceApprovalSystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceApprovalSystem{sessionID: sessionID, sink: sink, logger: logger}
}

// RequestApproval blocks until HandleResponse resolves requestID, or ctx
// is cancelled. It panics if a second request arrives while one is
// already in flight — that invariant must hold by construction (sequential
// tool execution), so a violation indicates a caller bug, not a runtime
// condition to recover from gracefully.
func (v *VoiceApprovalSystem) RequestApproval(ctx context.Context, requestID, toolName string) (bool, error) {
	v.mu.Lock()
	if v.pending != nil {
		v.mu.Unlock()
		panic("voice approval: a request is already in flight")
	}
	ch := make(chan bool, 1)
	v.pending = ch
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.pending = nil
		v.mu.Unlock()
	}()

	spoken := GenerateSpokenPrompt(toolName, "")
	if !v.sink.Offer(v.sessionID, streaming.WireMessage{Type: "approval_request", Fields: map[string]any{
		"request_id":    requestID,
		"tool_name":     toolName,
		"spoken_prompt": spoken,
		"is_dangerous":  true,
	}}) {
		v.logger.Warn("voice approval request dropped: queue full", "session_id", v.sessionID, "request_id", requestID)
	}

	select {
	case approved := <-ch:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// HandleResponse unblocks the in-flight RequestApproval call, if any.
func (v *VoiceApprovalSystem) HandleResponse(approved bool) {
	v.mu.Lock()
	ch := v.pending
	v.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- approved:
	default:
	}
}

// GenerateSpokenPrompt renders the fixed templates from spec.md §4.3. arg
// is the tool's primary argument (command, path, etc.) when known.
func GenerateSpokenPrompt(toolName, arg string) string {
	switch toolName {
	case "bash", "execute":
		cmd := arg
		if len(cmd) > 60 {
			cmd = cmd[:60]
		}
		return fmt.Sprintf("I need to run: %s. Shall I proceed?", cmd)
	case "write", "write_file":
		return fmt.Sprintf("May I write to %s?", arg)
	case "delete":
		return fmt.Sprintf("May I delete %s?", arg)
	case "git_push":
		return "May I push to the remote repository?"
	case "git_commit":
		return "May I create a git commit?"
	default:
		return fmt.Sprintf("May I use %s?", toolName)
	}
}
