package backend

import (
	"context"
	"fmt"
	"sync"
)

// RecordedCall captures one method invocation against the MockBackend for
// test assertions (spec.md §4.2).
type RecordedCall struct {
	Method string
	Args   map[string]any
	Result any
}

// MockBackend is a drop-in Backend replacement for tests and simulator
// modes. Responses default to "[Mock response to: <msg>]"; ResponseFn
// overrides. Every call is recorded, including reconnect/cancel/approval
// no-ops.
type MockBackend struct {
	// ResponseFn overrides the default response text when non-nil.
	ResponseFn func(sessionID, message string) string

	mu       sync.Mutex
	sessions map[string]SessionInfo
	calls    []RecordedCall
}

// NewMockBackend constructs an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{sessions: make(map[string]SessionInfo)}
}

func (m *MockBackend) record(method string, args map[string]any, result any) {
	m.calls = append(m.calls, RecordedCall{Method: method, Args: cloneArgs(args), Result: result})
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// Calls returns a defensive copy of the recorded call log, in order.
func (m *MockBackend) Calls() []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockBackend) CreateSession(ctx context.Context, opts CreateSessionOptions) (SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("mock-session-%d", len(m.sessions)+1)
	info := SessionInfo{
		SessionID:   id,
		ProjectID:   deriveProjectID(opts.WorkingDir),
		WorkingDir:  opts.WorkingDir,
		IsActive:    true,
		CreatedBy:   opts.CreatedBy,
		Description: opts.Description,
	}
	m.sessions[id] = info
	m.record("create_session", map[string]any{"working_dir": opts.WorkingDir, "bundle": opts.Bundle}, info)
	return info, nil
}

func (m *MockBackend) SendMessage(ctx context.Context, sessionID, message string) (string, error) {
	m.mu.Lock()
	info, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		err := fmt.Errorf("send_message %s: %w", sessionID, ErrUnknownSession)
		m.mu.Lock()
		m.record("send_message", map[string]any{"session_id": sessionID, "message": message}, err.Error())
		m.mu.Unlock()
		return "", err
	}
	_ = info
	result := fmt.Sprintf("[Mock response to: %s]", message)
	if m.ResponseFn != nil {
		result = m.ResponseFn(sessionID, message)
	}
	m.mu.Lock()
	m.record("send_message", map[string]any{"session_id": sessionID, "message": message}, result)
	m.mu.Unlock()
	return result, nil
}

func (m *MockBackend) Execute(ctx context.Context, sessionID, prompt string, images [][]byte) (string, error) {
	result, err := m.SendMessage(ctx, sessionID, prompt)
	m.mu.Lock()
	m.record("execute", map[string]any{"session_id": sessionID, "prompt": prompt}, result)
	m.mu.Unlock()
	return result, err
}

func (m *MockBackend) CancelSession(ctx context.Context, sessionID string, level CancelLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("cancel_session", map[string]any{"session_id": sessionID, "level": level}, nil)
}

func (m *MockBackend) ResolveApproval(sessionID, requestID, choice string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("resolve_approval", map[string]any{"session_id": sessionID, "request_id": requestID, "choice": choice}, false)
	return false
}

func (m *MockBackend) ResumeSession(ctx context.Context, sessionID, workingDir string, opts CreateSessionOptions) (SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[sessionID]
	if !ok {
		info = SessionInfo{SessionID: sessionID, ProjectID: deriveProjectID(workingDir), WorkingDir: workingDir, IsActive: true}
		m.sessions[sessionID] = info
	}
	m.record("resume_session", map[string]any{"session_id": sessionID, "working_dir": workingDir}, info)
	return info, nil
}

func (m *MockBackend) EndSession(ctx context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	m.record("end_session", map[string]any{"session_id": sessionID}, nil)
}

func (m *MockBackend) GetSessionInfo(sessionID string) (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[sessionID]
	return info, ok
}

// ListActiveSessions filters on is_active, per spec.md §4.2.
func (m *MockBackend) ListActiveSessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, info := range m.sessions {
		if info.IsActive {
			out = append(out, info)
		}
	}
	return out
}

func (m *MockBackend) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("stop", nil, nil)
}

var _ Backend = (*MockBackend)(nil)
