package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/eventqueue"
	"github.com/haasonsaas/nexus-experience/internal/runtime"
	"github.com/haasonsaas/nexus-experience/internal/sessions"
	"github.com/haasonsaas/nexus-experience/pkg/models"
)

// endSessionDrainBound and stopDrainBound are the graceful-shutdown
// timeouts from spec.md §5.
const (
	endSessionDrainBound = 5 * time.Second
	stopDrainBound       = 10 * time.Second
	reconnectLockTimeout = 30 * time.Second
)

// handle is the backend-local binding of session_id -> live Runtime
// session object plus bookkeeping.
type handle struct {
	sess        *runtime.Session
	worker      *worker
	cancel      context.CancelFunc
	info        SessionInfo
	approval    *approvalRegistration
	hookRegID   string
	eventQueue  *eventqueue.Queue
}

// approvalRegistration is set when an ApprovalSystem is wired to this
// handle; owned by the gateway layer but tracked here so resolve_approval
// can be dispatched without the gateway needing its own session map.
type approvalRegistration struct {
	resolve func(requestID, choice string) bool
}

// WireFunc installs the Streaming Hook and Protocol Adapters on a freshly
// created or reconnected Runtime session. It returns the hook
// registration id (for unregistration) and an ApprovalSystem resolver.
// The backend does not know the concrete adapter types; this keeps the
// dependency direction pointing from the gateway/voice layer inward
// without backend importing streaming/approval packages.
type WireFunc func(sess *runtime.Session, q *eventqueue.Queue) (hookRegID string, resolve func(requestID, choice string) bool)

// RuntimeBackend is the real Session Backend, driving a runtime.Runtime.
type RuntimeBackend struct {
	rt          runtime.Runtime
	logger      *slog.Logger
	runtimeHome string
	wire        WireFunc

	mu         sync.Mutex
	handles    map[string]*handle
	tombstones *tombstones
	locks      *sessions.SessionLockManager

	bundleOverlayPath string
}

// NewRuntimeBackend constructs a RuntimeBackend. runtimeHome is the root
// under which `projects/*/sessions/<id>/transcript.jsonl` is scanned for
// reconnect. wire installs the hook pipeline on every (re)created session;
// it must be supplied since the backend itself has no opinion on wire
// formats.
func NewRuntimeBackend(rt runtime.Runtime, runtimeHome string, wire WireFunc, logger *slog.Logger) *RuntimeBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuntimeBackend{
		rt:          rt,
		logger:      logger,
		runtimeHome: runtimeHome,
		wire:        wire,
		handles:     make(map[string]*handle),
		tombstones:  newTombstones(),
		locks:       sessions.NewSessionLockManager(reconnectLockTimeout),
	}
}

// deriveProjectID replaces path separators with '-', preserving a leading
// separator as a prefix dash (spec.md §3 glossary).
func deriveProjectID(workingDir string) string {
	return strings.ReplaceAll(workingDir, string(os.PathSeparator), "-")
}

// resolveBundle prefers a local overlay bundle file (composing distro
// defaults with user selections) when present, otherwise falls back to
// loading by name (spec.md §4.1 "Bundle loading policy").
func (b *RuntimeBackend) resolveBundle(requested string) string {
	if b.bundleOverlayPath == "" {
		return requested
	}
	if _, err := os.Stat(b.bundleOverlayPath); err == nil {
		return b.bundleOverlayPath
	}
	return requested
}

// SetBundleOverlayPath configures the local overlay bundle path checked
// by resolveBundle.
func (b *RuntimeBackend) SetBundleOverlayPath(path string) {
	b.bundleOverlayPath = path
}

func (b *RuntimeBackend) CreateSession(ctx context.Context, opts CreateSessionOptions) (SessionInfo, error) {
	sess, err := b.rt.CreateSession(ctx, runtime.CreateOptions{WorkingDir: opts.WorkingDir, Bundle: b.resolveBundle(opts.Bundle)})
	if err != nil {
		return SessionInfo{}, fmt.Errorf("create session: %w", err)
	}

	info := SessionInfo{
		SessionID:   sess.ID,
		ProjectID:   deriveProjectID(opts.WorkingDir),
		WorkingDir:  opts.WorkingDir,
		IsActive:    true,
		CreatedBy:   opts.CreatedBy,
		Description: opts.Description,
	}

	h := &handle{sess: sess, info: info}
	if opts.EventQueue != nil {
		h.eventQueue = opts.EventQueue
		h.hookRegID, _ = b.wireSession(h)
	}

	wctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.worker = newWorker(func(ctx context.Context, message string, images [][]byte) (string, error) {
		return b.rt.Run(ctx, sess, message, images)
	})
	h.worker.start(wctx)

	b.mu.Lock()
	b.handles[sess.ID] = h
	b.mu.Unlock()

	return info, nil
}

func (b *RuntimeBackend) wireSession(h *handle) (string, func(requestID, choice string) bool) {
	if b.wire == nil {
		return "", nil
	}
	id, resolve := b.wire(h.sess, h.eventQueue)
	h.approval = &approvalRegistration{resolve: resolve}
	return id, resolve
}

func (b *RuntimeBackend) getHandle(sessionID string) (*handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handles[sessionID]
	return h, ok
}

func (b *RuntimeBackend) SendMessage(ctx context.Context, sessionID, message string) (string, error) {
	h, ok := b.getHandle(sessionID)
	if !ok {
		var err error
		h, err = b.reconnect(ctx, sessionID, "", nil)
		if err != nil {
			return "", err
		}
	}
	return h.worker.submit(ctx, message, nil)
}

func (b *RuntimeBackend) Execute(ctx context.Context, sessionID, prompt string, images [][]byte) (string, error) {
	h, ok := b.getHandle(sessionID)
	if !ok {
		return "", fmt.Errorf("execute %s: %w", sessionID, ErrUnknownSession)
	}
	return h.worker.submit(ctx, prompt, images)
}

func (b *RuntimeBackend) CancelSession(ctx context.Context, sessionID string, level CancelLevel) {
	h, ok := b.getHandle(sessionID)
	if !ok {
		return
	}
	_ = b.rt.Cancel(ctx, h.sess, level == CancelImmediate)
}

func (b *RuntimeBackend) ResolveApproval(sessionID, requestID, choice string) bool {
	h, ok := b.getHandle(sessionID)
	if !ok || h.approval == nil || h.approval.resolve == nil {
		return false
	}
	return h.approval.resolve(requestID, choice)
}

// ResumeSession rebuilds or re-wires a Handle. Per spec.md §9's preserved
// asymmetry, the tombstone is cleared only when opts.EventQueue is set —
// an explicit consumer attaching is what signals operator intent to
// revive a session.
func (b *RuntimeBackend) ResumeSession(ctx context.Context, sessionID, workingDir string, opts CreateSessionOptions) (SessionInfo, error) {
	if opts.EventQueue != nil {
		b.tombstones.clear(sessionID)
	}
	h, ok := b.getHandle(sessionID)
	if ok {
		// A new queue always replaces whatever wiring the handle had before
		// (spec.md §4.4's "queue replacement on teardown"): a reconnecting
		// transport should never silently share, or race against, a prior
		// consumer's queue.
		if opts.EventQueue != nil {
			h.eventQueue = opts.EventQueue
			h.hookRegID, _ = b.wireSession(h)
		}
		return h.info, nil
	}
	newHandle, err := b.reconnect(ctx, sessionID, workingDir, opts.EventQueue)
	if err != nil {
		return SessionInfo{}, err
	}
	return newHandle.info, nil
}

// reconnect implements spec.md §4.1's seven-step reconnect algorithm.
func (b *RuntimeBackend) reconnect(ctx context.Context, sessionID, workingDir string, eq *eventqueue.Queue) (*handle, error) {
	if b.tombstones.has(sessionID) {
		return nil, fmt.Errorf("reconnect %s: %w", sessionID, ErrUnknownSession)
	}

	release, err := b.locks.Acquire(ctx, sessionID, "reconnect", reconnectLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("reconnect lock %s: %w", sessionID, err)
	}
	defer release()

	// Double-check under lock: a concurrent caller may have already
	// reconnected while we waited.
	if h, ok := b.getHandle(sessionID); ok {
		return h, nil
	}
	if b.tombstones.has(sessionID) {
		return nil, fmt.Errorf("reconnect %s: %w", sessionID, ErrUnknownSession)
	}

	// With no transcript on disk, a caller that names the working
	// directory (ResumeSession) still gets a session, seeded with nothing.
	var loaded []*models.Message
	transcriptPath, projectDir, err := b.findTranscript(sessionID)
	switch {
	case err == nil:
		if workingDir == "" {
			workingDir = decodeProjectID(filepath.Base(projectDir))
		}
		loaded, err = loadTranscript(transcriptPath)
		if err != nil {
			return nil, fmt.Errorf("load transcript for %s: %w", sessionID, err)
		}
	case workingDir == "":
		return nil, fmt.Errorf("reconnect %s: %w", sessionID, ErrUnknownSession)
	}

	report := sessions.RepairToolCallPairing(loaded)
	repaired := report.Messages

	seeded := toRuntimeMessages(repaired)
	if !hasSystemMessage(seeded) {
		// The session is seeded with exactly the repaired transcript:
		// when it holds no system message, none is added, and system
		// messages from the Runtime's fresh context are not carried over.
		_ = seeded
	}

	sess, err := b.rt.CreateSession(ctx, runtime.CreateOptions{
		SessionID:       sessionID,
		WorkingDir:      workingDir,
		IsResumed:       true,
		InitialMessages: seeded,
	})
	if err != nil {
		return nil, fmt.Errorf("reconnect create session %s: %w", sessionID, err)
	}

	info := SessionInfo{
		SessionID:            sessionID,
		ProjectID:            deriveProjectID(workingDir),
		WorkingDir:           workingDir,
		IsActive:             true,
		RestoredMessageCount: len(seeded),
	}
	h := &handle{sess: sess, info: info}
	if eq != nil {
		h.eventQueue = eq
		h.hookRegID, _ = b.wireSession(h)
	}

	wctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.worker = newWorker(func(ctx context.Context, message string, images [][]byte) (string, error) {
		return b.rt.Run(ctx, sess, message, images)
	})
	h.worker.start(wctx)

	b.mu.Lock()
	b.handles[sessionID] = h
	b.mu.Unlock()

	b.logger.Info("session reconnected", "session_id", sessionID, "synthetic_results", report.AddedSyntheticResults())
	return h, nil
}

func hasSystemMessage(msgs []runtime.Message) bool {
	for _, m := range msgs {
		if m.Role == "system" {
			return true
		}
	}
	return false
}

func toRuntimeMessages(msgs []*models.Message) []runtime.Message {
	out := make([]runtime.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		rm := runtime.Message{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			rm.ToolCalls = append(rm.ToolCalls, runtime.ToolCall{ID: tc.ID, Name: tc.Name, ArgsJSON: string(tc.Input)})
		}
		for _, tr := range m.ToolResults {
			rm.ToolResults = append(rm.ToolResults, runtime.ToolResult{ToolCallID: tr.ToolCallID, Content: tr.Content, IsError: tr.IsError})
		}
		out = append(out, rm)
	}
	return out
}

// findTranscript scans <runtime-home>/projects/*/sessions/<id>/transcript.jsonl.
func (b *RuntimeBackend) findTranscript(sessionID string) (transcriptPath, projectDir string, err error) {
	projectsDir := filepath.Join(b.runtimeHome, "projects")
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return "", "", err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(projectsDir, e.Name(), "sessions", sessionID, "transcript.jsonl")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, filepath.Join(projectsDir, e.Name()), nil
		}
	}
	return "", "", fmt.Errorf("no transcript found for session %s", sessionID)
}

func decodeProjectID(dirName string) string {
	if strings.HasPrefix(dirName, "-") {
		return strings.ReplaceAll(dirName, "-", "/")
	}
	return dirName
}

// loadTranscript parses a JSONL transcript into models.Message values in
// file order.
func loadTranscript(path string) ([]*models.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*models.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg := &models.Message{}
		if err := json.Unmarshal([]byte(line), msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, scanner.Err()
}

func (b *RuntimeBackend) EndSession(ctx context.Context, sessionID string) {
	b.tombstones.add(sessionID)

	b.mu.Lock()
	h, ok := b.handles[sessionID]
	if ok {
		delete(b.handles, sessionID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	h.worker.sendSentinel()
	select {
	case <-h.worker.stopped:
	case <-time.After(endSessionDrainBound):
		h.cancel()
		<-h.worker.stopped
	}
}

func (b *RuntimeBackend) GetSessionInfo(sessionID string) (SessionInfo, bool) {
	h, ok := b.getHandle(sessionID)
	if !ok {
		return SessionInfo{}, false
	}
	return h.info, true
}

func (b *RuntimeBackend) ListActiveSessions() []SessionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SessionInfo, 0, len(b.handles))
	for _, h := range b.handles {
		if h.info.IsActive {
			out = append(out, h.info)
		}
	}
	return out
}

func (b *RuntimeBackend) Stop(ctx context.Context) {
	b.mu.Lock()
	handlesCopy := make([]*handle, 0, len(b.handles))
	for _, h := range b.handles {
		handlesCopy = append(handlesCopy, h)
	}
	b.handles = make(map[string]*handle)
	b.mu.Unlock()

	for _, h := range handlesCopy {
		h.worker.sendSentinel()
	}

	deadline := time.After(stopDrainBound)
	for _, h := range handlesCopy {
		select {
		case <-h.worker.stopped:
		case <-deadline:
			h.cancel()
			<-h.worker.stopped
		}
	}
}

var _ Backend = (*RuntimeBackend)(nil)
