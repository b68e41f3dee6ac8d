// Package voiceconn implements the Voice Connection lifecycle: one
// WebRTC/SSE transport bound to a single Runtime session, with its own
// bounded event queue, Streaming Hook wiring, and voice-flavored
// Protocol Adapters (VoiceApprovalSystem, VoiceDisplaySystem).
package voiceconn

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/haasonsaas/nexus-experience/internal/approval"
	"github.com/haasonsaas/nexus-experience/internal/backend"
	"github.com/haasonsaas/nexus-experience/internal/eventqueue"
	"github.com/haasonsaas/nexus-experience/internal/hooks"
	"github.com/haasonsaas/nexus-experience/internal/runtime"
	"github.com/haasonsaas/nexus-experience/internal/streaming"
)

// wiring is the bookkeeping the Manager keeps per live connection so that
// Teardown can run hook cleanup on every exit path, per spec.md §9 Open
// Question #1's resolution: the Coordinator handed to the wire closure at
// creation time is retained here, not discarded, specifically so
// UnregisterHook has something to call later.
type wiring struct {
	coord     runtime.Coordinator
	hook      *streaming.Hook
	hookRegID string
	resolve   func(requestID, choice string) bool
}

// Connection is one voice transport's view of its bound session.
type Connection struct {
	SessionID  string
	ProjectID  string
	WorkingDir string

	mu    sync.Mutex
	queue *eventqueue.Queue
}

// Queue returns the connection's current event queue. It may change
// across a Teardown+reconnect cycle, so callers must re-fetch it rather
// than cache the pointer across a long-lived SSE/WebRTC loop.
func (c *Connection) Queue() *eventqueue.Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

func (c *Connection) setQueue(q *eventqueue.Queue) {
	c.mu.Lock()
	c.queue = q
	c.mu.Unlock()
}

// Manager owns the voice-specific wiring for every live Connection:
// hook/adapter construction, the session-id -> wiring bookkeeping map,
// and project_id derivation (with a filesystem-scan fallback when the
// working directory alone is insufficient).
type Manager struct {
	be          backend.Backend
	runtimeHome string
	logger      *slog.Logger

	mu      sync.Mutex
	wirings map[string]*wiring
}

// NewManager constructs a Manager. runtimeHome roots the project_id
// fallback scan (<runtimeHome>/projects/*/sessions/<id>).
func NewManager(be backend.Backend, runtimeHome string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		be:          be,
		runtimeHome: runtimeHome,
		logger:      logger,
		wirings:     make(map[string]*wiring),
	}
}

// SetBackend installs the backend this Manager drives. Callers outside
// this package construct a Manager before the backend.Backend it needs
// to wire exists (backend.NewRuntimeBackend itself requires this
// Manager's WireFunc), so Manager is built with a nil backend first and
// completed with SetBackend once the backend is constructed.
func (m *Manager) SetBackend(be backend.Backend) {
	m.mu.Lock()
	m.be = be
	m.mu.Unlock()
}

// WireFunc returns the backend.WireFunc this Manager installs on every
// voice-created session. It is passed to backend.NewRuntimeBackend at
// startup for the voice app's backend instance.
func (m *Manager) WireFunc() backend.WireFunc {
	return func(sess *runtime.Session, q *eventqueue.Queue) (string, func(requestID, choice string) bool) {
		sink := &queueSink{q: q}
		hook := streaming.NewHook(sink, m.logger)
		voiceApproval := approval.NewVoiceApprovalSystem(sess.ID, sink, m.logger)
		voiceDisplay := approval.NewVoiceDisplaySystem(sess.ID, sink, m.logger)

		hookRegID := sess.Coord.RegisterHook(hook.Handle)
		sess.Coord.SetApproval(&voiceApprovalAdapter{sys: voiceApproval})
		sess.Coord.SetDisplay(voiceDisplay)

		resolve := func(requestID, choice string) bool {
			approved := choice == "approve" || choice == "true" || choice == "yes"
			voiceApproval.HandleResponse(approved)
			return true
		}

		m.mu.Lock()
		m.wirings[sess.ID] = &wiring{coord: sess.Coord, hook: hook, hookRegID: hookRegID, resolve: resolve}
		m.mu.Unlock()

		return hookRegID, resolve
	}
}

// Create opens a new voice connection: a fresh event queue, a freshly
// created (or filesystem-derived) Runtime session, and full hook/adapter
// wiring via WireFunc.
func (m *Manager) Create(ctx context.Context, workingDir string) (*Connection, error) {
	q := eventqueue.New()
	info, err := m.be.CreateSession(ctx, backend.CreateSessionOptions{
		WorkingDir: workingDir,
		CreatedBy:  "voice",
		EventQueue: q,
	})
	if err != nil {
		return nil, fmt.Errorf("voice connection create: %w", err)
	}

	projectID := info.ProjectID
	if projectID == "" {
		projectID = m.deriveProjectIDWithFallback(workingDir, info.SessionID)
	}

	hooks.TriggerAsync(ctx, hooks.NewEvent(hooks.EventConnectionCreated, "create").WithSession(info.SessionID))

	return &Connection{
		SessionID:  info.SessionID,
		ProjectID:  projectID,
		WorkingDir: workingDir,
		queue:      q,
	}, nil
}

// Resume re-wires an existing or reconnected session to a fresh queue,
// replacing whatever queue (and hook registration) it had before — the
// "queue replacement on teardown" behavior: a stale transport's queue is
// never reused by a new one.
func (m *Manager) Resume(ctx context.Context, conn *Connection) error {
	m.teardownHooks(conn.SessionID)

	q := eventqueue.New()
	_, err := m.be.ResumeSession(ctx, conn.SessionID, conn.WorkingDir, backend.CreateSessionOptions{
		WorkingDir: conn.WorkingDir,
		CreatedBy:  "voice",
		EventQueue: q,
	})
	if err != nil {
		return fmt.Errorf("voice connection resume %s: %w", conn.SessionID, err)
	}
	conn.setQueue(q)
	hooks.TriggerAsync(ctx, hooks.NewEvent(hooks.EventSessionResumed, "resume").WithSession(conn.SessionID))
	return nil
}

// Teardown releases the connection's transport-side wiring (hook
// registration, streaming.Hook's per-session block-type bookkeeping)
// without ending the underlying Runtime session. It is safe to call on
// every exit path — disconnect, error, or normal close — and is
// idempotent.
func (m *Manager) Teardown(conn *Connection) {
	m.teardownHooks(conn.SessionID)
	hooks.TriggerAsync(context.Background(), hooks.NewEvent(hooks.EventConnectionTornDown, "teardown").WithSession(conn.SessionID))
}

func (m *Manager) teardownHooks(sessionID string) {
	m.mu.Lock()
	w, ok := m.wirings[sessionID]
	if ok {
		delete(m.wirings, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	w.coord.UnregisterHook(w.hookRegID)
	w.hook.ReleaseSession(sessionID)
}

// End implements the voice connection's end(reason) operation: hook
// cleanup, then backend end_session.
func (m *Manager) End(ctx context.Context, conn *Connection, reason string) {
	m.Teardown(conn)
	m.be.EndSession(ctx, conn.SessionID)
	hooks.TriggerAsync(ctx, hooks.NewEvent(hooks.EventSessionEnded, reason).WithSession(conn.SessionID))
	m.logger.Info("voice connection ended", "session_id", conn.SessionID, "reason", reason)
}

// Cancel implements cancel(immediate): it does not tear down wiring, only
// requests cancellation of the in-flight turn.
func (m *Manager) Cancel(ctx context.Context, conn *Connection, immediate bool) {
	level := backend.CancelGraceful
	if immediate {
		level = backend.CancelImmediate
	}
	m.be.CancelSession(ctx, conn.SessionID, level)
}

// deriveProjectIDWithFallback derives a project id from workingDir
// directly when possible; otherwise it scans runtimeHome for a
// sessions/<sessionID> directory and decodes the enclosing project
// directory name (spec.md §4.4's documented fallback for callers that
// only know the session id, e.g. a resumed voice connection with no
// working directory supplied by the client).
func (m *Manager) deriveProjectIDWithFallback(workingDir, sessionID string) string {
	if workingDir != "" {
		return strings.ReplaceAll(workingDir, string(os.PathSeparator), "-")
	}
	projectsDir := filepath.Join(m.runtimeHome, "projects")
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(projectsDir, e.Name(), "sessions", sessionID)
		if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
			return e.Name()
		}
	}
	return ""
}

// voiceApprovalAdapter satisfies runtime.ApprovalCapability on top of a
// VoiceApprovalSystem, which classifies tools itself rather than taking
// an arbitrary prompt. req.Prompt carries the tool name in the voice
// flow, since the voice Runtime's approval gate is always tool-shaped.
type voiceApprovalAdapter struct {
	sys *approval.VoiceApprovalSystem
}

func (a *voiceApprovalAdapter) RequestApproval(ctx context.Context, req runtime.ApprovalRequest) (string, error) {
	approved, err := a.sys.RequestApproval(ctx, req.RequestID, req.Prompt)
	if err != nil {
		return req.Default, err
	}
	if approved {
		return "approve", nil
	}
	return "deny", nil
}

var _ runtime.ApprovalCapability = (*voiceApprovalAdapter)(nil)
