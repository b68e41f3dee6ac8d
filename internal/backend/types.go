// Package backend owns the set of live sessions, per-session FIFO work
// queues and worker goroutines, reconnect-from-disk recovery, tombstoning
// of ended sessions, and graceful shutdown. It is the Go expression of
// the Session Backend and Mock Backend.
package backend

import (
	"context"
	"errors"

	"github.com/haasonsaas/nexus-experience/internal/eventqueue"
)

// ErrUnknownSession is returned when a session id has no live Handle and
// cannot be reconnected (tombstoned, or no on-disk transcript).
var ErrUnknownSession = errors.New("unknown session")

// CancelLevel distinguishes a cooperative cancel from a stronger one.
type CancelLevel string

const (
	CancelGraceful  CancelLevel = "graceful"
	CancelImmediate CancelLevel = "immediate"
)

// SessionInfo is the metadata snapshot returned by create_session,
// get_session_info, and list_active_sessions.
type SessionInfo struct {
	SessionID  string
	ProjectID  string
	WorkingDir string
	IsActive   bool
	CreatedBy  string // "chat" | "slack" | "voice" | ""
	Description string
	// RestoredMessageCount is the number of transcript messages re-seeded
	// into the Runtime session on reconnect (0 for a freshly created
	// session that never had a prior transcript to restore).
	RestoredMessageCount int
}

// CreateSessionOptions parametrizes create_session / resume_session.
type CreateSessionOptions struct {
	WorkingDir  string
	Bundle      string
	Description string
	CreatedBy   string
	// EventQueue, if non-nil, is wired to the session's hook pipeline so
	// Streaming Hook / ApprovalSystem / QueueDisplaySystem output lands
	// here. resume_session only clears the tombstone when this is set.
	EventQueue *eventqueue.Queue
}

// Backend is the contract satisfied by both the real RuntimeBackend and
// the MockBackend. All operations mirror spec.md §4.1's table exactly.
type Backend interface {
	CreateSession(ctx context.Context, opts CreateSessionOptions) (SessionInfo, error)
	SendMessage(ctx context.Context, sessionID, message string) (string, error)
	Execute(ctx context.Context, sessionID, prompt string, images [][]byte) (string, error)
	CancelSession(ctx context.Context, sessionID string, level CancelLevel)
	ResolveApproval(sessionID, requestID, choice string) bool
	ResumeSession(ctx context.Context, sessionID, workingDir string, opts CreateSessionOptions) (SessionInfo, error)
	EndSession(ctx context.Context, sessionID string)
	GetSessionInfo(sessionID string) (SessionInfo, bool)
	ListActiveSessions() []SessionInfo
	Stop(ctx context.Context)
}
