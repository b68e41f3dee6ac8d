package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/nexus-experience/internal/eventqueue"
	"github.com/haasonsaas/nexus-experience/internal/runtime"
)

func noopWire(sess *runtime.Session, q *eventqueue.Queue) (string, func(requestID, choice string) bool) {
	return "", func(string, string) bool { return false }
}

func TestRuntimeBackendSendMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	rt := runtime.NewMockRuntime()
	b := NewRuntimeBackend(rt, t.TempDir(), noopWire, nil)

	info, err := b.CreateSession(ctx, CreateSessionOptions{WorkingDir: "/tmp/x"})
	if err != nil {
		t.Fatalf("create_session: %v", err)
	}
	resp, err := b.SendMessage(ctx, info.SessionID, "hello")
	if err != nil {
		t.Fatalf("send_message: %v", err)
	}
	if !strings.Contains(resp, "hello") {
		t.Fatalf("expected response to contain input, got %q", resp)
	}

	active := b.ListActiveSessions()
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}

	b.EndSession(ctx, info.SessionID)
	if _, ok := b.GetSessionInfo(info.SessionID); ok {
		t.Fatalf("expected session to be removed after end_session")
	}
}

func TestTombstoneBlocksResurrectionUntilExplicitResume(t *testing.T) {
	ctx := context.Background()
	rt := runtime.NewMockRuntime()
	b := NewRuntimeBackend(rt, t.TempDir(), noopWire, nil)

	info, err := b.CreateSession(ctx, CreateSessionOptions{WorkingDir: "/tmp/x"})
	if err != nil {
		t.Fatalf("create_session: %v", err)
	}
	b.EndSession(ctx, info.SessionID)

	_, err = b.SendMessage(ctx, info.SessionID, "hi")
	if !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}

	q := eventqueue.New()
	resumed, err := b.ResumeSession(ctx, info.SessionID, "/tmp/x", CreateSessionOptions{EventQueue: q})
	if err != nil {
		t.Fatalf("resume_session should clear tombstone and succeed: %v", err)
	}
	if resumed.SessionID != info.SessionID {
		t.Fatalf("expected resumed session id %q, got %q", info.SessionID, resumed.SessionID)
	}
}

func TestSendMessageProcessesAllConcurrentMessagesPerSession(t *testing.T) {
	ctx := context.Background()
	rt := runtime.NewMockRuntime()
	var mu sync.Mutex
	var order []string
	rt.ResponseFn = func(sessionID, input string) string {
		mu.Lock()
		order = append(order, input)
		mu.Unlock()
		return "ok:" + input
	}
	b := NewRuntimeBackend(rt, t.TempDir(), noopWire, nil)
	info, err := b.CreateSession(ctx, CreateSessionOptions{WorkingDir: "/tmp/x"})
	if err != nil {
		t.Fatalf("create_session: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		msg := "m" + string(rune('0'+i))
		go func() {
			defer wg.Done()
			_, _ = b.SendMessage(ctx, info.SessionID, msg)
		}()
	}
	wg.Wait()

	if len(order) != 5 {
		t.Fatalf("expected 5 processed messages, got %d", len(order))
	}
}

func TestReconnectRepairsOrphanToolCall(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	sessionID := "sess-crash"
	sessionDir := filepath.Join(home, "projects", "-tmp-x", "sessions", sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	transcript := strings.Join([]string{
		`{"role":"system","content":"you are an assistant"}`,
		`{"role":"user","content":"do a thing"}`,
		`{"role":"assistant","content":"","tool_calls":[{"id":"call-1","name":"run_command","input":{}}]}`,
	}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(sessionDir, "transcript.jsonl"), []byte(transcript), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	rt := runtime.NewMockRuntime()
	b := NewRuntimeBackend(rt, home, noopWire, nil)

	resp, err := b.SendMessage(ctx, sessionID, "ping")
	if err != nil {
		t.Fatalf("send_message on reconnect: %v", err)
	}
	if !strings.Contains(resp, "ping") {
		t.Fatalf("expected reconnected session to respond, got %q", resp)
	}

	info, ok := b.GetSessionInfo(sessionID)
	if !ok {
		t.Fatalf("expected handle to be cached after reconnect")
	}
	if info.RestoredMessageCount == 0 {
		t.Fatalf("expected reconnect to restore transcript messages into the new session, got 0")
	}
}

func TestReconnectSeedsRuntimeSessionWithRestoredTranscript(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	sessionID := "sess-seeded"
	sessionDir := filepath.Join(home, "projects", "-tmp-x", "sessions", sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	transcript := strings.Join([]string{
		`{"role":"system","content":"you are an assistant"}`,
		`{"role":"user","content":"do a thing"}`,
	}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(sessionDir, "transcript.jsonl"), []byte(transcript), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	rt := runtime.NewMockRuntime()
	b := NewRuntimeBackend(rt, home, noopWire, nil)

	if _, err := b.SendMessage(ctx, sessionID, "ping"); err != nil {
		t.Fatalf("send_message on reconnect: %v", err)
	}

	h, ok := b.getHandle(sessionID)
	if !ok {
		t.Fatalf("expected handle after reconnect")
	}
	if len(h.sess.Messages) != 2 {
		t.Fatalf("expected reconnected Runtime session to be seeded with 2 restored messages, got %d", len(h.sess.Messages))
	}
	if h.sess.Messages[0].Role != "system" {
		t.Fatalf("expected restored system message first, got role %q", h.sess.Messages[0].Role)
	}
}
