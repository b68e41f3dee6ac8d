package voiceconn

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/backend"
	"github.com/haasonsaas/nexus-experience/internal/runtime"
)

func TestCreateWiresHookAndDeliversEvents(t *testing.T) {
	ctx := context.Background()
	rt := runtime.NewMockRuntime()
	mgr := NewManager(nil, t.TempDir(), nil)
	be := backend.NewRuntimeBackend(rt, t.TempDir(), mgr.WireFunc(), nil)
	mgr.be = be

	conn, err := mgr.Create(ctx, "/tmp/proj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conn.SessionID == "" {
		t.Fatal("expected a session id")
	}

	resp, err := be.SendMessage(ctx, conn.SessionID, "hello")
	if err != nil {
		t.Fatalf("send_message: %v", err)
	}
	if resp == "" {
		t.Fatal("expected non-empty response")
	}

	events := conn.Queue().Drain()
	if len(events) == 0 {
		t.Fatal("expected streamed content events on the connection queue")
	}
}

func TestTeardownUnregistersHook(t *testing.T) {
	ctx := context.Background()
	rt := runtime.NewMockRuntime()
	mgr := NewManager(nil, t.TempDir(), nil)
	be := backend.NewRuntimeBackend(rt, t.TempDir(), mgr.WireFunc(), nil)
	mgr.be = be

	conn, err := mgr.Create(ctx, "/tmp/proj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mgr.mu.Lock()
	_, wired := mgr.wirings[conn.SessionID]
	mgr.mu.Unlock()
	if !wired {
		t.Fatal("expected wiring to be recorded after create")
	}

	mgr.Teardown(conn)

	mgr.mu.Lock()
	_, stillWired := mgr.wirings[conn.SessionID]
	mgr.mu.Unlock()
	if stillWired {
		t.Fatal("expected wiring to be removed after teardown")
	}

	// Teardown must be idempotent.
	mgr.Teardown(conn)
}

func TestEndTearsDownAndEndsSession(t *testing.T) {
	ctx := context.Background()
	rt := runtime.NewMockRuntime()
	mgr := NewManager(nil, t.TempDir(), nil)
	be := backend.NewRuntimeBackend(rt, t.TempDir(), mgr.WireFunc(), nil)
	mgr.be = be

	conn, err := mgr.Create(ctx, "/tmp/proj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mgr.End(ctx, conn, "user_hangup")

	if _, ok := be.GetSessionInfo(conn.SessionID); ok {
		t.Fatal("expected session removed after End")
	}
}

func TestCancelDoesNotTearDownWiring(t *testing.T) {
	ctx := context.Background()
	rt := runtime.NewMockRuntime()
	mgr := NewManager(nil, t.TempDir(), nil)
	be := backend.NewRuntimeBackend(rt, t.TempDir(), mgr.WireFunc(), nil)
	mgr.be = be

	conn, err := mgr.Create(ctx, "/tmp/proj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mgr.Cancel(ctx, conn, true)

	mgr.mu.Lock()
	_, wired := mgr.wirings[conn.SessionID]
	mgr.mu.Unlock()
	if !wired {
		t.Fatal("expected wiring to survive cancel")
	}
}

func TestDeriveProjectIDFallsBackToFilesystemScan(t *testing.T) {
	mgr := NewManager(nil, t.TempDir(), nil)
	if got := mgr.deriveProjectIDWithFallback("/tmp/x", "sess-1"); got != "-tmp-x" {
		t.Fatalf("expected direct derivation, got %q", got)
	}
	if got := mgr.deriveProjectIDWithFallback("", "sess-missing"); got != "" {
		t.Fatalf("expected empty result for unscannable session, got %q", got)
	}
}

func TestResumeReplacesQueue(t *testing.T) {
	ctx := context.Background()
	rt := runtime.NewMockRuntime()
	mgr := NewManager(nil, t.TempDir(), nil)
	be := backend.NewRuntimeBackend(rt, t.TempDir(), mgr.WireFunc(), nil)
	mgr.be = be

	conn, err := mgr.Create(ctx, "/tmp/proj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oldQueue := conn.Queue()

	if err := mgr.Resume(ctx, conn); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if conn.Queue() == oldQueue {
		t.Fatal("expected resume to replace the connection's queue")
	}

	// The new wiring must still deliver events.
	_, err = be.SendMessage(ctx, conn.SessionID, "hi again")
	if err != nil {
		t.Fatalf("send_message after resume: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if len(conn.Queue().Drain()) == 0 {
		t.Fatal("expected events on the replaced queue")
	}
}
