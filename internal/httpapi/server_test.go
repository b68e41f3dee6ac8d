package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/nexus-experience/internal/backend"
	"github.com/haasonsaas/nexus-experience/internal/runtime"
	"github.com/haasonsaas/nexus-experience/internal/transcript"
	"github.com/haasonsaas/nexus-experience/internal/voiceconn"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	dir := t.TempDir()
	rt := runtime.NewMockRuntime()
	mgr := voiceconn.NewManager(nil, dir, slog.Default())
	be := backend.NewRuntimeBackend(rt, dir, mgr.WireFunc(), slog.Default())
	mgr.SetBackend(be)
	transcripts := transcript.NewStore(dir)
	return NewServer(be, mgr, transcripts, nil, nil, nil, cfg, slog.Default())
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealthIsAlwaysOpen(t *testing.T) {
	srv := newTestServer(t, Config{APIKey: "secret", Version: "test"})
	rec := doRequest(t, srv.Handler(), "GET", "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRequireAPIKeyRejectsMissingOrWrongKey(t *testing.T) {
	srv := newTestServer(t, Config{APIKey: "secret"})
	h := srv.Handler()

	rec := doRequest(t, h, "POST", "/api/bridge/session", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, "POST", "/api/bridge/session", nil, map[string]string{"X-API-Key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, "POST", "/api/bridge/session", nil, map[string]string{"X-API-Key": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("correct key: status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestRequireAPIKeyOpenWhenUnconfigured(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doRequest(t, srv.Handler(), "POST", "/api/bridge/session", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestVoiceEventsRejectsUntrustedOrigin(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest("GET", "/apps/voice/events?session_id=nope", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestVoiceEventsAllowsMissingOrigin(t *testing.T) {
	srv := newTestServer(t, Config{})
	req := httptest.NewRequest("GET", "/apps/voice/events?session_id=missing-session", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	// no Origin header set: passes the CSRF guard, then 404s on the
	// unknown session id rather than 403.
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", rec.Code, rec.Body.String())
	}
}

func TestVoiceSessionsRejectInvalidPathID(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doRequest(t, srv.Handler(), "POST", "/apps/voice/sessions/bad%20id!/end", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestVoiceTranscriptRejectsBareArrayBody(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Handler()

	createRec := doRequest(t, h, "POST", "/apps/voice/sessions", map[string]any{}, nil)
	if createRec.Code != http.StatusOK {
		t.Fatalf("create: status = %d, want 200, body=%s", createRec.Code, createRec.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected session_id in create response, got %+v", created)
	}

	req := httptest.NewRequest("POST", "/apps/voice/sessions/"+sessionID+"/transcript", bytes.NewBufferString(`[{"role":"user","content":"hi"}]`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bare array body: status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("POST", "/apps/voice/sessions/"+sessionID+"/transcript", bytes.NewBufferString(`{"entries":[{"role":"user","content":"hi"}]}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("wrapped entries body: status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestVoiceEndSessionCoercesUnknownReasonToError(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Handler()

	createRec := doRequest(t, h, "POST", "/apps/voice/sessions", map[string]any{}, nil)
	var created map[string]any
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	sessionID := created["session_id"].(string)

	rec := doRequest(t, h, "POST", "/apps/voice/sessions/"+sessionID+"/end", map[string]any{"reason": "not-a-real-reason"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end: status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	conv, ok, err := srv.transcripts.GetConversation(sessionID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if !ok {
		t.Fatalf("expected a persisted conversation for %s", sessionID)
	}
	if conv.EndReason != transcript.EndReasonError {
		t.Fatalf("end reason = %q, want %q", conv.EndReason, transcript.EndReasonError)
	}
}

func TestValidIDRejectsPathTraversalAndEmpty(t *testing.T) {
	cases := map[string]bool{
		"":              false,
		"abc-123_DEF":   true,
		"../etc/passwd": false,
		"has space":     false,
	}
	for id, want := range cases {
		if got := validID(id); got != want {
			t.Errorf("validID(%q) = %v, want %v", id, got, want)
		}
	}
}
