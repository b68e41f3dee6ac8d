package httpapi

import (
	"errors"
	"net/http"

	"github.com/haasonsaas/nexus-experience/internal/backend"
)

// registerCoreRoutes wires spec.md §6's generic `/api/*` chat/bridge
// routes.
func (s *Server) registerCoreRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/apps", s.handleApps)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/integrations", s.handleIntegrations)
	mux.HandleFunc("POST /api/test-provider", s.requireAPIKey(s.handleTestProvider))
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/bridge/session", s.requireAPIKey(s.handleBridgeSession))
	mux.HandleFunc("POST /api/bridge/execute", s.requireAPIKey(s.handleBridgeExecute))
	mux.HandleFunc("POST /api/memory/remember", s.requireAPIKey(s.handleMemoryRemember))
	mux.HandleFunc("GET /api/memory/recall", s.handleMemoryRecall)
	mux.HandleFunc("GET /api/memory/work-status", s.handleMemoryWorkStatus)
	mux.HandleFunc("POST /api/memory/work-log", s.requireAPIKey(s.handleMemoryWorkLog))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": s.cfg.Version})
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"voice": map[string]any{
			"description": "WebRTC/SSE voice assistant",
			"version":     s.cfg.Version,
			"mount_path":  "/apps/voice",
			"enabled":     true,
		},
	})
}

type statusCheck struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	checks := []statusCheck{}

	if s.cfg.APIKey == "" {
		checks = append(checks, statusCheck{Name: "api_key", Passed: true, Message: "no API key configured; server runs in local-only mode", Severity: "warning"})
	} else {
		checks = append(checks, statusCheck{Name: "api_key", Passed: true, Message: "API key configured", Severity: "info"})
	}

	if s.idx == nil {
		checks = append(checks, statusCheck{Name: "discovery_index", Passed: false, Message: "discovery index not opened", Severity: "error"})
	} else {
		checks = append(checks, statusCheck{Name: "discovery_index", Passed: true, Message: "discovery index open", Severity: "info"})
	}

	passed := true
	for _, c := range checks {
		if c.Severity == "error" {
			passed = false
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"passed": passed, "checks": checks})
}

func (s *Server) handleIntegrations(w http.ResponseWriter, r *http.Request) {
	configured := s.cfg.APIKey != ""
	writeJSON(w, http.StatusOK, map[string]any{
		"voice": map[string]any{
			"configured": configured,
			"setup_url":  "/apps/voice/",
		},
	})
}

func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"provider"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "")
		return
	}
	// No external provider probe is wired in this deployment (the
	// Runtime is a local in-process collaborator, not a remote API), so
	// the probe always reports configured-and-reachable.
	writeJSON(w, http.StatusOK, map[string]any{"provider": body.Provider, "ok": true})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.be.ListActiveSessions())
}

func (s *Server) handleBridgeSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkingDir string `json:"working_dir"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSONBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body", "")
			return
		}
	}
	info, err := s.be.CreateSession(r.Context(), backend.CreateSessionOptions{WorkingDir: body.WorkingDir, CreatedBy: "chat"})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleBridgeExecute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		Prompt    string `json:"prompt"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "")
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required", "")
		return
	}
	resp, err := s.be.Execute(r.Context(), body.SessionID, body.Prompt, nil)
	if err != nil {
		if errors.Is(err, backend.ErrUnknownSession) {
			writeError(w, http.StatusNotFound, "unknown session", "")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": body.SessionID, "response": resp})
}

func (s *Server) handleMemoryRemember(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSONBody(r, &body); err != nil || body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}
	s.memo.remember(body.Text)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMemoryRecall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"results": s.memo.recall(r.URL.Query().Get("q"))})
}

func (s *Server) handleMemoryWorkStatus(w http.ResponseWriter, r *http.Request) {
	state, log := s.memo.status()
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "log": log})
}

func (s *Server) handleMemoryWorkLog(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
		Detail string `json:"detail"`
	}
	if err := decodeJSONBody(r, &body); err != nil || body.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required", "")
		return
	}
	s.memo.logWork(body.Status, body.Detail)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
