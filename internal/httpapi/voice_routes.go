package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/backend"
	"github.com/haasonsaas/nexus-experience/internal/transcript"
	"github.com/haasonsaas/nexus-experience/internal/voiceconn"
)

const voiceIndexPage = `<!doctype html>
<html><head><title>Voice</title></head>
<body><script src="/apps/voice/static/vendor.js"></script></body></html>
`

// registerVoiceRoutes wires spec.md §6's /apps/voice/* table.
func (s *Server) registerVoiceRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /apps/voice/", s.handleVoiceIndex)
	mux.HandleFunc("GET /apps/voice/static/vendor.js", s.handleVoiceVendorJS)
	mux.HandleFunc("GET /apps/voice/api/status", s.handleVoiceAPIStatus)
	mux.HandleFunc("GET /apps/voice/session", s.requireAPIKey(s.handleVoiceEphemeralSession))
	mux.HandleFunc("POST /apps/voice/sdp", s.requireEphemeralToken(s.handleVoiceSDP))
	mux.HandleFunc("GET /apps/voice/events", s.requireTrustedOrigin(s.handleVoiceEvents))
	mux.HandleFunc("POST /apps/voice/sessions", s.requireAPIKey(s.handleVoiceCreateSession))
	mux.HandleFunc("GET /apps/voice/sessions", s.requireAPIKey(s.handleListSessions))
	mux.HandleFunc("GET /apps/voice/sessions/stats", s.requireAPIKey(s.handleVoiceSessionStats))
	mux.HandleFunc("POST /apps/voice/sessions/{id}/resume", s.requireAPIKey(s.handleVoiceResumeSession))
	mux.HandleFunc("POST /apps/voice/sessions/{id}/transcript", s.requireAPIKey(s.handleVoiceTranscript))
	mux.HandleFunc("POST /apps/voice/sessions/{id}/end", s.requireAPIKey(s.handleVoiceEndSession))
	mux.HandleFunc("POST /apps/voice/tools/execute", s.requireAPIKey(s.handleVoiceToolsExecute))
	mux.HandleFunc("POST /apps/voice/cancel", s.requireAPIKey(s.handleVoiceCancel))
}

func (s *Server) handleVoiceIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(voiceIndexPage))
}

func (s *Server) handleVoiceVendorJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte("// vendor bundle placeholder\n"))
}

func (s *Server) handleVoiceAPIStatus(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	if s.cfg.APIKey == "" {
		status = "unconfigured"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"api_key_set":    s.cfg.APIKey != "",
		"model":          s.cfg.Model,
		"voice":          s.cfg.Voice,
		"assistant_name": s.cfg.AssistantName,
		"turn_server":    nil,
	})
}

func (s *Server) handleVoiceEphemeralSession(w http.ResponseWriter, r *http.Request) {
	token, err := s.issueEphemeralToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": token})
}

// handleVoiceSDP exchanges an SDP offer for an answer. No WebRTC engine
// (e.g. pion) is available anywhere in this corpus to actually negotiate
// ICE/DTLS, so this echoes a minimal, deterministic SDP answer back — the
// same "mock collaborator standing in for an external engine" shape
// MockRuntime has for the Runtime itself. The ephemeral bearer token is
// enforced and the answer is sent as application/sdp; the offer's own
// Content-Type is not checked.
func (s *Server) handleVoiceSDP(w http.ResponseWriter, r *http.Request) {
	offer, err := readAllLimited(r, 1<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read SDP offer", "")
		return
	}
	if len(offer) == 0 {
		writeError(w, http.StatusBadRequest, "empty SDP offer", "")
		return
	}
	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n")
}

// handleVoiceEvents serves the SSE stream for a voice connection's event
// queue: `data: <json>\n\n` per message, `:heartbeat\n\n` when idle for
// s.cfg.effectiveHeartbeat().
func (s *Server) handleVoiceEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if !validID(sessionID) {
		writeError(w, http.StatusBadRequest, "session_id is required and must match ^[A-Za-z0-9_-]+$", "")
		return
	}
	conn, ok := s.conns.get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session", "")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "internal_error")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := s.cfg.effectiveHeartbeat()
	for {
		q := conn.Queue()
		if q == nil {
			return
		}
		v, ok, err := q.Next(ctx, heartbeat)
		if err != nil {
			return
		}
		if !ok {
			if _, werr := w.Write([]byte(":heartbeat\n\n")); werr != nil {
				return
			}
			flusher.Flush()
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", data); werr != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleVoiceCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkspaceRoot string `json:"workspace_root"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSONBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body", "")
			return
		}
	}
	conn, err := s.voice.Create(r.Context(), body.WorkspaceRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}
	s.conns.put(conn)
	if s.transcripts != nil {
		now := time.Now().UTC()
		_ = s.transcripts.CreateConversation(transcript.VoiceConversation{
			ID:        conn.SessionID,
			Title:     "Voice session " + conn.SessionID,
			Status:    transcript.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": conn.SessionID})
}

func (s *Server) handleVoiceResumeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id", "")
		return
	}
	conn, ok := s.conns.get(id)
	if !ok {
		conn = &voiceconn.Connection{SessionID: id}
	}
	if err := s.voice.Resume(r.Context(), conn); err != nil {
		writeError(w, http.StatusNotFound, "unknown session", "")
		return
	}
	s.conns.put(conn)

	contextToInject := []transcript.ResumptionItem{}
	if s.transcripts != nil {
		if items, err := s.transcripts.GetResumptionContext(id); err == nil {
			contextToInject = items
		}
	}
	token, err := s.issueEphemeralToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client_secret": token, "context_to_inject": contextToInject})
}

func (s *Server) handleVoiceTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id", "")
		return
	}
	raw, err := readAllLimited(r, 1<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body", "")
		return
	}
	if err := validateAgainst(schemas.transcriptEntries, raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	var body struct {
		Entries []transcript.Entry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "")
		return
	}
	if s.transcripts == nil {
		writeError(w, http.StatusInternalServerError, "transcript store not configured", "internal_error")
		return
	}
	now := time.Now().UTC()
	for i := range body.Entries {
		body.Entries[i].ConversationID = id
		if body.Entries[i].CreatedAt.IsZero() {
			body.Entries[i].CreatedAt = now
		}
	}
	if err := s.transcripts.AddEntries(id, body.Entries, now); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "added": len(body.Entries)})
}

func (s *Server) handleVoiceEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validID(id) {
		writeError(w, http.StatusBadRequest, "invalid session id", "")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		_ = decodeJSONBody(r, &body)
	}
	reason := transcript.EndReason(body.Reason)
	switch reason {
	case transcript.EndReasonSessionLimit, transcript.EndReasonNetworkError, transcript.EndReasonUserEnded, transcript.EndReasonIdleTimeout, transcript.EndReasonError:
	default:
		reason = transcript.EndReasonError
	}

	conn, ok := s.conns.get(id)
	if ok {
		s.voice.End(r.Context(), conn, string(reason))
		s.conns.remove(id)
	} else {
		s.be.EndSession(r.Context(), id)
	}
	if s.transcripts != nil {
		_ = s.transcripts.EndConversation(id, reason, time.Now().UTC())
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleVoiceSessionStats(w http.ResponseWriter, r *http.Request) {
	sessions := s.be.ListActiveSessions()
	writeJSON(w, http.StatusOK, map[string]any{"active_count": len(sessions), "sessions": sessions})
}

func (s *Server) handleVoiceToolsExecute(w http.ResponseWriter, r *http.Request) {
	raw, err := readAllLimited(r, 1<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body", "")
		return
	}
	if err := validateAgainst(schemas.toolsExecute, raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	var body struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "")
		return
	}
	sessionID, _ := body.Arguments["session_id"].(string)

	switch body.Name {
	case "delegate":
		prompt, _ := body.Arguments["prompt"].(string)
		resp, err := s.be.SendMessage(r.Context(), sessionID, prompt)
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown session", "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": resp})
	case "cancel_current_task":
		s.be.CancelSession(r.Context(), sessionID, backend.CancelGraceful)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "pause_replies", "resume_replies":
		// No separate reply-pausing subsystem exists in this server's
		// scope; acknowledged as a no-op so clients relying on the
		// contract don't error.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusBadRequest, "unknown tool", "")
	}
}

func (s *Server) handleVoiceCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		Immediate bool   `json:"immediate"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "")
		return
	}
	if !validID(body.SessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id", "")
		return
	}
	level := backend.CancelGraceful
	if body.Immediate {
		level = backend.CancelImmediate
	}
	s.be.CancelSession(r.Context(), body.SessionID, level)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func readAllLimited(r *http.Request, limit int64) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
}
