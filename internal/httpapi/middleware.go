package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// writeJSON writes v as indented-free JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes spec.md §7's `{error: <description>}` shape. typ, if
// non-empty, adds the `type` field §7 requires on 500s.
func writeError(w http.ResponseWriter, status int, message, typ string) {
	body := map[string]any{"error": message}
	if typ != "" {
		body["type"] = typ
	}
	writeJSON(w, status, body)
}

func decodeJSONBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// extractBearer returns the token carried by `Authorization: Bearer
// <token>` or `X-API-Key: <token>`, whichever is present.
func extractBearer(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// constantTimeEqual compares two secrets in constant time, per spec.md
// §6's "constant-time comparison" requirement (grounded on
// internal/auth.Service.ValidateAPIKey's subtle.ConstantTimeCompare use).
func constantTimeEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requireAPIKey wraps next so it 401s unless s.cfg.APIKey is unset (open
// local-only mode) or the request carries a matching bearer/X-API-Key
// token.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			next(w, r)
			return
		}
		if !constantTimeEqual(extractBearer(r), s.cfg.APIKey) {
			writeError(w, http.StatusUnauthorized, "missing or invalid API key", "")
			return
		}
		next(w, r)
	}
}

// requireEphemeralToken wraps next so it 401s unless the request's bearer
// token is a valid, unexpired ephemeral SDP token issued by GET
// /apps/voice/session.
func (s *Server) requireEphemeralToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing ephemeral token", "")
			return
		}
		if _, err := s.validateEphemeralToken(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired ephemeral token", "")
			return
		}
		next(w, r)
	}
}

// allowedOrigin implements spec.md §6's /apps/voice/events CSRF guard:
// allow a missing Origin header (non-browser client) or one that names
// localhost/127.0.0.1; deny everything else with 403.
func allowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
}

func (s *Server) requireTrustedOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowedOrigin(r.Header.Get("Origin")) {
			writeError(w, http.StatusForbidden, "untrusted origin", "")
			return
		}
		next(w, r)
	}
}

// validID reports whether id matches spec.md §6's path-parameter rule.
func validID(id string) bool {
	return id != "" && idPattern.MatchString(id)
}
