// Package httpapi serves spec.md §6's external interface: the generic
// `/api/*` chat/bridge routes and the `/apps/voice/*` voice routes, both
// bound to one Session Backend and Voice Connection Manager. Routing
// follows the teacher's internal/gateway.startHTTPServer pattern — a
// plain stdlib http.ServeMux, no external router — generalized to Go
// 1.22+'s method+wildcard patterns ("POST /sessions/{id}/end") since this
// package's routes need path parameters the teacher's static paths never
// did.
package httpapi

import (
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/backend"
	"github.com/haasonsaas/nexus-experience/internal/discovery"
	"github.com/haasonsaas/nexus-experience/internal/metrics"
	"github.com/haasonsaas/nexus-experience/internal/transcript"
	"github.com/haasonsaas/nexus-experience/internal/voiceconn"
)

// idPattern is spec.md §6's path-parameter validation rule, applied to
// every `{id}` in both route tables.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Config carries the auth/ephemeral-token/heartbeat knobs spec.md §6
// documents, read from config.ExperienceConfig by the caller.
type Config struct {
	// APIKey gates every mutation route plus the voice app's read routes
	// other than the three always-open ones. Empty disables auth.
	APIKey string

	// EphemeralTokenSecret signs the short-lived SDP bearer tokens issued
	// by GET /apps/voice/session. Falls back to APIKey when empty so
	// local/dev configs that only set api_key still get working tokens.
	EphemeralTokenSecret string

	// EphemeralTokenTTL bounds how long an issued SDP token is valid.
	EphemeralTokenTTL time.Duration

	// HeartbeatInterval is the idle-keepalive cadence for GET
	// /apps/voice/events.
	HeartbeatInterval time.Duration

	// AssistantName, Model, Voice are surfaced verbatim by
	// /apps/voice/api/status.
	AssistantName string
	Model         string
	Voice         string

	// Version is reported by /api/health.
	Version string
}

func (c Config) effectiveTokenSecret() string {
	if c.EphemeralTokenSecret != "" {
		return c.EphemeralTokenSecret
	}
	return c.APIKey
}

func (c Config) effectiveTokenTTL() time.Duration {
	if c.EphemeralTokenTTL > 0 {
		return c.EphemeralTokenTTL
	}
	return time.Minute
}

func (c Config) effectiveHeartbeat() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return 5 * time.Second
}

// Server wires backend.Backend, voiceconn.Manager, transcript.Store and
// discovery onto spec.md §6's two route tables.
type Server struct {
	be          backend.Backend
	voice       *voiceconn.Manager
	transcripts *transcript.Store
	scanner     *discovery.Scanner
	idx         *discovery.Index
	collector   *metrics.Collector
	cfg         Config
	logger      *slog.Logger
	startedAt   time.Time

	conns *connRegistry
	memo  *memoStore
}

// NewServer constructs a Server. collector may be nil (metrics route
// omitted); idx may be nil ("/status" reports discovery as unconfigured).
func NewServer(be backend.Backend, voice *voiceconn.Manager, transcripts *transcript.Store, scanner *discovery.Scanner, idx *discovery.Index, collector *metrics.Collector, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		be:          be,
		voice:       voice,
		transcripts: transcripts,
		scanner:     scanner,
		idx:         idx,
		collector:   collector,
		cfg:         cfg,
		logger:      logger,
		startedAt:   time.Now(),
		conns:       newConnRegistry(),
		memo:        newMemoStore(),
	}
}

// Handler builds the full route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerCoreRoutes(mux)
	s.registerVoiceRoutes(mux)
	if s.collector != nil {
		mux.Handle("GET /metrics", s.collector.Handler())
	}
	return mux
}
