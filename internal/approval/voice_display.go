package approval

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus-experience/internal/runtime"
	"github.com/haasonsaas/nexus-experience/internal/streaming"
)

// suppressedPrefixes are dropped outright regardless of level.
var suppressedPrefixes = []string{"debug:", "trace:", "[internal]"}

// keywordExceptions are always spoken even at a level that would
// otherwise be muted, because they carry user-relevant signal.
var keywordExceptions = []string{"error", "fail", "warning"}

var arrowCollapse = regexp.MustCompile(`\s*(=>|->|\|)\s*`)
var whitespaceCollapse = regexp.MustCompile(`\s+`)

const spokenTruncateLimit = 200

// VoiceDisplaySystem reformats Runtime display messages into text meant
// to be spoken: it drops noisy debug chatter, strips symbols that read
// poorly aloud, prefixes by level, and truncates long messages at a
// sentence boundary.
type VoiceDisplaySystem struct {
	sessionID string
	sink      Sink
	logger    *slog.Logger
}

// NewVoiceDisplaySystem constructs a VoiceDisplaySystem.
func NewVoiceDisplaySystem(sessionID string, sink Sink, logger *slog.Logger) *VoiceDisplaySystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceDisplaySystem{sessionID: sessionID, sink: sink, logger: logger}
}

func (v *VoiceDisplaySystem) Display(ctx context.Context, level, message string) {
	formatted, ok := FormatForSpeech(level, message)
	if !ok {
		return
	}
	if !v.sink.Offer(v.sessionID, streaming.WireMessage{Type: "display_message", Fields: map[string]any{
		"level":   level,
		"message": formatted,
	}}) {
		v.logger.Warn("voice display message dropped: queue full", "session_id", v.sessionID, "level", level)
	}
}

// FormatForSpeech applies the suppression, symbol-stripping,
// level-prefixing, and truncation rules from spec.md §4.3. It returns
// ok=false when the message should not be spoken at all.
func FormatForSpeech(level, message string) (string, bool) {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) < 3 {
		return "", false
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range suppressedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}

	hasException := false
	for _, kw := range keywordExceptions {
		if strings.Contains(lower, kw) {
			hasException = true
			break
		}
	}
	if strings.EqualFold(level, "debug") && !hasException {
		return "", false
	}

	cleaned := arrowCollapse.ReplaceAllString(trimmed, " ")
	cleaned = whitespaceCollapse.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	var prefix string
	switch strings.ToLower(level) {
	case "error":
		prefix = "Error: "
	case "warning", "warn":
		prefix = "Note: "
	}
	cleaned = prefix + cleaned

	if len(cleaned) > spokenTruncateLimit {
		cleaned = truncateAtSentence(cleaned, spokenTruncateLimit)
	}
	return cleaned, true
}

// truncateAtSentence cuts s to at most limit characters, preferring to
// end on the last '.' within the limit; falls back to a hard cut.
func truncateAtSentence(s string, limit int) string {
	cut := s[:limit]
	if idx := strings.LastIndex(cut, "."); idx >= 0 {
		return cut[:idx+1]
	}
	return cut
}

var _ runtime.DisplayCapability = (*VoiceDisplaySystem)(nil)
