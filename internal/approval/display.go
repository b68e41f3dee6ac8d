package approval

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/nexus-experience/internal/runtime"
	"github.com/haasonsaas/nexus-experience/internal/streaming"
)

// QueueDisplaySystem is registered on the Runtime coordinator under the
// "display" key. It forwards every display message onto the event queue
// as a structured wire message; non-blocking, drops on full queue with a
// warn log.
type QueueDisplaySystem struct {
	sessionID string
	sink      Sink
	logger    *slog.Logger
}

// NewQueueDisplaySystem constructs a QueueDisplaySystem writing onto sink
// for sessionID.
func NewQueueDisplaySystem(sessionID string, sink Sink, logger *slog.Logger) *QueueDisplaySystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDisplaySystem{sessionID: sessionID, sink: sink, logger: logger}
}

func (q *QueueDisplaySystem) Display(ctx context.Context, level, message string) {
	if !q.sink.Offer(q.sessionID, streaming.WireMessage{Type: "display_message", Fields: map[string]any{
		"level":   level,
		"message": message,
	}}) {
		q.logger.Warn("display message dropped: queue full", "session_id", q.sessionID, "level", level)
	}
}

var _ runtime.DisplayCapability = (*QueueDisplaySystem)(nil)
