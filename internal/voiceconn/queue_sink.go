package voiceconn

import (
	"github.com/haasonsaas/nexus-experience/internal/eventqueue"
	"github.com/haasonsaas/nexus-experience/internal/streaming"
)

// queueSink adapts one Connection's eventqueue.Queue to the streaming.Sink
// contract shared by the Streaming Hook and the Protocol Adapters. A
// Connection owns exactly one queue at a time, so sessionID is accepted
// only to satisfy the interface and is not consulted.
type queueSink struct {
	q *eventqueue.Queue
}

func (s *queueSink) Offer(sessionID string, msg streaming.WireMessage) bool {
	return s.q.Offer(msg)
}

var _ streaming.Sink = (*queueSink)(nil)
