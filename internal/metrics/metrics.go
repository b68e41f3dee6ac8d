// Package metrics exposes the server's Prometheus instrumentation: active
// session count, event-queue drops, reconnect count, and outstanding
// hook registrations. It subscribes to internal/hooks lifecycle events
// rather than being called directly from backend/voiceconn, so the core
// packages stay free of a metrics import.
package metrics

import (
	"context"
	"net/http"

	"github.com/haasonsaas/nexus-experience/internal/hooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every gauge/counter the server exports.
type Collector struct {
	registry *prometheus.Registry

	activeSessions   prometheus.Gauge
	sessionsCreated  prometheus.Counter
	sessionsResumed  prometheus.Counter
	sessionsEnded    prometheus.Counter
	connectionsTorn  prometheus.Counter
	transcriptEvents prometheus.Counter
	hooksRegistered  prometheus.Gauge
	queueDrops       prometheus.Counter
}

// NewCollector builds a Collector registered against its own registry
// (not the global prometheus.DefaultRegisterer), so tests can construct
// more than one without colliding on metric names.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "experience",
			Name:      "active_sessions",
			Help:      "Number of voice connections currently live.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "experience",
			Name:      "sessions_created_total",
			Help:      "Total voice connections created.",
		}),
		sessionsResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "experience",
			Name:      "sessions_resumed_total",
			Help:      "Total voice connections resumed (reconnect).",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "experience",
			Name:      "sessions_ended_total",
			Help:      "Total voice connections ended.",
		}),
		connectionsTorn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "experience",
			Name:      "connections_torn_down_total",
			Help:      "Total voice connections torn down (hook cleanup ran).",
		}),
		transcriptEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "experience",
			Name:      "transcript_entries_appended_total",
			Help:      "Total transcript entries appended across all conversations.",
		}),
		hooksRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "experience",
			Name:      "hook_registrations_outstanding",
			Help:      "Hook registrations currently outstanding (created minus torn down).",
		}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "experience",
			Name:      "event_queue_drops_total",
			Help:      "Total events dropped because a session's event queue was full.",
		}),
	}
	reg.MustRegister(
		c.activeSessions, c.sessionsCreated, c.sessionsResumed, c.sessionsEnded,
		c.connectionsTorn, c.transcriptEvents, c.hooksRegistered, c.queueDrops,
	)
	return c
}

// Handler returns the /metrics HTTP handler serving this Collector's
// registry in Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// AddQueueDrops adds delta to the dropped-event counter. eventqueue.Queue
// tracks its own drop count locally (so the queue itself never imports
// metrics); callers that poll a queue's Dropped() count pass the
// observed delta here.
func (c *Collector) AddQueueDrops(delta uint64) {
	if delta == 0 {
		return
	}
	c.queueDrops.Add(float64(delta))
}

// Subscribe registers this Collector's handlers on the global hook bus so
// every voiceconn.Manager / transcript.Store lifecycle event updates the
// exported metrics without those packages importing metrics directly.
func (c *Collector) Subscribe() {
	opts := []hooks.RegisterOption{hooks.WithPriority(hooks.PriorityLow), hooks.WithSource("metrics")}

	hooks.On(hooks.EventConnectionCreated, func(_ context.Context, _ *hooks.Event) error {
		c.activeSessions.Inc()
		c.sessionsCreated.Inc()
		c.hooksRegistered.Inc()
		return nil
	}, append(opts, hooks.WithName("metrics.connection_created"))...)

	hooks.On(hooks.EventSessionResumed, func(_ context.Context, _ *hooks.Event) error {
		c.sessionsResumed.Inc()
		return nil
	}, append(opts, hooks.WithName("metrics.session_resumed"))...)

	hooks.On(hooks.EventConnectionTornDown, func(_ context.Context, _ *hooks.Event) error {
		c.connectionsTorn.Inc()
		c.hooksRegistered.Dec()
		return nil
	}, append(opts, hooks.WithName("metrics.connection_torn_down"))...)

	hooks.On(hooks.EventSessionEnded, func(_ context.Context, _ *hooks.Event) error {
		c.sessionsEnded.Inc()
		c.activeSessions.Dec()
		return nil
	}, append(opts, hooks.WithName("metrics.session_ended"))...)

	hooks.On(hooks.EventTranscriptAppended, func(_ context.Context, _ *hooks.Event) error {
		c.transcriptEvents.Inc()
		return nil
	}, append(opts, hooks.WithName("metrics.transcript_appended"))...)
}
