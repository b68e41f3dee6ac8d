package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/hooks"
)

func metricValue(t *testing.T, c *Collector, name string) float64 {
	t.Helper()
	families, err := c.registry.Gather()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "experience_"+name {
			continue
		}
		for _, m := range fam.Metric {
			if m.Gauge != nil {
				return m.Gauge.GetValue()
			}
			if m.Counter != nil {
				return m.Counter.GetValue()
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func waitForMetric(t *testing.T, c *Collector, name string, want float64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := metricValue(t, c, name); got == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("metric %q never reached %v, last seen %v", name, want, metricValue(t, c, name))
}

func TestCollectorSubscribeTracksLifecycleEvents(t *testing.T) {
	hooks.SetGlobalRegistry(hooks.NewRegistry(nil))
	c := NewCollector()
	c.Subscribe()

	hooks.TriggerAsync(context.Background(), hooks.NewEvent(hooks.EventConnectionCreated, "create").WithSession("s1"))
	hooks.TriggerAsync(context.Background(), hooks.NewEvent(hooks.EventTranscriptAppended, "user").WithSession("s1"))

	waitForMetric(t, c, "active_sessions", 1)
	waitForMetric(t, c, "sessions_created_total", 1)
	waitForMetric(t, c, "transcript_entries_appended_total", 1)

	hooks.TriggerAsync(context.Background(), hooks.NewEvent(hooks.EventSessionEnded, "user_ended").WithSession("s1"))
	waitForMetric(t, c, "active_sessions", 0)
}

func TestAddQueueDropsIsCumulative(t *testing.T) {
	c := NewCollector()
	c.AddQueueDrops(3)
	c.AddQueueDrops(2)
	if got := metricValue(t, c, "event_queue_drops_total"); got != 5 {
		t.Fatalf("expected 5 dropped events recorded, got %v", got)
	}
}
