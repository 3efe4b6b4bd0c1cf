package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"stakevault/core/events"
)

type eventMetrics struct {
	emitted     *prometheus.CounterVec
	lastEmitted *prometheus.GaugeVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted vault events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of vault events segmented by type.",
			}, []string{"type"}),
			lastEmitted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "events",
				Name:      "last_emitted_timestamp_seconds",
				Help:      "Unix time of the most recent vault event per type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.lastEmitted)
	})
	return eventRegistry
}

// Emit satisfies events.Emitter so the registry can sit in an emitter chain.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.RecordEvent(evt.EventType())
}

// RecordEvent counts eventType and stamps its last-seen gauge. Blank types
// are grouped under "unknown".
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
	m.lastEmitted.WithLabelValues(normalized).SetToCurrentTime()
}
