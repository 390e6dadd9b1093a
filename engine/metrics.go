package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	lap            prometheus.Gauge
	tickDuration   prometheus.Histogram
	disruptions    *prometheus.CounterVec
	events         *prometheus.CounterVec
	droppedUpdates prometheus.Counter
	activeCars     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lap: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pitwall",
			Name:      "lap",
			Help:      "Current race lap.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pitwall",
			Name:      "tick_duration_seconds",
			Help:      "Time spent advancing the race per clock signal.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		disruptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitwall",
			Name:      "disruptions_total",
			Help:      "Disruptions taken from the ingestion latch.",
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitwall",
			Name:      "race_events_total",
			Help:      "Race events emitted.",
		}, []string{"kind"}),
		droppedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitwall",
			Name:      "dropped_updates_total",
			Help:      "Updates dropped because the publish queue was full.",
		}),
		activeCars: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pitwall",
			Name:      "active_cars",
			Help:      "Cars still racing.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.lap, m.tickDuration, m.disruptions, m.events, m.droppedUpdates, m.activeCars)
	}
	return m
}
