package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attribution outcomes.
const (
	AttributionCache   = "cache"
	AttributionAudit   = "audit"
	AttributionLate    = "late"
	AttributionMiss    = "miss"
	AttributionTimeout = "timeout"
	AttributionError   = "error"
)

// Metrics bundles the Prometheus collectors with the in-process counters the
// /status command reads. A nil *Metrics is valid and records nothing.
type Metrics struct {
	EventsTotal         *prometheus.CounterVec
	GatedTotal          *prometheus.CounterVec
	AttributionTotal    *prometheus.CounterVec
	AttributionDuration prometheus.Histogram
	LockdownsTotal      *prometheus.CounterVec
	MitigationsTotal    *prometheus.CounterVec
	OpenBreakers        prometheus.Gauge
	TrackedWindows      prometheus.Gauge
	LockedGuilds        prometheus.Gauge

	attribution *LatencyHistogram
	ingress     *IngressRateCounter
	health      *CorrelatorHealth
	gatherer    prometheus.Gatherer
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		EventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_events_total",
			Help: "Guild mutation events observed.",
		}, []string{"action"}),

		GatedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_gated_events_total",
			Help: "Events neutralized by the lockdown gate.",
		}, []string{"action"}),

		AttributionTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_attribution_total",
			Help: "Audit attribution attempts by outcome.",
		}, []string{"outcome"}),

		AttributionDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "nexus_attribution_duration_seconds",
			Help:    "Latency of audit attribution.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		LockdownsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_lockdowns_total",
			Help: "Lockdowns entered by trigger.",
		}, []string{"trigger"}),

		MitigationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_mitigations_total",
			Help: "Mitigation records by action and result.",
		}, []string{"action", "result"}),

		OpenBreakers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "nexus_audit_breakers_open",
			Help: "Guilds whose audit-log circuit breaker is open.",
		}),

		TrackedWindows: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "nexus_tracked_windows",
			Help: "Actor windows held by the action tracker.",
		}),

		LockedGuilds: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "nexus_locked_guilds",
			Help: "Guilds currently in lockdown.",
		}),

		attribution: NewLatencyHistogram(),
		ingress:     NewIngressRateCounter(),
		health:      NewCorrelatorHealth(),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return m.gatherer
}

func (m *Metrics) EventObserved(action string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(action).Inc()
	m.ingress.Increment()
}

func (m *Metrics) EventGated(action string) {
	if m == nil {
		return
	}
	m.GatedTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) Attribution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AttributionTotal.WithLabelValues(outcome).Inc()
	m.AttributionDuration.Observe(d.Seconds())
	m.attribution.Record(d)
}

func (m *Metrics) Lockdown(trigger string) {
	if m == nil {
		return
	}
	m.LockdownsTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Mitigation(action string, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	m.MitigationsTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) SetOpenBreakers(n int) {
	if m == nil {
		return
	}
	m.OpenBreakers.Set(float64(n))
}

func (m *Metrics) SetTracked(windows, locked int) {
	if m == nil {
		return
	}
	m.TrackedWindows.Set(float64(windows))
	m.LockedGuilds.Set(float64(locked))
}

func (m *Metrics) Health() *CorrelatorHealth {
	if m == nil {
		return nil
	}
	return m.health
}

// Snapshot is the summary shown by /status.
type Snapshot struct {
	Events      uint64
	EventRate   float64
	Attribution LatencyStats
	InFlight    int64
	Healthy     bool
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Healthy: true}
	}
	return Snapshot{
		Events:      m.ingress.Count(),
		EventRate:   m.ingress.Rate(),
		Attribution: m.attribution.Stats(),
		InFlight:    m.health.InFlight(),
		Healthy:     m.health.IsHealthy(),
	}
}
