package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

// Metrics holds all Prometheus metrics for a twin instance
type Metrics struct {
	// Control cycle metrics
	CyclesTotal             *prometheus.CounterVec
	ValidationFailuresTotal *prometheus.CounterVec
	CycleDuration           *prometheus.HistogramVec

	// Network state
	FeasibilityPercent prometheus.Gauge
	NodeHealth         *prometheus.GaugeVec
	ActiveNodes        prometheus.Gauge
	MissionDay         prometheus.Gauge
	NetworkState       prometheus.Gauge

	// Collaborator failures
	PersistFailuresTotal   prometheus.Counter
	TelemetryFailuresTotal prometheus.Counter

	// Gossip
	GossipMembers prometheus.Gauge

	// System
	DiskUsagePercent prometheus.Gauge
	MemoryUsageBytes prometheus.Gauge
	GoroutinesTotal  prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry(); the process uses prometheus.DefaultRegisterer.
func NewMetrics(twinID string, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"twin_id": twinID}
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "twin",
			Name:        "cycles_total",
			Help:        "Total number of control cycles by operation",
			ConstLabels: labels,
		}, []string{"operation"}),
		ValidationFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "twin",
			Name:        "validation_failures_total",
			Help:        "Total number of control cycles whose validation verdict failed",
			ConstLabels: labels,
		}, []string{"operation"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "twin",
			Name:        "cycle_duration_seconds",
			Help:        "Control cycle duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05, .1},
		}, []string{"operation"}),
		FeasibilityPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "twin",
			Name:        "feasibility_percent",
			Help:        "Mission feasibility after the latest cycle",
			ConstLabels: labels,
		}),
		NodeHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "twin",
			Name:        "node_health",
			Help:        "Health of each node",
			ConstLabels: labels,
		}, []string{"node"}),
		ActiveNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "twin",
			Name:        "active_nodes",
			Help:        "Number of nodes with health above zero",
			ConstLabels: labels,
		}),
		MissionDay: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "twin",
			Name:        "mission_day",
			Help:        "Current mission day counter",
			ConstLabels: labels,
		}),
		NetworkState: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "twin",
			Name:        "network_state",
			Help:        "Network state (0=nominal, 1=degraded, 2=unrecoverable)",
			ConstLabels: labels,
		}),
		PersistFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "twin",
			Name:        "persist_failures_total",
			Help:        "Total number of failed bio-code or audit persistence calls",
			ConstLabels: labels,
		}),
		TelemetryFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "twin",
			Name:        "telemetry_failures_total",
			Help:        "Total number of failed physical model pulls",
			ConstLabels: labels,
		}),
		GossipMembers: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "twin",
			Subsystem:   "gossip",
			Name:        "members",
			Help:        "Number of twin replicas in the gossip cluster",
			ConstLabels: labels,
		}),
		DiskUsagePercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "twin",
			Subsystem:   "system",
			Name:        "disk_usage_percent",
			Help:        "Disk usage of the bio-code directory",
			ConstLabels: labels,
		}),
		MemoryUsageBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "twin",
			Subsystem:   "system",
			Name:        "memory_usage_bytes",
			Help:        "Heap bytes allocated",
			ConstLabels: labels,
		}),
		GoroutinesTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "twin",
			Subsystem:   "system",
			Name:        "goroutines",
			Help:        "Number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// RecordCycle records one finished control cycle
func (m *Metrics) RecordCycle(op model.Operation, d time.Duration, passed bool) {
	m.CyclesTotal.WithLabelValues(string(op)).Inc()
	m.CycleDuration.WithLabelValues(string(op)).Observe(d.Seconds())
	if !passed {
		m.ValidationFailuresTotal.WithLabelValues(string(op)).Inc()
	}
}

// UpdateState publishes the post-cycle network view
func (m *Metrics) UpdateState(nodes []model.NodeSnapshot, feasibility float64, day uint16, state model.NetworkState) {
	active := 0
	for _, n := range nodes {
		m.NodeHealth.WithLabelValues(string(n.ID)).Set(n.Health)
		if n.Active() {
			active++
		}
	}
	m.ActiveNodes.Set(float64(active))
	m.FeasibilityPercent.Set(feasibility)
	m.MissionDay.Set(float64(day))
	m.NetworkState.Set(state.Gauge())
}

// UpdateSystemStats publishes process-level statistics
func (m *Metrics) UpdateSystemStats(diskUsagePercent float64, memBytes uint64, goroutines int) {
	m.DiskUsagePercent.Set(diskUsagePercent)
	m.MemoryUsageBytes.Set(float64(memBytes))
	m.GoroutinesTotal.Set(float64(goroutines))
}
