package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

func TestRecordCycle(t *testing.T) {
	m := NewMetrics("t1", prometheus.NewRegistry())

	m.RecordCycle(model.OperationRegeneration, time.Millisecond, true)
	m.RecordCycle(model.OperationRegeneration, time.Millisecond, false)
	m.RecordCycle(model.OperationChaosInjection, time.Millisecond, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("regeneration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailuresTotal.WithLabelValues("regeneration")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ValidationFailuresTotal.WithLabelValues("chaos_injection")))
}

func TestUpdateState(t *testing.T) {
	m := NewMetrics("t1", prometheus.NewRegistry())
	roster := model.DefaultRoster()
	roster[0].SetHealth(0)
	roster[1].SetHealth(40)
	nodes := make([]model.NodeSnapshot, 0, len(roster))
	for _, n := range roster {
		nodes = append(nodes, n.Snapshot())
	}

	m.UpdateState(nodes, 81.5, 7, model.NetworkStateDegraded)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.ActiveNodes))
	assert.Equal(t, 81.5, testutil.ToFloat64(m.FeasibilityPercent))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.MissionDay))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NetworkState))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.NodeHealth.WithLabelValues("TIRS2")))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("a", prometheus.NewRegistry())
		NewMetrics("a", prometheus.NewRegistry())
	})
}
