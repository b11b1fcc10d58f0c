package biocode

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

func rosterWith(healths map[model.NodeID]float64) []model.NodeSnapshot {
	roster := model.DefaultRoster()
	out := make([]model.NodeSnapshot, 0, len(roster))
	for _, n := range roster {
		if h, ok := healths[n.ID]; ok {
			n.SetHealth(h)
		}
		out = append(out, n.Snapshot())
	}
	return out
}

func TestWeightedFeasibility_FullHealth(t *testing.T) {
	nodes := rosterWith(nil)
	score, explanation := WeightedFeasibility(nodes, model.ActiveSnapshots(nodes))

	assert.InDelta(t, 100.0, score, 1e-9)
	assert.Contains(t, explanation, "payload: 0.30 x 100.00 (3/3 holders)")
	assert.Contains(t, explanation, "feasibility = 100.00")
}

func TestWeightedFeasibility_MissingCapabilityContributesZero(t *testing.T) {
	nodes := rosterWith(map[model.NodeID]float64{model.NodeXBand: 0, model.NodeSBand: 0})
	score, explanation := WeightedFeasibility(nodes, model.ActiveSnapshots(nodes))

	assert.InDelta(t, 80.0, score, 1e-9)
	assert.Contains(t, explanation, "comm: 0.20 x 0.00 (0/2 holders) = 0.00")
}

func TestWeightedFeasibility_BlindNodesExcluded(t *testing.T) {
	nodes := rosterWith(map[model.NodeID]float64{model.NodeEPS: 10})
	score, _ := WeightedFeasibility(nodes, model.ActiveSnapshots(nodes))
	assert.InDelta(t, 75.0, score, 1e-9)
}

func TestWeightedFeasibility_BoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ids := model.RosterIDs()

	for i := 0; i < 2000; i++ {
		healths := make(map[model.NodeID]float64, len(ids))
		for _, id := range ids {
			switch rng.Intn(4) {
			case 0:
				healths[id] = 0
			case 1:
				healths[id] = 100
			default:
				healths[id] = rng.Float64() * 100
			}
		}
		nodes := rosterWith(healths)
		score, _ := WeightedFeasibility(nodes, model.ActiveSnapshots(nodes))
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 100.0)
	}
}

func TestDetermineAction_Thresholds(t *testing.T) {
	power := map[model.Capability]float64{model.CapabilityPower: 90}
	tests := []struct {
		feasibility float64
		want        model.Action
	}{
		{100, model.ActionContinueNominal},
		{90.5, model.ActionContinueNominal},
		{90, model.ActionContinueWithMonitoring},
		{82, model.ActionContinueWithMonitoring},
		{75, model.ActionReduceImagingRate},
		{60, model.ActionSwitchToFallback},
		{40, model.ActionSafeMode},
		{20, model.ActionEmergencyHalt},
		{0, model.ActionEmergencyHalt},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetermineAction(tt.feasibility, power), "feasibility %v", tt.feasibility)
	}
}

func TestDetermineAction_PowerOverride(t *testing.T) {
	assert.Equal(t, model.ActionEmergencyHalt,
		DetermineAction(95, map[model.Capability]float64{model.CapabilityPower: 19.9}))
	assert.Equal(t, model.ActionEmergencyHalt, DetermineAction(95, nil))
	assert.Equal(t, model.ActionContinueNominal,
		DetermineAction(95, map[model.Capability]float64{model.CapabilityPower: 20}))
}

func TestDetermineAction_MonitoringAtEightyTwo(t *testing.T) {
	nodes := rosterWith(map[model.NodeID]float64{
		model.NodeOLI2:  70,
		model.NodeTIRS2: 70,
		model.NodeOBC:   70,
		model.NodeSTA:   88,
		model.NodeSTB:   88,
		model.NodeEPS:   90,
		model.NodeXBand: 90,
		model.NodeSBand: 90,
	})
	active := model.ActiveSnapshots(nodes)

	modules := ModuleHealths(active)
	require.InDelta(t, 90.0, modules[model.CapabilityPower], 1e-9)
	require.InDelta(t, 82.0, modules[model.CapabilityNavigation], 1e-9)

	score, _ := WeightedFeasibility(nodes, active)
	require.InDelta(t, 82.0, score, 1e-9)
	assert.Equal(t, model.ActionContinueWithMonitoring, DetermineAction(score, modules))
}
