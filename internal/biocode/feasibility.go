package biocode

import (
	"fmt"
	"strings"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

// Weights is the capability weight table; the values sum to 1.0
var Weights = map[model.Capability]float64{
	model.CapabilityPayload:    0.30,
	model.CapabilityNavigation: 0.25,
	model.CapabilityPower:      0.25,
	model.CapabilityComm:       0.20,
}

// Action thresholds, descending. Feasibility must strictly exceed a bound to
// reach its tier.
const (
	ThresholdNominal    = 90.0
	ThresholdMonitoring = 75.0
	ThresholdReduce     = 60.0
	ThresholdFallback   = 40.0
	ThresholdSafeMode   = 20.0

	// PowerHaltThreshold forces EMERGENCY_HALT when the power module is below it
	PowerHaltThreshold = 20.0
)

// ModuleHealths returns the mean health of the active nodes exposing each
// capability. A capability without active holders maps to 0.
func ModuleHealths(active []model.NodeSnapshot) map[model.Capability]float64 {
	out := make(map[model.Capability]float64, len(model.Capabilities))
	for _, c := range model.Capabilities {
		out[c] = Mean(holderHealths(active, c))
	}
	return out
}

func holderHealths(nodes []model.NodeSnapshot, c model.Capability) []float64 {
	var hs []float64
	for _, n := range nodes {
		if n.Active() && n.Has(c) {
			hs = append(hs, n.Health)
		}
	}
	return hs
}

// WeightedFeasibility scores mission continuation capacity as the weighted
// sum of module healths over the active nodes. Missing capabilities contribute
// zero. The explanation is a deterministic audit breakdown.
func WeightedFeasibility(nodes, active []model.NodeSnapshot) (float64, string) {
	var (
		score float64
		sb    strings.Builder
	)
	for _, c := range model.Capabilities {
		hs := holderHealths(active, c)
		declared := 0
		for _, n := range nodes {
			for _, d := range n.Declared {
				if d == c {
					declared++
					break
				}
			}
		}
		mean := Mean(hs)
		contrib := Weights[c] * mean
		score += contrib
		fmt.Fprintf(&sb, "%s: %.2f x %.2f (%d/%d holders) = %.2f\n",
			c, Weights[c], mean, len(hs), declared, contrib)
	}
	if score < 0 {
		score = 0
	}
	if score > model.MaxHealth {
		score = model.MaxHealth
	}
	fmt.Fprintf(&sb, "feasibility = %.2f", score)
	return score, sb.String()
}

// DetermineAction maps feasibility and module health to a mission action.
// Power below PowerHaltThreshold halts unconditionally; a missing power entry
// counts as zero.
func DetermineAction(feasibility float64, moduleHealth map[model.Capability]float64) model.Action {
	if moduleHealth[model.CapabilityPower] < PowerHaltThreshold {
		return model.ActionEmergencyHalt
	}
	switch {
	case feasibility > ThresholdNominal:
		return model.ActionContinueNominal
	case feasibility > ThresholdMonitoring:
		return model.ActionContinueWithMonitoring
	case feasibility > ThresholdReduce:
		return model.ActionReduceImagingRate
	case feasibility > ThresholdFallback:
		return model.ActionSwitchToFallback
	case feasibility > ThresholdSafeMode:
		return model.ActionSafeMode
	default:
		return model.ActionEmergencyHalt
	}
}
