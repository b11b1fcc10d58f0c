package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

var proofWeights = []struct {
	capability model.Capability
	weight     float64
}{
	{model.CapabilityPayload, 0.30},
	{model.CapabilityNavigation, 0.25},
	{model.CapabilityPower, 0.25},
	{model.CapabilityComm, 0.20},
}

// proveFeasibilityFormula recomputes the weighted sum from raw node state
// without going through the codec package.
func proveFeasibilityFormula(nodes []model.NodeSnapshot, reported float64) model.ProofResult {
	var (
		total float64
		terms []string
	)
	for _, pw := range proofWeights {
		var sum float64
		var count int
		for _, n := range nodes {
			if n.Health <= 0 {
				continue
			}
			for _, c := range n.Capabilities {
				if c == pw.capability {
					sum += n.Health
					count++
					break
				}
			}
		}
		mean := 0.0
		if count > 0 {
			mean = sum / float64(count)
		}
		total += pw.weight * mean
		terms = append(terms, fmt.Sprintf("%.2f*%.2f", pw.weight, mean))
	}
	total = math.Max(0, math.Min(100, total))

	delta := math.Abs(total - reported)
	valid := delta <= formulaTolerance && reported >= 0 && reported <= 100
	mark := "holds"
	if !valid {
		mark = "FAILS"
	}
	return model.ProofResult{
		Name:  model.ProofFeasibilityFormula,
		Valid: valid,
		Proof: fmt.Sprintf("F = %s = %.4f; reported %.4f, |delta| = %.6f; 0 <= F <= 100 %s",
			strings.Join(terms, " + "), total, reported, delta, mark),
	}
}

// proveBiocodeEncoding extracts the Level-3 fields by shifting the raw word
// and compares them with the pre-encode decision.
func proveBiocodeEncoding(seq *biocode.Sequence) model.ProofResult {
	res := model.ProofResult{Name: model.ProofBiocodeEncoding}
	if seq == nil {
		res.Proof = "no mission word to inspect"
		return res
	}

	w := seq.Level3.Word
	day := uint16(w >> 48)
	feas := float64((w >> 32) & 0xFFFF)
	action := uint32((w >> 8) & 0xFFFFFF)
	margin := uint8(w & 0xFF)

	wantMargin := 0
	if m := int(seq.Level3.Feasibility) - 40; m > 0 {
		wantMargin = m
	}
	wantAction := biocode.ActionCode(seq.Level3.Action)

	var problems []string
	if day != seq.MissionDay {
		problems = append(problems, fmt.Sprintf("day %d != %d", day, seq.MissionDay))
	}
	if math.Abs(feas-seq.Level3.Feasibility) > FeasibilityTolerance || feas > 100 {
		problems = append(problems, fmt.Sprintf("feasibility bits %.0f vs %.2f", feas, seq.Level3.Feasibility))
	}
	if action != wantAction || action == 0 {
		problems = append(problems, fmt.Sprintf("action bits 0x%06X != 0x%06X", action, wantAction))
	}
	if int(margin) != wantMargin {
		problems = append(problems, fmt.Sprintf("margin bits %d != %d", margin, wantMargin))
	}

	res.Valid = len(problems) == 0
	if res.Valid {
		res.Proof = fmt.Sprintf("%s = day %d | feas %.0f | action 0x%06X | margin %d; |%.2f - %.0f| <= 1.0",
			seq.Level3.Hex, day, feas, action, margin, seq.Level3.Feasibility, feas)
	} else {
		res.Proof = seq.Level3.Hex + ": " + strings.Join(problems, "; ")
	}
	return res
}

// proveRegenTrajectory replays every regeneration sample in the history
// window: each step must neither lower a node's health nor add more than
// the step the cycle was allowed.
func proveRegenTrajectory(history map[model.NodeID][]HealthSample, nodes []model.NodeSnapshot) model.ProofResult {
	var (
		cycles   int
		gained   float64
		allowed  float64
		problems []string
	)
	for _, n := range nodes {
		for _, s := range history[n.ID] {
			if s.Operation != model.OperationRegeneration {
				continue
			}
			cycles++
			gain := s.Health - s.Pre
			ceiling := math.Min(s.Step, model.MaxHealth-s.Pre)
			gained += gain
			allowed += math.Max(0, ceiling)
			switch {
			case gain < -MonotonicityEpsilon:
				problems = append(problems, fmt.Sprintf("%s %.4f -> %.4f", n.ID, s.Pre, s.Health))
			case gain > ceiling+MonotonicityEpsilon:
				problems = append(problems, fmt.Sprintf("%s +%.4f exceeds step %.4f", n.ID, gain, s.Step))
			}
		}
	}

	res := model.ProofResult{Name: model.ProofRegenTrajectory, Valid: len(problems) == 0}
	if res.Valid {
		res.Proof = fmt.Sprintf("%d node-cycles in window: 0 <= sum(post - pre) = %.4f <= sum(step) = %.4f",
			cycles, gained, allowed)
	} else {
		res.Proof = "regeneration trajectory broken: " + strings.Join(problems, "; ")
	}
	return res
}
