// Package validation re-derives the safety invariants of the node network
// after every control operation and produces a structured verdict.
package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

const (
	// MonotonicityEpsilon tolerates float noise in the regeneration check
	MonotonicityEpsilon = 0.01

	// FeasibilityTolerance is the maximum codec drift of the mission feasibility
	FeasibilityTolerance = 1.0

	// DefaultHistoryLimit is the number of health samples kept per node
	DefaultHistoryLimit = 10

	nodeHealthTolerance = 1e-6
	formulaTolerance    = 1e-6
)

var descriptions = map[string]string{
	model.InvariantHealthBounds:       "for every node: 0 <= health <= 100",
	model.InvariantMasterUniqueness:   "count(is_master) <= 1 across all nodes",
	model.InvariantPowerDependency:    "regen_active implies an active node exposes power",
	model.InvariantFeasibilityBounds:  "0 <= feasibility <= 100",
	model.InvariantRegenMonotonicity:  "regeneration: health_post >= health_pre - 0.01",
	model.InvariantBiocodeConsistency: "decode(encode(state)) preserves feasibility within 1.0 and the action exactly",
}

// Input is everything one validation pass looks at
type Input struct {
	Operation model.Operation
	// Nodes is the post-operation state
	Nodes []model.NodeSnapshot
	// PreSnapshot holds node health captured immediately before the
	// regeneration step; nil for chaos injection
	PreSnapshot map[model.NodeID]float64
	Sequence    *biocode.Sequence
	RegenActive bool
	// RegenStep is the health a regeneration may add to one node this cycle
	RegenStep   float64
	Feasibility float64
}

// HealthSample is one recorded operation for one node
type HealthSample struct {
	Operation model.Operation `json:"operation"`

	// Pre is the health before the regeneration step; equal to Health for
	// chaos injection
	Pre    float64 `json:"pre"`
	Health float64 `json:"health"`
	// Step is the gain the cycle allowed, zero when regeneration was suppressed
	Step float64 `json:"step"`
}

// Engine checks invariants and keeps a bounded per-node health history.
// Engine is not safe for concurrent use; the owning network serializes calls.
type Engine struct {
	logger       *zap.Logger
	historyLimit int
	history      map[model.NodeID][]HealthSample
	now          func() time.Time
}

// NewEngine creates a validation engine
func NewEngine(logger *zap.Logger, historyLimit int) *Engine {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Engine{
		logger:       logger,
		historyLimit: historyLimit,
		history:      make(map[model.NodeID][]HealthSample),
		now:          time.Now,
	}
}

// Reset drops all recorded history
func (e *Engine) Reset() {
	e.history = make(map[model.NodeID][]HealthSample)
}

// History returns a copy of the recorded samples for a node, oldest first
func (e *Engine) History(id model.NodeID) []HealthSample {
	h := e.history[id]
	out := make([]HealthSample, len(h))
	copy(out, h)
	return out
}

// Validate records the operation into the history, then runs every
// invariant and proof over in. A failed check yields a FAILED record, never
// an error.
func (e *Engine) Validate(in Input) *model.ValidationRecord {
	e.record(in)

	rec := &model.ValidationRecord{
		ID:        uuid.NewString(),
		Operation: in.Operation,
		Timestamp: e.now().UTC(),
	}

	checks := []struct {
		name string
		run  func() (bool, string)
	}{
		{model.InvariantHealthBounds, func() (bool, string) { return checkHealthBounds(in.Nodes) }},
		{model.InvariantMasterUniqueness, func() (bool, string) { return checkMasterUniqueness(in.Nodes) }},
		{model.InvariantPowerDependency, func() (bool, string) { return checkPowerDependency(in.Nodes, in.RegenActive) }},
		{model.InvariantFeasibilityBounds, func() (bool, string) { return checkFeasibilityBounds(in.Feasibility) }},
		{model.InvariantRegenMonotonicity, func() (bool, string) {
			return checkRegenMonotonicity(in.Operation, in.PreSnapshot, in.Nodes)
		}},
		{model.InvariantBiocodeConsistency, func() (bool, string) { return checkBiocodeConsistency(in.Sequence) }},
	}

	for _, c := range checks {
		passed, detail := c.run()
		rec.Invariants = append(rec.Invariants, model.InvariantResult{
			Name:        c.name,
			Passed:      passed,
			Description: descriptions[c.name],
			Detail:      detail,
		})
		if !passed {
			rec.Errors = append(rec.Errors, fmt.Sprintf("%s violated: %s", c.name, detail))
		}
	}

	for _, p := range []model.ProofResult{
		proveFeasibilityFormula(in.Nodes, in.Feasibility),
		proveBiocodeEncoding(in.Sequence),
		proveRegenTrajectory(e.history, in.Nodes),
	} {
		rec.Mathematics = append(rec.Mathematics, p)
		if !p.Valid {
			rec.Errors = append(rec.Errors, fmt.Sprintf("%s invalid: %s", p.Name, p.Proof))
		}
	}

	rec.OverallStatus = model.VerdictPassed
	if len(rec.Errors) > 0 {
		rec.OverallStatus = model.VerdictFailed
	}

	e.logger.Debug("Validation complete",
		zap.String("operation", string(in.Operation)),
		zap.String("status", string(rec.OverallStatus)),
		zap.Int("errors", len(rec.Errors)))

	return rec
}

func (e *Engine) record(in Input) {
	step := 0.0
	if in.RegenActive {
		step = in.RegenStep
	}
	for _, n := range in.Nodes {
		sample := HealthSample{Operation: in.Operation, Pre: n.Health, Health: n.Health}
		if in.Operation == model.OperationRegeneration {
			if pre, ok := in.PreSnapshot[n.ID]; ok {
				sample.Pre = pre
			}
			sample.Step = step
		}
		h := append(e.history[n.ID], sample)
		if len(h) > e.historyLimit {
			h = h[len(h)-e.historyLimit:]
		}
		e.history[n.ID] = h
	}
}

func checkHealthBounds(nodes []model.NodeSnapshot) (bool, string) {
	var bad []string
	for _, n := range nodes {
		if n.Health < model.MinHealth || n.Health > model.MaxHealth || math.IsNaN(n.Health) {
			bad = append(bad, fmt.Sprintf("%s=%.4f", n.ID, n.Health))
		}
	}
	if len(bad) > 0 {
		return false, "out of bounds: " + strings.Join(bad, ", ")
	}
	return true, fmt.Sprintf("all %d nodes within [0, 100]", len(nodes))
}

func checkMasterUniqueness(nodes []model.NodeSnapshot) (bool, string) {
	var masters []string
	for _, n := range nodes {
		if n.IsMaster {
			masters = append(masters, string(n.ID))
		}
	}
	switch len(masters) {
	case 0:
		return true, "no master (no active nodes)"
	case 1:
		return true, "single master: " + masters[0]
	default:
		return false, fmt.Sprintf("%d masters: %s", len(masters), strings.Join(masters, ", "))
	}
}

func checkPowerDependency(nodes []model.NodeSnapshot, regenActive bool) (bool, string) {
	var power []string
	for _, n := range nodes {
		if n.Active() && n.Has(model.CapabilityPower) {
			power = append(power, string(n.ID))
		}
	}
	if !regenActive {
		return true, fmt.Sprintf("regeneration inactive (power nodes: %d)", len(power))
	}
	if len(power) == 0 {
		return false, "regeneration active without any active power node"
	}
	return true, "regeneration backed by power: " + strings.Join(power, ", ")
}

func checkFeasibilityBounds(f float64) (bool, string) {
	if math.IsNaN(f) || f < 0 || f > 100 {
		return false, fmt.Sprintf("feasibility %.4f outside [0, 100]", f)
	}
	return true, fmt.Sprintf("feasibility %.2f within [0, 100]", f)
}

func checkRegenMonotonicity(op model.Operation, pre map[model.NodeID]float64, nodes []model.NodeSnapshot) (bool, string) {
	if op != model.OperationRegeneration {
		return true, "not applicable to " + string(op)
	}
	if pre == nil {
		return false, "no pre-step snapshot captured"
	}
	var bad []string
	for _, n := range nodes {
		before, ok := pre[n.ID]
		if !ok {
			continue
		}
		if n.Health < before-MonotonicityEpsilon {
			bad = append(bad, fmt.Sprintf("%s %.4f -> %.4f", n.ID, before, n.Health))
		}
	}
	if len(bad) > 0 {
		return false, "health decreased: " + strings.Join(bad, ", ")
	}
	return true, fmt.Sprintf("no decrease across %d nodes", len(pre))
}

func checkBiocodeConsistency(seq *biocode.Sequence) (bool, string) {
	if seq == nil {
		return false, "no bio-code sequence generated"
	}

	decoded := biocode.DecodeMission(seq.Level3.Word)
	drift := math.Abs(decoded.Feasibility - seq.Level3.Feasibility)
	if drift > FeasibilityTolerance {
		return false, fmt.Sprintf("feasibility drift %.4f > %.1f (%.2f -> %.0f)",
			drift, FeasibilityTolerance, seq.Level3.Feasibility, decoded.Feasibility)
	}
	if decoded.Action != seq.Level3.Action {
		return false, fmt.Sprintf("action mismatch: %s -> %s", seq.Level3.Action, decoded.Action)
	}

	for _, e := range seq.Level1 {
		d := biocode.DecodeNode(e.Word)
		if math.Abs(d.Health-model.ClampHealth(e.Health)) > nodeHealthTolerance {
			return false, fmt.Sprintf("node %s health %.6f -> %.6f", e.ID, e.Health, d.Health)
		}
		if d.Status != e.Status {
			return false, fmt.Sprintf("node %s status %s -> %s", e.ID, e.Status, d.Status)
		}
	}

	return true, fmt.Sprintf("mission %s: feasibility %.2f -> %.0f, action %s; %d node words intact",
		seq.Level3.Hex, seq.Level3.Feasibility, decoded.Feasibility, decoded.Action, len(seq.Level1))
}
