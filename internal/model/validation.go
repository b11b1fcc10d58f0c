package model

import "time"

// VerdictStatus is the combined outcome of a validation pass
type VerdictStatus string

const (
	VerdictPassed  VerdictStatus = "PASSED"
	VerdictFailed  VerdictStatus = "FAILED"
	VerdictUnknown VerdictStatus = "UNKNOWN"
)

// Invariant names checked after every operation
const (
	InvariantHealthBounds       = "health_bounds"
	InvariantMasterUniqueness   = "master_uniqueness"
	InvariantPowerDependency    = "power_dependency"
	InvariantFeasibilityBounds  = "feasibility_bounds"
	InvariantRegenMonotonicity  = "regen_monotonicity"
	InvariantBiocodeConsistency = "biocode_consistency"
)

// Mathematics proof names
const (
	ProofFeasibilityFormula = "feasibility_formula"
	ProofBiocodeEncoding    = "biocode_encoding"
	ProofRegenTrajectory    = "regen_trajectory"
)

// InvariantResult is the outcome of one invariant check
type InvariantResult struct {
	Name        string `json:"name"`
	Passed      bool   `json:"passed"`
	Description string `json:"description"`
	Detail      string `json:"detail"`
}

// ProofResult is the outcome of one numeric re-derivation
type ProofResult struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
	Proof string `json:"proof"`
}

// ValidationRecord is the structured verdict produced after an operation.
// A FAILED record is data, never an error value.
type ValidationRecord struct {
	ID            string            `json:"id"`
	Operation     Operation         `json:"operation"`
	Timestamp     time.Time         `json:"timestamp"`
	Invariants    []InvariantResult `json:"invariants"`
	Mathematics   []ProofResult     `json:"mathematics"`
	OverallStatus VerdictStatus     `json:"overall_status"`
	Errors        []string          `json:"errors"`
}

// Passed reports whether every check in the record held
func (r *ValidationRecord) Passed() bool {
	return r.OverallStatus == VerdictPassed
}

// Invariant looks up an invariant result by name
func (r *ValidationRecord) Invariant(name string) (InvariantResult, bool) {
	for _, inv := range r.Invariants {
		if inv.Name == name {
			return inv, true
		}
	}
	return InvariantResult{}, false
}

// Proof looks up a mathematics result by name
func (r *ValidationRecord) Proof(name string) (ProofResult, bool) {
	for _, p := range r.Mathematics {
		if p.Name == name {
			return p, true
		}
	}
	return ProofResult{}, false
}

// AuditEntry is one link of the append-only operations log
type AuditEntry struct {
	Seq              uint64             `json:"seq" cbor:"1,keyasint"`
	Operation        Operation          `json:"operation" cbor:"2,keyasint"`
	Timestamp        int64              `json:"timestamp" cbor:"3,keyasint"`
	MissionDay       uint16             `json:"mission_day" cbor:"4,keyasint"`
	Feasibility      float64            `json:"feasibility" cbor:"5,keyasint"`
	Action           Action             `json:"action" cbor:"6,keyasint"`
	Validated        bool               `json:"validated" cbor:"7,keyasint"`
	ValidationStatus VerdictStatus      `json:"validation_status" cbor:"8,keyasint"`
	NodeStates       map[NodeID]float64 `json:"node_states" cbor:"9,keyasint"`
	Level3Hex        string             `json:"level3" cbor:"10,keyasint"`
	PrevHash         []byte             `json:"prev_hash" cbor:"11,keyasint"`
	Hash             []byte             `json:"hash" cbor:"-"`
}
