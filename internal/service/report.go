package service

import (
	"encoding/hex"
	"time"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
	"github.com/LemonScripter/metaspace-fdir-public/internal/validation"
)

// CheckSummary counts the outcomes of one named check across all operations
type CheckSummary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// ValidationReport aggregates every verdict in the operations log
type ValidationReport struct {
	ValidationID    string                  `json:"validation_id"`
	GeneratedAt     time.Time               `json:"generated_at"`
	TotalOperations int                     `json:"total_operations"`
	PassedOps       int                     `json:"passed_operations"`
	FailedOps       int                     `json:"failed_operations"`
	OverallStatus   model.VerdictStatus     `json:"overall_status"`
	Invariants      map[string]CheckSummary `json:"invariants"`
	Mathematics     map[string]CheckSummary `json:"mathematics"`
	Errors          []string                `json:"errors,omitempty"`
	NodeStates      []model.NodeSnapshot    `json:"node_states"`
	LatestSequence  *biocode.Sequence       `json:"latest_biocode,omitempty"`
	Explanation     string                  `json:"feasibility_explanation,omitempty"`
	LatestRecord    *model.ValidationRecord `json:"latest_validation"`

	// HealthHistory is the validator's bounded sample window per node
	HealthHistory map[model.NodeID][]validation.HealthSample `json:"health_history"`
}

func buildReport(records []*model.ValidationRecord, nodes []model.NodeSnapshot, seq *biocode.Sequence, history func(model.NodeID) []validation.HealthSample, head []byte, now time.Time) *ValidationReport {
	r := &ValidationReport{
		ValidationID:    hex.EncodeToString(head),
		GeneratedAt:     now.UTC(),
		TotalOperations: len(records),
		OverallStatus:   model.VerdictUnknown,
		Invariants:      make(map[string]CheckSummary),
		Mathematics:     make(map[string]CheckSummary),
		NodeStates:      nodes,
		LatestSequence:  seq,
		HealthHistory:   make(map[model.NodeID][]validation.HealthSample, len(nodes)),
	}
	for _, n := range nodes {
		r.HealthHistory[n.ID] = history(n.ID)
	}
	if seq != nil {
		r.Explanation = seq.Explanation
	}
	if len(records) == 0 {
		return r
	}

	for _, rec := range records {
		if rec.Passed() {
			r.PassedOps++
		} else {
			r.FailedOps++
			r.Errors = append(r.Errors, rec.Errors...)
		}
		for _, inv := range rec.Invariants {
			s := r.Invariants[inv.Name]
			if inv.Passed {
				s.Passed++
			} else {
				s.Failed++
			}
			r.Invariants[inv.Name] = s
		}
		for _, p := range rec.Mathematics {
			s := r.Mathematics[p.Name]
			if p.Valid {
				s.Passed++
			} else {
				s.Failed++
			}
			r.Mathematics[p.Name] = s
		}
	}

	r.OverallStatus = model.VerdictPassed
	if r.FailedOps > 0 {
		r.OverallStatus = model.VerdictFailed
	}
	r.LatestRecord = records[len(records)-1]
	return r
}
