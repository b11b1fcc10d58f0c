package biocode

import (
	"time"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

// NodeEntry is one Level-1 word with the state it was generated from
type NodeEntry struct {
	ID     model.NodeID     `json:"id"`
	Health float64          `json:"health"`
	Status model.NodeStatus `json:"status"`
	Word   uint64           `json:"-"`
	Hex    string           `json:"hex"`
}

// ModuleEntry is one Level-2 word with its members
type ModuleEntry struct {
	Capability model.Capability `json:"module"`
	Members    []model.NodeID   `json:"members"`
	Health     float64          `json:"health"`
	Trend      model.Trend      `json:"trend"`
	Word       uint32           `json:"-"`
	Hex        string           `json:"hex"`
}

// MissionEntry is the Level-3 word with the pre-encode decision
type MissionEntry struct {
	MissionDay   uint16       `json:"mission_day"`
	Feasibility  float64      `json:"feasibility"`
	Action       model.Action `json:"action"`
	SafetyMargin uint8        `json:"safety_margin"`
	Word         uint64       `json:"-"`
	Hex          string       `json:"hex"`
}

// Sequence is the full three-level encoding of one control cycle
type Sequence struct {
	MissionDay  uint16        `json:"mission_day"`
	Level1      []NodeEntry   `json:"level1"`
	Level2      []ModuleEntry `json:"level2"`
	Level3      MissionEntry  `json:"level3"`
	Explanation string        `json:"explanation"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// ModuleHistory holds module health samples per capability, oldest first
type ModuleHistory map[model.Capability][]float64

// GenerateCompleteSequence encodes every node, every non-empty module and the
// mission decision. history supplies module trend samples and may be nil.
func GenerateCompleteSequence(nodes, active []model.NodeSnapshot, day uint16, history ModuleHistory) *Sequence {
	seq := &Sequence{
		MissionDay:  day,
		Level1:      make([]NodeEntry, 0, len(nodes)),
		GeneratedAt: time.Now().UTC(),
	}

	words := make(map[model.NodeID]uint64, len(nodes))
	for _, n := range nodes {
		w := EncodeNode(n.ID, n.Health, n.Status)
		words[n.ID] = w
		seq.Level1 = append(seq.Level1, NodeEntry{
			ID:     n.ID,
			Health: n.Health,
			Status: n.Status,
			Word:   w,
			Hex:    NodeHex(w),
		})
	}

	for _, c := range model.Capabilities {
		var members []model.NodeID
		var memberWords []uint64
		for _, n := range active {
			if n.Active() && n.Has(c) {
				members = append(members, n.ID)
				memberWords = append(memberWords, words[n.ID])
			}
		}
		if len(members) == 0 {
			continue
		}
		w := EncodeModule(c, memberWords, history[c])
		decoded := DecodeModule(w)
		seq.Level2 = append(seq.Level2, ModuleEntry{
			Capability: c,
			Members:    members,
			Health:     float64(decoded.Health),
			Trend:      decoded.Trend,
			Word:       w,
			Hex:        ModuleHex(w),
		})
	}

	feasibility, explanation := WeightedFeasibility(nodes, active)
	action := DetermineAction(feasibility, ModuleHealths(active))
	margin := SafetyMargin(feasibility)
	w := EncodeMission(day, feasibility, action, margin)
	seq.Level3 = MissionEntry{
		MissionDay:   day,
		Feasibility:  feasibility,
		Action:       action,
		SafetyMargin: margin,
		Word:         w,
		Hex:          MissionHex(w),
	}
	seq.Explanation = explanation
	return seq
}

// Decoded returns the authoritative decoded Level-3 values
func (s *Sequence) Decoded() MissionWord {
	return DecodeMission(s.Level3.Word)
}
