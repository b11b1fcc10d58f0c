package biocode

import (
	"math"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

// Bit layout
const (
	nodeIDShift     = 48
	nodeStatusShift = 44
	nodeHealthShift = 12
	nodeConfMask    = 0xFFF

	moduleIDShift     = 24
	moduleHealthShift = 16
	moduleTrendShift  = 12
	moduleRiskMask    = 0xFFF

	missionDayShift    = 48
	missionFeasShift   = 32
	missionActionShift = 8
	missionActionMask  = 0xFFFFFF
	missionMarginMask  = 0xFF

	// MaxConfidence and MaxRisk are the largest 12-bit field values
	MaxConfidence = 4095
	MaxRisk       = 4095

	// CriticalThreshold is subtracted from feasibility to obtain the safety margin
	CriticalThreshold = 40

	healthScale = float64(math.MaxUint32) / model.MaxHealth
)

// NodeWord is a decoded Level-1 word
type NodeWord struct {
	ID         model.NodeID     `json:"id"`
	Code       uint16           `json:"code"`
	Status     model.NodeStatus `json:"status"`
	Health     float64          `json:"health"`
	Confidence uint16           `json:"confidence"`
}

// ModuleWord is a decoded Level-2 word
type ModuleWord struct {
	Capability model.Capability `json:"module"`
	Code       uint8            `json:"code"`
	Health     uint8            `json:"health"`
	Trend      model.Trend      `json:"trend"`
	Risk       uint16           `json:"risk_score"`
}

// MissionWord is a decoded Level-3 word
type MissionWord struct {
	MissionDay   uint16       `json:"mission_day"`
	Feasibility  float64      `json:"feasibility"`
	Action       model.Action `json:"action"`
	ActionCode   uint32       `json:"action_code"`
	SafetyMargin uint8        `json:"safety_margin"`
}

// QuantizeHealth maps a health in [0,100] onto the 32-bit fixed-point range
func QuantizeHealth(h float64) uint32 {
	q := math.Round(model.ClampHealth(h) * healthScale)
	if q >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(q)
}

// DequantizeHealth inverts QuantizeHealth
func DequantizeHealth(q uint32) float64 {
	return float64(q) / healthScale
}

// Confidence is the 12-bit confidence derived from health
func Confidence(h float64) uint16 {
	c := h * 40.95
	if c != c || c < 0 {
		return 0
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return uint16(c)
}

// EncodeNode packs a node into a Level-1 word. Ids outside the roster encode
// as code 0 and decode as UNKNOWN.
func EncodeNode(id model.NodeID, health float64, status model.NodeStatus) uint64 {
	h := model.ClampHealth(health)
	return uint64(NodeCode(id))<<nodeIDShift |
		uint64(StatusCode(status)&0xF)<<nodeStatusShift |
		uint64(QuantizeHealth(h))<<nodeHealthShift |
		uint64(Confidence(h)&nodeConfMask)
}

// DecodeNode unpacks a Level-1 word
func DecodeNode(word uint64) NodeWord {
	code := uint16(word >> nodeIDShift)
	return NodeWord{
		ID:         NodeByCode(code),
		Code:       code,
		Status:     StatusByCode(uint8(word>>nodeStatusShift) & 0xF),
		Health:     DequantizeHealth(uint32(word >> nodeHealthShift)),
		Confidence: uint16(word & nodeConfMask),
	}
}

// EncodeModule packs a capability module from its member Level-1 words and
// the module health history (oldest first, current sample last). The health
// field is the rounded mean of the decoded member healths.
func EncodeModule(c model.Capability, members []uint64, history []float64) uint32 {
	healths := make([]float64, len(members))
	for i, w := range members {
		healths[i] = DecodeNode(w).Health
	}
	mean := Mean(healths)
	trend := ComputeTrend(history)

	return uint32(ModuleCode(c))<<moduleIDShift |
		uint32(uint8(math.Round(mean)))<<moduleHealthShift |
		uint32(TrendCode(trend)&0xF)<<moduleTrendShift |
		uint32(RiskScore(mean, trend, healths)&moduleRiskMask)
}

// DecodeModule unpacks a Level-2 word
func DecodeModule(word uint32) ModuleWord {
	code := uint8(word >> moduleIDShift)
	return ModuleWord{
		Capability: ModuleByCode(code),
		Code:       code,
		Health:     uint8(word >> moduleHealthShift),
		Trend:      TrendByCode(uint8(word>>moduleTrendShift) & 0xF),
		Risk:       uint16(word & moduleRiskMask),
	}
}

// ComputeTrend classifies the last two samples of a health series.
// A jump of more than 10 in either direction is CRITICAL.
func ComputeTrend(history []float64) model.Trend {
	if len(history) < 2 {
		return model.TrendStable
	}
	delta := history[len(history)-1] - history[len(history)-2]
	switch {
	case math.Abs(delta) > 10:
		return model.TrendCritical
	case delta < -5:
		return model.TrendDegrading
	case delta > 5:
		return model.TrendImproving
	default:
		return model.TrendStable
	}
}

// RiskScore combines health deficit, trend penalty and member spread
func RiskScore(health float64, trend model.Trend, memberHealths []float64) uint16 {
	risk := (model.MaxHealth-health)*20 + float64(TrendCode(trend))*100
	if len(memberHealths) > 1 {
		risk += math.Min(StdDev(memberHealths)*100, 1000)
	}
	if risk < 0 {
		return 0
	}
	if risk > MaxRisk {
		return MaxRisk
	}
	return uint16(math.Round(risk))
}

// SafetyMargin is the integer feasibility headroom above the critical threshold
func SafetyMargin(feasibility float64) uint8 {
	m := int(feasibility) - CriticalThreshold
	if m < 0 {
		return 0
	}
	if m > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(m)
}

// EncodeMission packs the mission decision. Feasibility is truncated to an
// integer percent.
func EncodeMission(day uint16, feasibility float64, action model.Action, margin uint8) uint64 {
	f := feasibility
	if f != f || f < 0 {
		f = 0
	}
	if f > model.MaxHealth {
		f = model.MaxHealth
	}
	return uint64(day)<<missionDayShift |
		uint64(uint16(f))<<missionFeasShift |
		uint64(ActionCode(action)&missionActionMask)<<missionActionShift |
		uint64(margin)
}

// DecodeMission unpacks a Level-3 word
func DecodeMission(word uint64) MissionWord {
	code := uint32(word>>missionActionShift) & missionActionMask
	return MissionWord{
		MissionDay:   uint16(word >> missionDayShift),
		Feasibility:  float64(uint16(word >> missionFeasShift)),
		Action:       ActionByCode(code),
		ActionCode:   code,
		SafetyMargin: uint8(word & missionMarginMask),
	}
}

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	var acc float64
	for _, v := range values {
		acc += (v - m) * (v - m)
	}
	return math.Sqrt(acc / float64(len(values)))
}
