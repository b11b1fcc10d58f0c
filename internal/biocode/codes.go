// Package biocode packs node, module and mission state into fixed-width
// binary words and derives the mission decision from them.
//
// Level 1 (node, u64):    id16 | status4 | health32 | confidence12
// Level 2 (module, u32):  id8  | health8 | trend4   | risk12
// Level 3 (mission, u64): day16 | feasibility16 | action24 | margin8
//
// All functions are pure. The only state is the fixed lookup tables below.
package biocode

import "github.com/LemonScripter/metaspace-fdir-public/internal/model"

var nodeCodes = map[model.NodeID]uint16{
	model.NodeOLI2:  0x0001,
	model.NodeTIRS2: 0x0002,
	model.NodeSTA:   0x0003,
	model.NodeSTB:   0x0004,
	model.NodeEPS:   0x0005,
	model.NodeOBC:   0x0006,
	model.NodeXBand: 0x0007,
	model.NodeSBand: 0x0008,
}

var statusCodes = map[model.NodeStatus]uint8{
	model.NodeStatusOperational: 0x0,
	model.NodeStatusHealing:     0x1,
	model.NodeStatusDegraded:    0x2,
	model.NodeStatusWarning:     0x3,
	model.NodeStatusDead:        0x4,
	model.NodeStatusCritical:    0x5,
}

// statusUnknownCode is written for statuses outside the table
const statusUnknownCode = 0xF

var trendCodes = map[model.Trend]uint8{
	model.TrendImproving: 0x0,
	model.TrendStable:    0x1,
	model.TrendDegrading: 0x2,
	model.TrendCritical:  0x3,
}

var moduleCodes = map[model.Capability]uint8{
	model.CapabilityPayload:    0x01,
	model.CapabilityNavigation: 0x02,
	model.CapabilityPower:      0x03,
	model.CapabilityComm:       0x04,
}

var actionCodes = map[model.Action]uint32{
	model.ActionContinueNominal:        0x000001,
	model.ActionContinueWithMonitoring: 0x000002,
	model.ActionReduceImagingRate:      0x000003,
	model.ActionSwitchToFallback:       0x000004,
	model.ActionSafeMode:               0x000005,
	model.ActionEmergencyHalt:          0x000006,
}

var (
	nodesByCode    = invert(nodeCodes)
	statusesByCode = invert(statusCodes)
	trendsByCode   = invert(trendCodes)
	modulesByCode  = invert(moduleCodes)
	actionsByCode  = invert(actionCodes)
)

func invert[K comparable, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// NodeCode returns the table code for id, or 0 when id is not in the roster
func NodeCode(id model.NodeID) uint16 {
	return nodeCodes[id]
}

// NodeByCode resolves a node code; unknown codes map to model.NodeUnknown
func NodeByCode(code uint16) model.NodeID {
	if id, ok := nodesByCode[code]; ok {
		return id
	}
	return model.NodeUnknown
}

// StatusCode returns the 4-bit code of s
func StatusCode(s model.NodeStatus) uint8 {
	if c, ok := statusCodes[s]; ok {
		return c
	}
	return statusUnknownCode
}

// StatusByCode resolves a 4-bit status code
func StatusByCode(code uint8) model.NodeStatus {
	if s, ok := statusesByCode[code]; ok {
		return s
	}
	return model.NodeStatusUnknown
}

// TrendCode returns the 4-bit code of tr
func TrendCode(tr model.Trend) uint8 {
	if c, ok := trendCodes[tr]; ok {
		return c
	}
	return statusUnknownCode
}

// TrendByCode resolves a 4-bit trend code
func TrendByCode(code uint8) model.Trend {
	if tr, ok := trendsByCode[code]; ok {
		return tr
	}
	return model.TrendUnknown
}

// ModuleCode returns the module id code of a capability, or 0
func ModuleCode(c model.Capability) uint8 {
	return moduleCodes[c]
}

// ModuleByCode resolves a module id code
func ModuleByCode(code uint8) model.Capability {
	if c, ok := modulesByCode[code]; ok {
		return c
	}
	return model.CapabilityUnknown
}

// ActionCode returns the 24-bit action code, 0 for unknown actions
func ActionCode(a model.Action) uint32 {
	return actionCodes[a]
}

// ActionByCode resolves an action code
func ActionByCode(code uint32) model.Action {
	if a, ok := actionsByCode[code]; ok {
		return a
	}
	return model.ActionUnknown
}
