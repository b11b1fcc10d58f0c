package model

// Fixed roster identifiers
const (
	NodeOLI2    NodeID = "OLI2"
	NodeTIRS2   NodeID = "TIRS2"
	NodeSTA     NodeID = "ST_A"
	NodeSTB     NodeID = "ST_B"
	NodeEPS     NodeID = "EPS"
	NodeOBC     NodeID = "OBC"
	NodeXBand   NodeID = "X_BAND"
	NodeSBand   NodeID = "S_BAND"
	NodeUnknown NodeID = "UNKNOWN"
)

// InitialMaster is the compute node that holds the master flag after reset
const InitialMaster = NodeOBC

// DefaultRoster builds the eight redundant units in roster order
func DefaultRoster() []*Node {
	obc := NewNode(NodeOBC, "On-Board Computer", NodeTypeCompute, CapabilityPayload, CapabilityNavigation)
	obc.IsMaster = true

	return []*Node{
		NewNode(NodeOLI2, "OLI-2", NodeTypeSensor, CapabilityPayload),
		NewNode(NodeTIRS2, "TIRS-2", NodeTypeSensor, CapabilityPayload),
		NewNode(NodeSTA, "Star Tracker A", NodeTypeSensor, CapabilityNavigation),
		NewNode(NodeSTB, "Star Tracker B", NodeTypeSensor, CapabilityNavigation),
		NewNode(NodeEPS, "Electrical Power System", NodeTypeActuator, CapabilityPower),
		obc,
		NewNode(NodeXBand, "X-band Transponder", NodeTypeActuator, CapabilityComm),
		NewNode(NodeSBand, "S-band Transponder", NodeTypeActuator, CapabilityComm),
	}
}

// RosterIDs returns the fixed roster ids in order
func RosterIDs() []NodeID {
	return []NodeID{NodeOLI2, NodeTIRS2, NodeSTA, NodeSTB, NodeEPS, NodeOBC, NodeXBand, NodeSBand}
}
