package model

// NodeID is the short symbolic code of a redundant hardware unit (e.g. "ST_A")
type NodeID string

// NodeType classifies the hardware role of a node
type NodeType string

const (
	NodeTypeCompute  NodeType = "compute"
	NodeTypeSensor   NodeType = "sensor"
	NodeTypeActuator NodeType = "actuator"
)

// Capability is a mission function a node can contribute to
type Capability string

const (
	CapabilityPayload    Capability = "payload"
	CapabilityNavigation Capability = "navigation"
	CapabilityPower      Capability = "power"
	CapabilityComm       Capability = "comm"
	CapabilityUnknown    Capability = "UNKNOWN"
)

// Capabilities lists the closed capability set in weight-table order
var Capabilities = []Capability{
	CapabilityPayload,
	CapabilityNavigation,
	CapabilityPower,
	CapabilityComm,
}

const (
	// MinHealth and MaxHealth bound every node health value
	MinHealth = 0.0
	MaxHealth = 100.0

	// BlindThreshold is the health at or below which a node exposes no capabilities
	BlindThreshold = 15.0
)

// Node is one redundant hardware unit owned by the network
type Node struct {
	ID           NodeID
	DisplayName  string
	Type         NodeType
	capabilities []Capability
	health       float64
	IsMaster     bool
}

// NewNode creates a node at full health
func NewNode(id NodeID, displayName string, nodeType NodeType, caps ...Capability) *Node {
	c := make([]Capability, len(caps))
	copy(c, caps)
	return &Node{
		ID:           id,
		DisplayName:  displayName,
		Type:         nodeType,
		capabilities: c,
		health:       MaxHealth,
	}
}

// Health returns the current health in [0,100]
func (n *Node) Health() float64 {
	return n.health
}

// SetHealth stores the health clamped to [0,100]
func (n *Node) SetHealth(h float64) {
	n.health = ClampHealth(h)
}

// IsActive reports whether the node has any health left
func (n *Node) IsActive() bool {
	return n.health > MinHealth
}

// Capabilities returns the exposed capability set. A node at or below
// BlindThreshold is functionally blind and exposes nothing.
func (n *Node) Capabilities() []Capability {
	if n.health <= BlindThreshold {
		return nil
	}
	out := make([]Capability, len(n.capabilities))
	copy(out, n.capabilities)
	return out
}

// DeclaredCapabilities returns the capability tags regardless of health
func (n *Node) DeclaredCapabilities() []Capability {
	out := make([]Capability, len(n.capabilities))
	copy(out, n.capabilities)
	return out
}

// HasCapability reports whether the node currently exposes c
func (n *Node) HasCapability(c Capability) bool {
	if n.health <= BlindThreshold {
		return false
	}
	for _, have := range n.capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Status derives the canonical status from the node health
func (n *Node) Status() NodeStatus {
	return StatusFromHealth(n.health)
}

// Snapshot returns an immutable copy of the node state
func (n *Node) Snapshot() NodeSnapshot {
	return NodeSnapshot{
		ID:           n.ID,
		DisplayName:  n.DisplayName,
		Type:         n.Type,
		Capabilities: n.Capabilities(),
		Declared:     n.DeclaredCapabilities(),
		Health:       n.health,
		Status:       n.Status(),
		IsMaster:     n.IsMaster,
	}
}

// NodeSnapshot is a read-only view of a node passed to pure components
type NodeSnapshot struct {
	ID           NodeID       `json:"id"`
	DisplayName  string       `json:"name"`
	Type         NodeType     `json:"type"`
	Capabilities []Capability `json:"capabilities"`
	Declared     []Capability `json:"-"`
	Health       float64      `json:"health"`
	Status       NodeStatus   `json:"status"`
	IsMaster     bool         `json:"is_master"`
}

// Active reports whether the snapshot has health above zero
func (s NodeSnapshot) Active() bool {
	return s.Health > MinHealth
}

// Has reports whether the snapshot exposes capability c
func (s NodeSnapshot) Has(c Capability) bool {
	for _, have := range s.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// ClampHealth bounds h to [0,100]; NaN maps to 0
func ClampHealth(h float64) float64 {
	if h != h || h < MinHealth {
		return MinHealth
	}
	if h > MaxHealth {
		return MaxHealth
	}
	return h
}

// ActiveSnapshots filters snapshots with health above zero
func ActiveSnapshots(nodes []NodeSnapshot) []NodeSnapshot {
	active := make([]NodeSnapshot, 0, len(nodes))
	for _, n := range nodes {
		if n.Active() {
			active = append(active, n)
		}
	}
	return active
}

// HealthMap returns node health keyed by id
func HealthMap(nodes []NodeSnapshot) map[NodeID]float64 {
	m := make(map[NodeID]float64, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n.Health
	}
	return m
}
