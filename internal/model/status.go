package model

// NodeStatus defines the operational status of a node
type NodeStatus string

const (
	NodeStatusOperational NodeStatus = "OPERATIONAL"
	NodeStatusHealing     NodeStatus = "HEALING"
	NodeStatusDegraded    NodeStatus = "DEGRADED"
	NodeStatusWarning     NodeStatus = "WARNING"
	NodeStatusDead        NodeStatus = "DEAD"
	NodeStatusCritical    NodeStatus = "CRITICAL"
	NodeStatusUnknown     NodeStatus = "UNKNOWN"
)

// NodeStatuses lists every encodable status
var NodeStatuses = []NodeStatus{
	NodeStatusOperational,
	NodeStatusHealing,
	NodeStatusDegraded,
	NodeStatusWarning,
	NodeStatusDead,
	NodeStatusCritical,
}

// StatusFromHealth is the single canonical health to status mapping
func StatusFromHealth(h float64) NodeStatus {
	switch {
	case h > 75:
		return NodeStatusOperational
	case h > 0:
		return NodeStatusHealing
	default:
		return NodeStatusDead
	}
}

// Trend describes the direction of a module health series
type Trend string

const (
	TrendImproving Trend = "IMPROVING"
	TrendStable    Trend = "STABLE"
	TrendDegrading Trend = "DEGRADING"
	TrendCritical  Trend = "CRITICAL"
	TrendUnknown   Trend = "UNKNOWN"
)

// Action is the mission continuation decision
type Action string

const (
	ActionUnknown                Action = "UNKNOWN"
	ActionContinueNominal        Action = "CONTINUE_NOMINAL"
	ActionContinueWithMonitoring Action = "CONTINUE_WITH_MONITORING"
	ActionReduceImagingRate      Action = "REDUCE_IMAGING_RATE"
	ActionSwitchToFallback       Action = "SWITCH_TO_FALLBACK"
	ActionSafeMode               Action = "SAFE_MODE"
	ActionEmergencyHalt          Action = "EMERGENCY_HALT"
)

// Actions lists the encodable actions, safest last
var Actions = []Action{
	ActionContinueNominal,
	ActionContinueWithMonitoring,
	ActionReduceImagingRate,
	ActionSwitchToFallback,
	ActionSafeMode,
	ActionEmergencyHalt,
}

// BlocksRegeneration reports whether the action forbids self-healing
func (a Action) BlocksRegeneration() bool {
	return a == ActionEmergencyHalt || a == ActionSafeMode
}

// NetworkState is the aggregate condition of the node network
type NetworkState string

const (
	NetworkStateNominal       NetworkState = "NOMINAL"
	NetworkStateDegraded      NetworkState = "DEGRADED"
	NetworkStateUnrecoverable NetworkState = "UNRECOVERABLE"
)

// Gauge maps the state to a numeric level for metrics
func (s NetworkState) Gauge() float64 {
	switch s {
	case NetworkStateNominal:
		return 0
	case NetworkStateDegraded:
		return 1
	default:
		return 2
	}
}

// Operation names a control cycle type
type Operation string

const (
	OperationChaosInjection Operation = "chaos_injection"
	OperationRegeneration   Operation = "regeneration"
)
