package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	"github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/metrics"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
	"github.com/LemonScripter/metaspace-fdir-public/internal/store"
	"github.com/LemonScripter/metaspace-fdir-public/internal/telemetry"
	"github.com/LemonScripter/metaspace-fdir-public/internal/validation"
)

const (
	// DefaultRegenRate is the health gained per regeneration cycle before the
	// safety-margin bonus
	DefaultRegenRate = 8.5

	// DefaultEventLimit bounds the retained event log
	DefaultEventLimit = 100

	// ModuleHistoryLimit is the number of module health means kept per capability
	ModuleHistoryLimit = 10

	// RegenFeasibilityFloor is the decoded feasibility regeneration must exceed
	RegenFeasibilityFloor = 20.0
)

// masterPriority is the capability order used by master election
var masterPriority = []model.Capability{
	model.CapabilityPayload,
	model.CapabilityNavigation,
	model.CapabilityComm,
	model.CapabilityPower,
}

// NetworkConfig holds self-healing controller settings
type NetworkConfig struct {
	TwinID       string
	RegenRate    float64
	EventLimit   int
	HistoryLimit int
}

// MissionUpdate is what a twin announces to its peers after a cycle
type MissionUpdate struct {
	TwinID       string             `json:"twin_id"`
	MissionDay   uint16             `json:"mission_day"`
	Level3       string             `json:"level3"`
	NetworkState model.NetworkState `json:"network_state"`
	Timestamp    int64              `json:"timestamp"`
}

// MissionPublisher receives the mission word after every cycle
type MissionPublisher interface {
	Publish(ctx context.Context, update MissionUpdate) error
}

// CycleResult is returned by every chaos injection and regeneration
type CycleResult struct {
	Operation    model.Operation         `json:"operation"`
	MissionDay   uint16                  `json:"mission_day"`
	Feasibility  float64                 `json:"feasibility"`
	Action       model.Action            `json:"action"`
	SafetyMargin uint8                   `json:"safety_margin"`
	ActiveNodes  int                     `json:"active_nodes"`
	Regenerated  bool                    `json:"regenerated"`
	Skipped      bool                    `json:"skipped"`
	NetworkState model.NetworkState      `json:"network_state"`
	Master       model.NodeID            `json:"master,omitempty"`
	Nodes        []model.NodeSnapshot    `json:"nodes"`
	Sequence     *biocode.Sequence       `json:"biocode,omitempty"`
	Validation   *model.ValidationRecord `json:"validation,omitempty"`
	Events       []string                `json:"events"`
}

// NetworkView is the read-only state exposed to API collaborators
type NetworkView struct {
	Nodes        []model.NodeSnapshot `json:"nodes"`
	Feasibility  float64              `json:"feasibility"`
	Action       model.Action         `json:"action"`
	SafetyMargin uint8                `json:"safety_margin"`
	MissionDay   uint16               `json:"mission_day"`
	Master       model.NodeID         `json:"master,omitempty"`
	RegenRate    float64              `json:"regen_rate"`
	NetworkState model.NetworkState   `json:"network_state"`
	Events       []string             `json:"events"`
}

// NetworkService is the self-healing controller for one node network. Every
// operation runs to completion under a single per-instance lock.
type NetworkService struct {
	mu sync.Mutex

	cfg    NetworkConfig
	logger *zap.Logger
	now    func() time.Time

	nodes         []*model.Node
	day           uint16
	regenRate     float64
	unrecoverable bool
	moduleHistory biocode.ModuleHistory
	events        *eventRing
	lastSequence  *biocode.Sequence
	records       []*model.ValidationRecord

	validator *validation.Engine
	audit     *AuditLog

	bioStore   store.BioCodeStore
	auditStore store.AuditStore
	source     telemetry.Source
	metrics    *metrics.Metrics
	publisher  MissionPublisher
}

// NewNetworkService creates a controller at the reset state. A zero
// RegenRate selects DefaultRegenRate; use SetRegenRate to run with zero.
func NewNetworkService(cfg NetworkConfig, logger *zap.Logger) (*NetworkService, error) {
	if cfg.EventLimit <= 0 {
		cfg.EventLimit = DefaultEventLimit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = validation.DefaultHistoryLimit
	}

	audit, err := NewAuditLog()
	if err != nil {
		return nil, err
	}

	n := &NetworkService{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		events:    newEventRing(cfg.EventLimit),
		validator: validation.NewEngine(logger, cfg.HistoryLimit),
		audit:     audit,
	}
	n.regenRate = DefaultRegenRate
	if cfg.RegenRate != 0 {
		n.regenRate = n.sanitizeRate(cfg.RegenRate)
	}
	n.resetLocked()
	return n, nil
}

// SetBioCodeStore attaches the bio-code persistence collaborator
func (n *NetworkService) SetBioCodeStore(s store.BioCodeStore) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bioStore = s
}

// SetAuditStore attaches the audit archive
func (n *NetworkService) SetAuditStore(s store.AuditStore) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.auditStore = s
}

// SetTelemetrySource attaches the physical model
func (n *NetworkService) SetTelemetrySource(src telemetry.Source) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.source = src
}

// SetMetrics attaches Prometheus metrics
func (n *NetworkService) SetMetrics(m *metrics.Metrics) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metrics = m
	n.publishStateLocked(n.snapshotsLocked())
}

// SetPublisher attaches the peer publisher
func (n *NetworkService) SetPublisher(p MissionPublisher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.publisher = p
}

// Reset restores the fixed roster with the compute node as master and clears
// every log, history and the unrecoverable flag. The regeneration rate is kept.
func (n *NetworkService) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetLocked()
	n.logger.Info("Network reset",
		zap.String("twin_id", n.cfg.TwinID),
		zap.String("master", string(model.InitialMaster)))
}

func (n *NetworkService) resetLocked() {
	n.nodes = model.DefaultRoster()
	n.day = 0
	n.unrecoverable = false
	n.moduleHistory = make(biocode.ModuleHistory)
	n.events.reset()
	n.lastSequence = nil
	n.records = nil
	n.validator.Reset()
	n.audit.Reset()
	n.publishStateLocked(n.snapshotsLocked())
}

// SetRegenRate updates the regeneration rate. A non-finite or negative rate
// is a configuration error and falls back to DefaultRegenRate. Returns the
// rate in effect.
func (n *NetworkService) SetRegenRate(rate float64) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.regenRate = n.sanitizeRate(rate)
	return n.regenRate
}

func (n *NetworkService) sanitizeRate(rate float64) float64 {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		err := errors.Configuration(fmt.Sprintf("invalid regeneration rate %v", rate), nil)
		n.logger.Warn("Falling back to default regeneration rate",
			zap.Float64("default", DefaultRegenRate),
			zap.Error(err))
		return DefaultRegenRate
	}
	return rate
}

// RegenRate returns the rate in effect
func (n *NetworkService) RegenRate() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.regenRate
}

// InjectChaos kills the listed nodes, re-elects the master when needed and
// evaluates the surviving network. Unknown ids are ignored.
func (n *NetworkService) InjectChaos(ctx context.Context, killed []model.NodeID) (*CycleResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := n.now()
	var events []string

	kill := make(map[model.NodeID]bool, len(killed))
	for _, id := range killed {
		kill[id] = true
	}
	for id := range kill {
		if n.findLocked(id) == nil {
			n.logger.Debug("Ignoring unknown node in chaos set", zap.String("node_id", string(id)))
		}
	}
	for _, node := range n.nodes {
		if !kill[node.ID] {
			continue
		}
		node.SetHealth(model.MinHealth)
		node.IsMaster = false
		events = append(events, fmt.Sprintf("IMPACT: %s failure.", node.DisplayName))
		n.logger.Info("Node failure injected",
			zap.String("twin_id", n.cfg.TwinID),
			zap.String("node_id", string(node.ID)))
	}

	if ev, ok := n.ensureMasterLocked(); ok {
		events = append(events, ev)
	}

	nodes := n.snapshotsLocked()
	seq := n.generateLocked(nodes)
	n.persistLocked(ctx, seq)
	events = append(events, bioCodeEvent(seq))

	rec := n.validator.Validate(validation.Input{
		Operation:   model.OperationChaosInjection,
		Nodes:       nodes,
		Sequence:    seq,
		RegenActive: false,
		Feasibility: seq.Level3.Feasibility,
	})

	res := &CycleResult{
		Operation:    model.OperationChaosInjection,
		MissionDay:   n.day,
		Feasibility:  seq.Level3.Feasibility,
		Action:       seq.Level3.Action,
		SafetyMargin: seq.Level3.SafetyMargin,
		ActiveNodes:  len(model.ActiveSnapshots(nodes)),
		Nodes:        nodes,
		Sequence:     seq,
		Validation:   rec,
	}
	if err := n.finishLocked(ctx, res, events, start); err != nil {
		return nil, err
	}
	return res, nil
}

// ProcessRegeneration runs one encode, decode, heal and validate cycle. Once
// the network is UNRECOVERABLE every call is a no-op until Reset.
func (n *NetworkService) ProcessRegeneration(ctx context.Context) (*CycleResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.unrecoverable {
		nodes := n.snapshotsLocked()
		last := n.lastMissionLocked()
		return &CycleResult{
			Operation:    model.OperationRegeneration,
			MissionDay:   n.day,
			Feasibility:  last.Feasibility,
			Action:       last.Action,
			SafetyMargin: last.SafetyMargin,
			ActiveNodes:  len(model.ActiveSnapshots(nodes)),
			Skipped:      true,
			NetworkState: model.NetworkStateUnrecoverable,
			Master:       masterOf(nodes),
			Nodes:        nodes,
			Events:       []string{"UNRECOVERABLE: regeneration skipped, reset required."},
		}, nil
	}

	start := n.now()
	var events []string

	n.pullTelemetryLocked(ctx)
	if ev, ok := n.ensureMasterLocked(); ok {
		events = append(events, ev)
	}

	nodes := n.snapshotsLocked()
	seq := n.generateLocked(nodes)
	n.persistLocked(ctx, seq)
	events = append(events, bioCodeEvent(seq))

	decoded := seq.Decoded()
	powerAvailable := hasActivePower(nodes)
	shouldRegenerate := powerAvailable &&
		!decoded.Action.BlocksRegeneration() &&
		decoded.Feasibility > RegenFeasibilityFloor

	pre := model.HealthMap(nodes)
	step := n.regenRate * (1 + float64(decoded.SafetyMargin)/100)
	if shouldRegenerate {
		events = append(events, n.regenerateLocked(step, decoded.SafetyMargin)...)
		if ev, ok := n.ensureMasterLocked(); ok {
			events = append(events, ev)
		}
	} else if !powerAvailable {
		n.unrecoverable = true
		events = append(events, "UNRECOVERABLE: no active power source, regeneration halted.")
		n.logger.Info("Network unrecoverable",
			zap.String("twin_id", n.cfg.TwinID),
			zap.Uint16("mission_day", n.day))
	} else {
		events = append(events, fmt.Sprintf("REGEN: suppressed by %s (feasibility %.0f%%).",
			decoded.Action, decoded.Feasibility))
	}

	post := n.snapshotsLocked()
	feasibility, _ := biocode.WeightedFeasibility(post, model.ActiveSnapshots(post))
	action := biocode.DetermineAction(feasibility, biocode.ModuleHealths(model.ActiveSnapshots(post)))
	margin := biocode.SafetyMargin(feasibility)
	postDecoded := biocode.DecodeMission(biocode.EncodeMission(n.day, feasibility, action, margin))

	rec := n.validator.Validate(validation.Input{
		Operation:   model.OperationRegeneration,
		Nodes:       post,
		PreSnapshot: pre,
		Sequence:    seq,
		RegenActive: shouldRegenerate,
		RegenStep:   step,
		Feasibility: feasibility,
	})

	res := &CycleResult{
		Operation:    model.OperationRegeneration,
		MissionDay:   n.day,
		Feasibility:  feasibility,
		Action:       postDecoded.Action,
		SafetyMargin: postDecoded.SafetyMargin,
		ActiveNodes:  len(model.ActiveSnapshots(post)),
		Regenerated:  shouldRegenerate,
		Nodes:        post,
		Sequence:     seq,
		Validation:   rec,
	}
	if n.day < math.MaxUint16 {
		n.day++
	}
	if err := n.finishLocked(ctx, res, events, start); err != nil {
		return nil, err
	}
	return res, nil
}

func (n *NetworkService) regenerateLocked(step float64, margin uint8) []string {
	var (
		healed   int
		restored []string
	)
	for _, node := range n.nodes {
		before := node.Health()
		if before >= model.MaxHealth {
			continue
		}
		node.SetHealth(math.Min(model.MaxHealth, before+step))
		healed++
		n.logger.Debug("Node regenerated",
			zap.String("node_id", string(node.ID)),
			zap.Float64("before", before),
			zap.Float64("after", node.Health()))
		if before <= model.MinHealth && node.IsActive() {
			restored = append(restored, fmt.Sprintf("REGEN: %s re-initialized (biocode-driven).", node.DisplayName))
		}
		if node.Health() >= model.MaxHealth {
			restored = append(restored, fmt.Sprintf("SUCCESS: %s restored (biocode-driven).", node.DisplayName))
		}
	}
	events := []string{fmt.Sprintf("REGEN: +%.2f health to %d nodes (rate %.2f, margin %d).",
		step, healed, n.regenRate, margin)}
	return append(events, restored...)
}

func (n *NetworkService) pullTelemetryLocked(ctx context.Context) {
	if n.source == nil {
		return
	}
	readings, err := n.source.Pull(ctx)
	if err != nil {
		if n.metrics != nil {
			n.metrics.TelemetryFailuresTotal.Inc()
		}
		n.logger.Warn("Telemetry pull failed, keeping current health",
			zap.String("twin_id", n.cfg.TwinID),
			zap.Error(errors.TelemetryFailed("physical model pull failed", err)))
		return
	}
	for id, h := range readings {
		node := n.findLocked(id)
		if node == nil {
			n.logger.Debug("Ignoring telemetry for unknown node", zap.String("node_id", string(id)))
			continue
		}
		node.SetHealth(h)
		if !node.IsActive() {
			node.IsMaster = false
		}
	}
}

// ensureMasterLocked clears master flags on dead nodes and elects a new master
// when active nodes exist but none of them holds the flag.
func (n *NetworkService) ensureMasterLocked() (string, bool) {
	masters := 0
	for _, node := range n.nodes {
		if node.IsMaster && !node.IsActive() {
			node.IsMaster = false
		}
		if node.IsMaster {
			masters++
		}
	}
	if masters == 1 || !n.anyActiveLocked() {
		return "", false
	}

	elected := electMaster(n.nodes)
	if elected == nil {
		return "", false
	}
	n.logger.Info("Master migrated",
		zap.String("twin_id", n.cfg.TwinID),
		zap.String("master", string(elected.ID)))
	return "MASTER MIGRATION: Failover active.", true
}

// electMaster assigns the flag to the first active node holding the first
// capability in priority order that has any active holder. When no active node
// exposes a capability the first active node wins.
func electMaster(nodes []*model.Node) *model.Node {
	for _, node := range nodes {
		node.IsMaster = false
	}
	for _, c := range masterPriority {
		for _, node := range nodes {
			if node.IsActive() && node.HasCapability(c) {
				node.IsMaster = true
				return node
			}
		}
	}
	for _, node := range nodes {
		if node.IsActive() {
			node.IsMaster = true
			return node
		}
	}
	return nil
}

func (n *NetworkService) generateLocked(nodes []model.NodeSnapshot) *biocode.Sequence {
	active := model.ActiveSnapshots(nodes)
	for c, h := range biocode.ModuleHealths(active) {
		hist := append(n.moduleHistory[c], h)
		if len(hist) > ModuleHistoryLimit {
			hist = hist[len(hist)-ModuleHistoryLimit:]
		}
		n.moduleHistory[c] = hist
	}
	seq := biocode.GenerateCompleteSequence(nodes, active, n.day, n.moduleHistory)
	n.lastSequence = seq
	return seq
}

func (n *NetworkService) persistLocked(ctx context.Context, seq *biocode.Sequence) {
	if n.bioStore == nil {
		return
	}
	if err := n.bioStore.Save(ctx, seq); err != nil {
		if n.metrics != nil {
			n.metrics.PersistFailuresTotal.Inc()
		}
		n.logger.Warn("Failed to persist bio-code sequence",
			zap.String("twin_id", n.cfg.TwinID),
			zap.Uint16("mission_day", seq.MissionDay),
			zap.Error(err))
	}
}

// finishLocked records the verdict, extends the audit chain and notifies
// metrics and peers.
func (n *NetworkService) finishLocked(ctx context.Context, res *CycleResult, events []string, start time.Time) error {
	res.NetworkState = n.stateLocked()
	res.Master = masterOf(res.Nodes)
	res.Events = events
	n.events.add(events...)
	n.records = append(n.records, res.Validation)

	entry, err := n.audit.Append(model.AuditEntry{
		Operation:        res.Operation,
		Timestamp:        n.now().Unix(),
		MissionDay:       res.MissionDay,
		Feasibility:      res.Feasibility,
		Action:           res.Action,
		Validated:        res.Validation.Passed(),
		ValidationStatus: res.Validation.OverallStatus,
		NodeStates:       model.HealthMap(res.Nodes),
		Level3Hex:        res.Sequence.Level3.Hex,
	})
	if err != nil {
		return err
	}
	if n.auditStore != nil {
		if err := n.auditStore.Append(ctx, entry); err != nil {
			if n.metrics != nil {
				n.metrics.PersistFailuresTotal.Inc()
			}
			n.logger.Warn("Failed to archive audit entry",
				zap.Uint64("seq", entry.Seq),
				zap.Error(err))
		}
	}

	if !res.Validation.Passed() {
		n.logger.Error("Validation failed",
			zap.String("twin_id", n.cfg.TwinID),
			zap.String("operation", string(res.Operation)),
			zap.Strings("errors", res.Validation.Errors))
	}

	if n.metrics != nil {
		n.metrics.RecordCycle(res.Operation, n.now().Sub(start), res.Validation.Passed())
	}
	n.publishStateLocked(res.Nodes)

	if n.publisher != nil {
		update := MissionUpdate{
			TwinID:       n.cfg.TwinID,
			MissionDay:   res.Sequence.MissionDay,
			Level3:       res.Sequence.Level3.Hex,
			NetworkState: res.NetworkState,
			Timestamp:    entry.Timestamp,
		}
		if err := n.publisher.Publish(ctx, update); err != nil {
			n.logger.Warn("Failed to publish mission update", zap.Error(err))
		}
	}
	return nil
}

func (n *NetworkService) publishStateLocked(nodes []model.NodeSnapshot) {
	if n.metrics == nil {
		return
	}
	f, _ := biocode.WeightedFeasibility(nodes, model.ActiveSnapshots(nodes))
	n.metrics.UpdateState(nodes, f, n.day, n.stateLocked())
}

// State returns the current network view
func (n *NetworkService) State() NetworkView {
	n.mu.Lock()
	defer n.mu.Unlock()

	nodes := n.snapshotsLocked()
	active := model.ActiveSnapshots(nodes)
	f, _ := biocode.WeightedFeasibility(nodes, active)
	return NetworkView{
		Nodes:        nodes,
		Feasibility:  f,
		Action:       biocode.DetermineAction(f, biocode.ModuleHealths(active)),
		SafetyMargin: biocode.SafetyMargin(f),
		MissionDay:   n.day,
		Master:       masterOf(nodes),
		RegenRate:    n.regenRate,
		NetworkState: n.stateLocked(),
		Events:       n.events.list(),
	}
}

// NetworkState returns NOMINAL, DEGRADED or UNRECOVERABLE
func (n *NetworkService) NetworkState() model.NetworkState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stateLocked()
}

func (n *NetworkService) stateLocked() model.NetworkState {
	if n.unrecoverable {
		return model.NetworkStateUnrecoverable
	}
	for _, node := range n.nodes {
		if node.Health() < model.MaxHealth {
			return model.NetworkStateDegraded
		}
	}
	return model.NetworkStateNominal
}

// Master returns the id of the master node, empty when none is active
func (n *NetworkService) Master() model.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, node := range n.nodes {
		if node.IsMaster {
			return node.ID
		}
	}
	return ""
}

// VerifyAudit recomputes the operations log hash chain
func (n *NetworkService) VerifyAudit() error {
	return n.audit.Verify()
}

// AuditEntries returns the operations log, oldest first
func (n *NetworkService) AuditEntries() []model.AuditEntry {
	return n.audit.Entries()
}

// LatestValidationReport aggregates every verdict so far; nil before the
// first operation.
func (n *NetworkService) LatestValidationReport() *ValidationReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.records) == 0 {
		return nil
	}
	return buildReport(n.records, n.snapshotsLocked(), n.lastSequence, n.validator.History, n.audit.Head(), n.now())
}

func (n *NetworkService) snapshotsLocked() []model.NodeSnapshot {
	out := make([]model.NodeSnapshot, 0, len(n.nodes))
	for _, node := range n.nodes {
		out = append(out, node.Snapshot())
	}
	return out
}

func (n *NetworkService) findLocked(id model.NodeID) *model.Node {
	for _, node := range n.nodes {
		if node.ID == id {
			return node
		}
	}
	return nil
}

func (n *NetworkService) anyActiveLocked() bool {
	for _, node := range n.nodes {
		if node.IsActive() {
			return true
		}
	}
	return false
}

// lastMissionLocked returns the most recent Level-3 entry, UNKNOWN before
// the first sequence
func (n *NetworkService) lastMissionLocked() biocode.MissionEntry {
	if n.lastSequence == nil {
		return biocode.MissionEntry{Action: model.ActionUnknown}
	}
	return n.lastSequence.Level3
}

func hasActivePower(nodes []model.NodeSnapshot) bool {
	for _, s := range nodes {
		if s.Active() && s.Has(model.CapabilityPower) {
			return true
		}
	}
	return false
}

func masterOf(nodes []model.NodeSnapshot) model.NodeID {
	for _, s := range nodes {
		if s.IsMaster {
			return s.ID
		}
	}
	return ""
}

func bioCodeEvent(seq *biocode.Sequence) string {
	d := seq.Decoded()
	return fmt.Sprintf("BIO-CODE: %s -> feasibility %.0f%%, %s, margin %d.",
		seq.Level3.Hex, d.Feasibility, d.Action, d.SafetyMargin)
}
