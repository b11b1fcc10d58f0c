package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/metrics"
)

// GossipService replicates the latest mission word between twin replicas
type GossipService struct {
	config     *GossipConfig
	memberlist *memberlist.Memberlist
	broadcasts *memberlist.TransmitLimitedQueue
	twinID     string
	logger     *zap.Logger
	metrics    *metrics.Metrics
	members    atomic.Int64

	mu    sync.RWMutex
	local MissionUpdate
	peers map[string]MissionUpdate
}

// GossipConfig holds gossip protocol configuration
type GossipConfig struct {
	Enabled        bool
	BindAddr       string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// NewGossipService starts memberlist and joins the seed nodes. m may be nil.
func NewGossipService(cfg *GossipConfig, twinID string, m *metrics.Metrics, logger *zap.Logger) (*GossipService, error) {
	gs := newGossipState(cfg, twinID, m, logger)

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = twinID
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
		mlConfig.AdvertiseAddr = cfg.BindAddr
	}
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = gs
	mlConfig.Events = &GossipEventDelegate{service: gs}
	mlConfig.LogOutput = zap.NewStdLog(logger.Named("memberlist")).Writer()

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	gs.memberlist = ml
	gs.broadcasts = &memberlist.TransmitLimitedQueue{
		NumNodes:       ml.NumMembers,
		RetransmitMult: mlConfig.RetransmitMult,
	}

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return gs, nil
}

func newGossipState(cfg *GossipConfig, twinID string, m *metrics.Metrics, logger *zap.Logger) *GossipService {
	return &GossipService{
		config:  cfg,
		twinID:  twinID,
		logger:  logger,
		metrics: m,
		local:  MissionUpdate{TwinID: twinID, Timestamp: time.Now().Unix()},
		peers:  make(map[string]MissionUpdate),
	}
}

// Publish implements MissionPublisher
func (s *GossipService) Publish(ctx context.Context, update MissionUpdate) error {
	update.TwinID = s.twinID
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal mission update: %w", err)
	}

	s.mu.Lock()
	s.local = update
	s.mu.Unlock()

	if s.broadcasts != nil {
		s.broadcasts.QueueBroadcast(&missionBroadcast{twinID: s.twinID, msg: data})
	}
	return nil
}

// Local returns the last published update
func (s *GossipService) Local() MissionUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

// Peers returns the newest update seen from every other replica, by twin id
func (s *GossipService) Peers() []MissionUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MissionUpdate, 0, len(s.peers))
	for _, u := range s.peers {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TwinID < out[j].TwinID })
	return out
}

// Members returns the number of live replicas including this one
func (s *GossipService) Members() int {
	if s.memberlist == nil {
		return 1
	}
	return s.memberlist.NumMembers()
}

func (s *GossipService) merge(u MissionUpdate) {
	if u.TwinID == "" || u.TwinID == s.twinID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.peers[u.TwinID]
	if ok && (u.Timestamp < cur.Timestamp || (u.Timestamp == cur.Timestamp && u.MissionDay < cur.MissionDay)) {
		return
	}
	s.peers[u.TwinID] = u
}

// NodeMeta implements memberlist.Delegate
func (s *GossipService) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(s.Local())
	if len(data) > limit {
		return nil
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (s *GossipService) NotifyMsg(data []byte) {
	var u MissionUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		s.logger.Warn("Failed to unmarshal gossip message", zap.Error(err))
		return
	}
	s.merge(u)
	s.logger.Debug("Received mission update",
		zap.String("twin_id", u.TwinID),
		zap.Uint16("mission_day", u.MissionDay),
		zap.String("network_state", string(u.NetworkState)))
}

// GetBroadcasts implements memberlist.Delegate
func (s *GossipService) GetBroadcasts(overhead, limit int) [][]byte {
	if s.broadcasts == nil {
		return nil
	}
	return s.broadcasts.GetBroadcasts(overhead, limit)
}

// LocalState implements memberlist.Delegate
func (s *GossipService) LocalState(join bool) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]MissionUpdate, 0, len(s.peers)+1)
	all = append(all, s.local)
	for _, u := range s.peers {
		all = append(all, u)
	}
	data, _ := json.Marshal(all)
	return data
}

// MergeRemoteState implements memberlist.Delegate
func (s *GossipService) MergeRemoteState(buf []byte, join bool) {
	var all []MissionUpdate
	if err := json.Unmarshal(buf, &all); err != nil {
		s.logger.Warn("Failed to unmarshal remote state", zap.Error(err))
		return
	}
	for _, u := range all {
		s.merge(u)
	}
}

// Shutdown leaves the cluster and stops memberlist
func (s *GossipService) Shutdown() error {
	if s.memberlist == nil {
		return nil
	}
	if err := s.memberlist.Leave(time.Second); err != nil {
		s.logger.Warn("Failed to leave gossip cluster", zap.Error(err))
	}
	return s.memberlist.Shutdown()
}

// updateMemberGauge applies a join (+1) or leave (-1). The local node's own
// join arrives during memberlist.Create, before s.memberlist is set.
func (s *GossipService) updateMemberGauge(delta int64) {
	n := s.members.Add(delta)
	if s.metrics != nil {
		s.metrics.GossipMembers.Set(float64(n))
	}
}

// missionBroadcast carries one twin's update; a newer one replaces it in the queue
type missionBroadcast struct {
	twinID string
	msg    []byte
}

func (b *missionBroadcast) Invalidates(other memberlist.Broadcast) bool {
	o, ok := other.(*missionBroadcast)
	return ok && o.twinID == b.twinID
}

func (b *missionBroadcast) Message() []byte {
	return b.msg
}

func (b *missionBroadcast) Finished() {}

// GossipEventDelegate handles memberlist events
type GossipEventDelegate struct {
	service *GossipService
}

// NotifyJoin is called when a replica joins
func (d *GossipEventDelegate) NotifyJoin(node *memberlist.Node) {
	d.service.logger.Info("Twin replica joined",
		zap.String("twin_id", node.Name),
		zap.String("addr", node.Addr.String()))
	d.service.updateMemberGauge(1)
}

// NotifyLeave is called when a replica leaves
func (d *GossipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.service.logger.Info("Twin replica left",
		zap.String("twin_id", node.Name))
	d.service.mu.Lock()
	delete(d.service.peers, node.Name)
	d.service.mu.Unlock()
	d.service.updateMemberGauge(-1)
}

// NotifyUpdate is called when a replica's metadata changes
func (d *GossipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	var u MissionUpdate
	if err := json.Unmarshal(node.Meta, &u); err == nil {
		d.service.merge(u)
	}
	d.service.logger.Debug("Twin replica updated",
		zap.String("twin_id", node.Name))
}
