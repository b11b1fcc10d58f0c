package service

import (
	"context"
	"encoding/hex"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	"github.com/LemonScripter/metaspace-fdir-public/internal/metrics"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
	"github.com/LemonScripter/metaspace-fdir-public/internal/store"
	"github.com/LemonScripter/metaspace-fdir-public/internal/telemetry"
)

func newTestNetwork(t *testing.T) *NetworkService {
	t.Helper()
	n, err := NewNetworkService(NetworkConfig{TwinID: "test", RegenRate: DefaultRegenRate}, zap.NewNop())
	require.NoError(t, err)
	return n
}

func countMasters(nodes []model.NodeSnapshot) int {
	c := 0
	for _, n := range nodes {
		if n.IsMaster {
			c++
		}
	}
	return c
}

func healthOf(nodes []model.NodeSnapshot, id model.NodeID) float64 {
	for _, n := range nodes {
		if n.ID == id {
			return n.Health
		}
	}
	return math.NaN()
}

func containsEvent(events []string, prefix string) bool {
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}

type mockBioCodeStore struct {
	mock.Mock
}

func (m *mockBioCodeStore) Save(ctx context.Context, seq *biocode.Sequence) error {
	args := m.Called(ctx, seq)
	return args.Error(0)
}

func (m *mockBioCodeStore) Load(ctx context.Context, day uint16) (*biocode.Sequence, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*biocode.Sequence), args.Error(1)
}

func (m *mockBioCodeStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, update MissionUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func TestNetworkService_ResetState(t *testing.T) {
	n := newTestNetwork(t)

	view := n.State()
	require.Len(t, view.Nodes, 8)
	assert.Equal(t, model.InitialMaster, view.Master)
	assert.Equal(t, 1, countMasters(view.Nodes))
	assert.Equal(t, model.NetworkStateNominal, view.NetworkState)
	assert.Equal(t, 100.0, view.Feasibility)
	assert.Equal(t, model.ActionContinueNominal, view.Action)
	assert.Equal(t, uint8(60), view.SafetyMargin)
	assert.Equal(t, DefaultRegenRate, view.RegenRate)
	assert.Empty(t, view.Events)
	assert.Nil(t, n.LatestValidationReport())
}

func TestNetworkService_FullKillHalts(t *testing.T) {
	n := newTestNetwork(t)

	res, err := n.InjectChaos(context.Background(), model.RosterIDs())
	require.NoError(t, err)

	assert.Equal(t, 0, res.ActiveNodes)
	assert.Equal(t, 0.0, res.Feasibility)
	assert.Equal(t, model.ActionEmergencyHalt, res.Action)
	assert.Empty(t, res.Master)
	assert.Equal(t, 0, countMasters(res.Nodes))
	assert.True(t, res.Validation.Passed(), res.Validation.Errors)
	assert.NotContains(t, strings.Join(res.Events, "\n"), "MASTER MIGRATION")
}

func TestNetworkService_SingleSensorLoss(t *testing.T) {
	n := newTestNetwork(t)

	res, err := n.InjectChaos(context.Background(), []model.NodeID{model.NodeSTA})
	require.NoError(t, err)

	assert.Equal(t, model.NodeOBC, res.Master)
	assert.Equal(t, 7, res.ActiveNodes)
	assert.Greater(t, res.Feasibility, 0.0)
	assert.LessOrEqual(t, res.Feasibility, 100.0)
	assert.False(t, containsEvent(res.Events, "MASTER MIGRATION"))
	assert.Contains(t, res.Events, "IMPACT: Star Tracker A failure.")
	assert.Equal(t, model.NetworkStateDegraded, res.NetworkState)
	assert.True(t, res.Validation.Passed(), res.Validation.Errors)
}

func TestNetworkService_MasterLossMigrates(t *testing.T) {
	n := newTestNetwork(t)

	res, err := n.InjectChaos(context.Background(), []model.NodeID{model.NodeOBC})
	require.NoError(t, err)

	assert.Contains(t, res.Events, "MASTER MIGRATION: Failover active.")
	assert.Equal(t, model.NodeOLI2, res.Master)
	assert.Equal(t, 1, countMasters(res.Nodes))

	res, err = n.InjectChaos(context.Background(), []model.NodeID{model.NodeOLI2, model.NodeTIRS2})
	require.NoError(t, err)
	assert.Equal(t, model.NodeSTA, res.Master, "navigation is next in priority once payload is gone")
}

func TestNetworkService_UnknownIDsIgnored(t *testing.T) {
	n := newTestNetwork(t)

	res, err := n.InjectChaos(context.Background(), []model.NodeID{"NOPE"})
	require.NoError(t, err)
	assert.Equal(t, 8, res.ActiveNodes)
	assert.Equal(t, model.NetworkStateNominal, res.NetworkState)
}

func TestNetworkService_PowerLossIsUnrecoverable(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()

	chaos, err := n.InjectChaos(ctx, []model.NodeID{model.NodeEPS})
	require.NoError(t, err)
	assert.Equal(t, model.ActionEmergencyHalt, chaos.Action)
	before := model.HealthMap(chaos.Nodes)

	first, err := n.ProcessRegeneration(ctx)
	require.NoError(t, err)
	assert.False(t, first.Regenerated)
	assert.False(t, first.Skipped)
	assert.Equal(t, model.NetworkStateUnrecoverable, first.NetworkState)
	assert.True(t, containsEvent(first.Events, "UNRECOVERABLE:"))
	assert.True(t, first.Validation.Passed(), first.Validation.Errors)
	assert.Equal(t, before, model.HealthMap(first.Nodes))

	for i := 0; i < 5; i++ {
		res, err := n.ProcessRegeneration(ctx)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, before, model.HealthMap(res.Nodes))
	}
	assert.Equal(t, uint16(1), n.State().MissionDay)
	assert.Equal(t, model.NetworkStateUnrecoverable, n.NetworkState())

	n.Reset()
	assert.Equal(t, model.NetworkStateNominal, n.NetworkState())
	assert.Equal(t, uint16(0), n.State().MissionDay)
}

func TestNetworkService_RegenerationStep(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeSTA})
	require.NoError(t, err)

	res, err := n.ProcessRegeneration(ctx)
	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, uint16(0), res.MissionDay)
	assert.Equal(t, uint16(0), res.Sequence.MissionDay)
	assert.InDelta(t, DefaultRegenRate*1.6, healthOf(res.Nodes, model.NodeSTA), 1e-9)
	assert.True(t, containsEvent(res.Events, "REGEN:"))
	assert.True(t, containsEvent(res.Events, "BIO-CODE:"))
	assert.True(t, res.Validation.Passed(), res.Validation.Errors)
	assert.Equal(t, uint16(1), n.State().MissionDay)
}

func TestNetworkService_RecoversToNominal(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeSTA, model.NodeXBand})
	require.NoError(t, err)

	var events []string
	for i := 0; i < 20 && n.NetworkState() == model.NetworkStateDegraded; i++ {
		res, err := n.ProcessRegeneration(ctx)
		require.NoError(t, err)
		require.True(t, res.Validation.Passed(), res.Validation.Errors)
		events = append(events, res.Events...)
	}

	assert.Equal(t, model.NetworkStateNominal, n.NetworkState())
	assert.Contains(t, events, "SUCCESS: Star Tracker A restored (biocode-driven).")
	assert.Contains(t, events, "SUCCESS: X-band Transponder restored (biocode-driven).")
	assert.Equal(t, model.NodeOBC, n.State().Master)
}

func TestNetworkService_SetRegenRate(t *testing.T) {
	n := newTestNetwork(t)

	tests := []struct {
		in   float64
		want float64
	}{
		{12, 12},
		{0, 0},
		{-1, DefaultRegenRate},
		{math.NaN(), DefaultRegenRate},
		{math.Inf(1), DefaultRegenRate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.SetRegenRate(tt.in))
		assert.Equal(t, tt.want, n.RegenRate())
	}
}

func TestNetworkService_ZeroRateDoesNotHeal(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()
	n.SetRegenRate(0)

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeSTA})
	require.NoError(t, err)
	res, err := n.ProcessRegeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, healthOf(res.Nodes, model.NodeSTA))
	assert.True(t, res.Validation.Passed(), res.Validation.Errors)
}

func TestNetworkService_TelemetryOverridesHealth(t *testing.T) {
	n := newTestNetwork(t)
	src := telemetry.NewStaticSource(map[model.NodeID]float64{
		model.NodeOBC: 0,
		"GHOST":       50,
	})
	n.SetTelemetrySource(src)

	res, err := n.ProcessRegeneration(context.Background())
	require.NoError(t, err)

	assert.Contains(t, res.Events, "MASTER MIGRATION: Failover active.")
	assert.Equal(t, model.NodeOLI2, res.Master)
	assert.Equal(t, 1, countMasters(res.Nodes))
	assert.Greater(t, healthOf(res.Nodes, model.NodeOBC), 0.0)
	assert.True(t, res.Validation.Passed(), res.Validation.Errors)
}

func TestNetworkService_TelemetryFailureIsNonFatal(t *testing.T) {
	n := newTestNetwork(t)
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	n.SetMetrics(m)
	n.SetTelemetrySource(telemetry.FuncSource(func(context.Context) (map[model.NodeID]float64, error) {
		return nil, errors.New("link down")
	}))

	res, err := n.ProcessRegeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, res.ActiveNodes)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TelemetryFailuresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("regeneration")))
}

func TestNetworkService_PersistenceFailureIsNonFatal(t *testing.T) {
	n := newTestNetwork(t)
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	n.SetMetrics(m)
	bio := new(mockBioCodeStore)
	bio.On("Save", mock.Anything, mock.AnythingOfType("*biocode.Sequence")).Return(errors.New("disk full"))
	n.SetBioCodeStore(bio)

	res, err := n.InjectChaos(context.Background(), []model.NodeID{model.NodeSTB})
	require.NoError(t, err)
	assert.NotNil(t, res.Sequence)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailuresTotal))
	bio.AssertExpectations(t)
	bio.AssertNumberOfCalls(t, "Save", 1)
}

func TestNetworkService_PersistsSequences(t *testing.T) {
	n := newTestNetwork(t)
	bio := store.NewMemoryBioCodeStore()
	n.SetBioCodeStore(bio)
	ctx := context.Background()

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeSTB})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := n.ProcessRegeneration(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, bio.Len(), "days 0, 1 and 2")
	seq, err := bio.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), seq.MissionDay)
}

func TestNetworkService_AuditChain(t *testing.T) {
	n := newTestNetwork(t)
	archive := store.NewMemoryAuditStore()
	n.SetAuditStore(archive)
	ctx := context.Background()

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeXBand})
	require.NoError(t, err)
	_, err = n.ProcessRegeneration(ctx)
	require.NoError(t, err)

	entries := n.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, model.OperationChaosInjection, entries[0].Operation)
	assert.Equal(t, model.OperationRegeneration, entries[1].Operation)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.NoError(t, n.VerifyAudit())

	archived, err := archive.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries, archived)
	assert.NoError(t, n.audit.VerifyEntries(archived))
}

func TestNetworkService_LatestValidationReport(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeSTA})
	require.NoError(t, err)
	_, err = n.ProcessRegeneration(ctx)
	require.NoError(t, err)

	rep := n.LatestValidationReport()
	require.NotNil(t, rep)
	assert.Equal(t, 2, rep.TotalOperations)
	assert.Equal(t, 2, rep.PassedOps)
	assert.Equal(t, model.VerdictPassed, rep.OverallStatus)
	assert.Equal(t, CheckSummary{Passed: 2}, rep.Invariants[model.InvariantRegenMonotonicity])
	assert.Equal(t, CheckSummary{Passed: 2}, rep.Mathematics[model.ProofFeasibilityFormula])
	assert.Len(t, rep.Invariants, 6)
	assert.Len(t, rep.Mathematics, 3)
	assert.Equal(t, CheckSummary{Passed: 2}, rep.Mathematics[model.ProofRegenTrajectory])

	entries := n.AuditEntries()
	assert.Equal(t, hex.EncodeToString(entries[len(entries)-1].Hash), rep.ValidationID)
	assert.NotEmpty(t, rep.Explanation)
	assert.Equal(t, model.OperationRegeneration, rep.LatestRecord.Operation)

	sta := rep.HealthHistory[model.NodeSTA]
	require.Len(t, sta, 2)
	assert.Equal(t, model.OperationChaosInjection, sta[0].Operation)
	assert.Equal(t, 0.0, sta[1].Pre)
	assert.InDelta(t, DefaultRegenRate*1.6, sta[1].Health, 1e-9)
	assert.InDelta(t, DefaultRegenRate*1.6, sta[1].Step, 1e-9)
	assert.Len(t, rep.HealthHistory, 8)
}

func TestNetworkService_PublishesMissionWord(t *testing.T) {
	n := newTestNetwork(t)
	n.now = func() time.Time { return time.Unix(1700000000, 0) }
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(u MissionUpdate) bool {
		return u.TwinID == "test" &&
			u.MissionDay == 0 &&
			u.NetworkState == model.NetworkStateDegraded &&
			u.Timestamp == 1700000000 &&
			len(u.Level3) == 18
	})).Return(nil).Once()
	n.SetPublisher(pub)

	res, err := n.InjectChaos(context.Background(), []model.NodeID{model.NodeSBand})
	require.NoError(t, err)

	pub.AssertExpectations(t)
	published := pub.Calls[0].Arguments.Get(1).(MissionUpdate)
	assert.Equal(t, res.Sequence.Level3.Hex, published.Level3)
}

func TestNetworkService_PublishFailureIsNonFatal(t *testing.T) {
	n := newTestNetwork(t)
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("no peers")).Twice()
	n.SetPublisher(pub)
	ctx := context.Background()

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeSBand})
	require.NoError(t, err)
	_, err = n.ProcessRegeneration(ctx)
	require.NoError(t, err)

	pub.AssertExpectations(t)
	assert.NoError(t, n.VerifyAudit())
}

func TestNetworkService_SkippedCycleKeepsMissionWord(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeEPS})
	require.NoError(t, err)
	_, err = n.ProcessRegeneration(ctx)
	require.NoError(t, err)

	res, err := n.ProcessRegeneration(ctx)
	require.NoError(t, err)
	require.True(t, res.Skipped)

	last := n.lastSequence.Level3
	assert.Equal(t, last.Feasibility, res.Feasibility)
	assert.Equal(t, last.Action, res.Action)
	assert.Equal(t, biocode.SafetyMargin(res.Feasibility), res.SafetyMargin)
	assert.Greater(t, res.SafetyMargin, uint8(0))
}

func TestNetworkService_RevivalEvent(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()

	_, err := n.InjectChaos(ctx, []model.NodeID{model.NodeSTA})
	require.NoError(t, err)

	res, err := n.ProcessRegeneration(ctx)
	require.NoError(t, err)
	assert.Contains(t, res.Events, "REGEN: Star Tracker A re-initialized (biocode-driven).")
	assert.Contains(t, n.State().Events, "REGEN: Star Tracker A re-initialized (biocode-driven).")

	res, err = n.ProcessRegeneration(ctx)
	require.NoError(t, err)
	assert.NotContains(t, res.Events, "REGEN: Star Tracker A re-initialized (biocode-driven).")
}

func TestNetworkService_EventLimit(t *testing.T) {
	n, err := NewNetworkService(NetworkConfig{TwinID: "ring", EventLimit: 5}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := n.InjectChaos(context.Background(), []model.NodeID{model.NodeSTA, model.NodeSTB})
		require.NoError(t, err)
	}
	assert.Len(t, n.State().Events, 5)
}

func TestNetworkService_MasterUniquenessProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := model.RosterIDs()
	ctx := context.Background()

	for trial := 0; trial < 20; trial++ {
		n := newTestNetwork(t)
		for step := 0; step < 30; step++ {
			var res *CycleResult
			var err error
			if rng.Intn(3) == 0 {
				var kill []model.NodeID
				for _, id := range ids {
					if rng.Intn(4) == 0 {
						kill = append(kill, id)
					}
				}
				res, err = n.InjectChaos(ctx, kill)
			} else {
				res, err = n.ProcessRegeneration(ctx)
			}
			require.NoError(t, err)
			require.LessOrEqual(t, countMasters(res.Nodes), 1)
			if res.ActiveNodes > 0 {
				require.Equal(t, 1, countMasters(res.Nodes))
			}
		}
	}
}

func TestNetworkService_RegenMonotonicityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ctx := context.Background()

	for trial := 0; trial < 200; trial++ {
		n := newTestNetwork(t)
		n.SetRegenRate(rng.Float64() * 25)

		readings := make(map[model.NodeID]float64)
		for _, id := range model.RosterIDs() {
			readings[id] = rng.Float64() * 100
		}
		n.SetTelemetrySource(telemetry.NewStaticSource(readings))

		res, err := n.ProcessRegeneration(ctx)
		require.NoError(t, err)
		for _, node := range res.Nodes {
			require.GreaterOrEqual(t, node.Health, readings[node.ID]-1e-9, "node %s", node.ID)
		}
		inv, ok := res.Validation.Invariant(model.InvariantRegenMonotonicity)
		require.True(t, ok)
		require.True(t, inv.Passed, inv.Detail)
		p, ok := res.Validation.Proof(model.ProofRegenTrajectory)
		require.True(t, ok)
		require.True(t, p.Valid, p.Proof)
	}
}

func TestNetworkService_ConcurrentOperations(t *testing.T) {
	n := newTestNetwork(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if (i+j)%4 == 0 {
					_, _ = n.InjectChaos(ctx, []model.NodeID{model.RosterIDs()[j%8]})
				} else {
					_, _ = n.ProcessRegeneration(ctx)
				}
				_ = n.State()
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, countMasters(n.State().Nodes), 1)
	assert.NoError(t, n.VerifyAudit())
}

func TestElectMaster_BlindNodesFallBackToRosterOrder(t *testing.T) {
	nodes := model.DefaultRoster()
	for _, node := range nodes {
		node.SetHealth(10)
	}
	nodes[0].SetHealth(0)

	elected := electMaster(nodes)
	require.NotNil(t, elected)
	assert.Equal(t, model.NodeTIRS2, elected.ID)
	assert.False(t, nodes[5].IsMaster)
}
