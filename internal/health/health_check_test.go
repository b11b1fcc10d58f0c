package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

type mockNetwork struct {
	mock.Mock
}

func (m *mockNetwork) NetworkState() model.NetworkState {
	args := m.Called()
	return args.Get(0).(model.NetworkState)
}

func (m *mockNetwork) Master() model.NodeID {
	args := m.Called()
	return args.Get(0).(model.NodeID)
}

func (m *mockNetwork) VerifyAudit() error {
	args := m.Called()
	return args.Error(0)
}

func newMockNetwork(state model.NetworkState, master model.NodeID, auditErr error) *mockNetwork {
	net := new(mockNetwork)
	net.On("NetworkState").Return(state)
	net.On("Master").Return(master)
	net.On("VerifyAudit").Return(auditErr)
	return net
}

func TestHealthChecker_States(t *testing.T) {
	tests := []struct {
		name       string
		state      model.NetworkState
		master     model.NodeID
		auditErr   error
		wantStatus string
		wantReady  bool
	}{
		{"nominal", model.NetworkStateNominal, model.NodeOBC, nil, TwinHealthy, true},
		{"degraded", model.NetworkStateDegraded, model.NodeOBC, nil, TwinDegraded, true},
		{"no master", model.NetworkStateDegraded, "", nil, TwinDegraded, true},
		{"unrecoverable", model.NetworkStateUnrecoverable, model.NodeOBC, nil, TwinUnhealthy, false},
		{"broken audit", model.NetworkStateNominal, model.NodeOBC, errors.New("broken"), TwinUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := newMockNetwork(tt.state, tt.master, tt.auditErr)
			h := NewHealthChecker(&HealthCheckConfig{TwinID: "t"}, net, zap.NewNop())
			h.RunChecks()

			assert.Equal(t, tt.wantStatus, h.Status())
			assert.Equal(t, tt.wantReady, h.IsReady())
			assert.True(t, h.IsLive())
			assert.Len(t, h.GetChecks(), 3)
			net.AssertExpectations(t)
		})
	}
}

func TestHealthChecker_BioCodeDir(t *testing.T) {
	net := newMockNetwork(model.NetworkStateNominal, model.NodeOBC, nil)

	h := NewHealthChecker(&HealthCheckConfig{TwinID: "t", BioCodeDir: t.TempDir()}, net, zap.NewNop())
	h.RunChecks()
	check, ok := h.GetChecks()["biocode_dir"]
	require.True(t, ok)
	assert.NotContains(t, check.Message, "not accessible")
	assert.NotContains(t, check.Message, "cannot write")

	missing := NewHealthChecker(&HealthCheckConfig{TwinID: "t", BioCodeDir: filepath.Join(t.TempDir(), "gone")}, net, zap.NewNop())
	missing.RunChecks()
	assert.Equal(t, StatusCritical, missing.GetChecks()["biocode_dir"].Status)
	assert.False(t, missing.IsReady())
}

func TestHealthChecker_Handlers(t *testing.T) {
	net := new(mockNetwork)
	net.On("NetworkState").Return(model.NetworkStateUnrecoverable).Once()
	net.On("Master").Return(model.NodeID("")).Once()
	net.On("VerifyAudit").Return(nil)
	h := NewHealthChecker(&HealthCheckConfig{TwinID: "t"}, net, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, TwinUnhealthy, body["status"])

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	net.On("NetworkState").Return(model.NetworkStateNominal)
	net.On("Master").Return(model.NodeOBC)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	net.AssertExpectations(t)
	net.AssertNumberOfCalls(t, "VerifyAudit", 2)
}
