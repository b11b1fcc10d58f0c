package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/metrics"
)

func TestMetricsServer_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("twin-x", reg)
	m.MissionDay.Set(12)

	s := NewMetricsServer(&MetricsServerConfig{Port: 9999, Path: "/metrics"}, m, reg, zap.NewNop())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `twin_mission_day{twin_id="twin-x"} 12`)
}

func TestMetricsServer_SystemStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("twin-x", reg)
	s := NewMetricsServer(&MetricsServerConfig{DataDir: t.TempDir()}, m, reg, zap.NewNop())

	s.updateSystemMetrics()

	assert.Greater(t, testutil.ToFloat64(m.GoroutinesTotal), 0.0)
	assert.Greater(t, testutil.ToFloat64(m.MemoryUsageBytes), 0.0)
	assert.LessOrEqual(t, testutil.ToFloat64(m.DiskUsagePercent), 100.0)
}
