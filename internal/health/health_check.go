package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
	"github.com/LemonScripter/metaspace-fdir-public/internal/util"
)

// Check outcomes
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// Overall twin status
const (
	TwinHealthy   = "healthy"
	TwinDegraded  = "degraded"
	TwinUnhealthy = "unhealthy"
)

// NetworkProbe is the view of the node network the checker needs
type NetworkProbe interface {
	NetworkState() model.NetworkState
	Master() model.NodeID
	VerifyAudit() error
}

// HealthChecker derives liveness and readiness from the network state, the
// audit chain and the bio-code directory
type HealthChecker struct {
	twinID     string
	bioCodeDir string
	network    NetworkProbe
	logger     *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	status      string
	checks      map[string]CheckResult
	livenessOK  bool
	readinessOK bool
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	TwinID string
	// BioCodeDir is checked only when the file backend is in use
	BioCodeDir string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(cfg *HealthCheckConfig, network NetworkProbe, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		twinID:      cfg.TwinID,
		bioCodeDir:  cfg.BioCodeDir,
		network:     network,
		logger:      logger,
		checks:      make(map[string]CheckResult),
		status:      TwinHealthy,
		livenessOK:  true,
		readinessOK: true,
	}
}

// Start runs the checks every interval until ctx is done
func (h *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.RunChecks()

	for {
		select {
		case <-ticker.C:
			h.RunChecks()
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		}
	}
}

// RunChecks evaluates every check and updates liveness and readiness
func (h *HealthChecker) RunChecks() {
	checks := []func() CheckResult{
		h.checkNetworkState,
		h.checkMasterPresent,
		h.checkAuditChain,
	}
	if h.bioCodeDir != "" {
		checks = append(checks, h.checkBioCodeDir)
	}

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		results = append(results, check())
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()
	allHealthy, allReady := true, true
	for _, r := range results {
		h.checks[r.Name] = r
		if r.Status != StatusHealthy {
			allHealthy = false
			if r.Status == StatusCritical {
				allReady = false
			}
		}
	}

	switch {
	case !allReady:
		h.status = TwinUnhealthy
	case !allHealthy:
		h.status = TwinDegraded
	default:
		h.status = TwinHealthy
	}
	h.livenessOK = true
	h.readinessOK = allReady

	h.logger.Debug("Health check completed",
		zap.String("status", h.status),
		zap.Bool("readiness", h.readinessOK))
}

func (h *HealthChecker) checkNetworkState() CheckResult {
	state := h.network.NetworkState()
	res := CheckResult{Name: "network_state", Timestamp: time.Now(), Message: string(state)}
	switch state {
	case model.NetworkStateNominal:
		res.Status = StatusHealthy
	case model.NetworkStateDegraded:
		res.Status = StatusWarning
	default:
		res.Status = StatusCritical
		res.Message = "network is unrecoverable; reset required"
	}
	return res
}

func (h *HealthChecker) checkMasterPresent() CheckResult {
	res := CheckResult{Name: "master_present", Timestamp: time.Now()}
	if m := h.network.Master(); m != "" {
		res.Status = StatusHealthy
		res.Message = "master: " + string(m)
	} else {
		res.Status = StatusWarning
		res.Message = "no active node holds the master flag"
	}
	return res
}

func (h *HealthChecker) checkAuditChain() CheckResult {
	res := CheckResult{Name: "audit_chain", Timestamp: time.Now()}
	if err := h.network.VerifyAudit(); err != nil {
		res.Status = StatusCritical
		res.Message = err.Error()
		return res
	}
	res.Status = StatusHealthy
	res.Message = "hash chain intact"
	return res
}

func (h *HealthChecker) checkBioCodeDir() CheckResult {
	res := CheckResult{Name: "biocode_dir", Timestamp: time.Now()}

	info, err := os.Stat(h.bioCodeDir)
	if err != nil || !info.IsDir() {
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("bio-code directory not accessible: %v", err)
		return res
	}

	probe := filepath.Join(h.bioCodeDir, fmt.Sprintf(".health_check_%d", time.Now().UnixNano()))
	f, err := os.Create(probe)
	if err != nil {
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("cannot write to bio-code directory: %v", err)
		return res
	}
	f.Close()
	os.Remove(probe)

	stats, err := util.GetDiskStats(h.bioCodeDir)
	if err != nil {
		res.Status = StatusWarning
		res.Message = err.Error()
		return res
	}
	usage := stats.UsagePercent()
	switch {
	case usage > 95:
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("disk usage critical: %.2f%%", usage)
	case usage > 90:
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("disk usage high: %.2f%%", usage)
	default:
		res.Status = StatusHealthy
		res.Message = fmt.Sprintf("writable, disk usage %.2f%%", usage)
	}
	return res
}

// IsLive returns whether the process is live
func (h *HealthChecker) IsLive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.livenessOK
}

// IsReady returns whether the twin can accept control operations
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// Status returns the overall status string
func (h *HealthChecker) Status() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// GetChecks returns all check results
func (h *HealthChecker) GetChecks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	return checks
}

// SetReadiness manually sets readiness (graceful shutdown)
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessOK = ready
}

// LivenessHandler handles HTTP liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	live := h.IsLive()
	writeProbe(w, live, map[string]interface{}{
		"healthy": live,
		"twin_id": h.twinID,
		"status":  h.Status(),
	})
}

// ReadinessHandler re-runs the checks and reports readiness
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.RunChecks()
	ready := h.IsReady()
	writeProbe(w, ready, map[string]interface{}{
		"ready":   ready,
		"twin_id": h.twinID,
		"status":  h.Status(),
		"checks":  h.GetChecks(),
	})
}

func writeProbe(w http.ResponseWriter, ok bool, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(body)
}
