package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
	"github.com/LemonScripter/metaspace-fdir-public/internal/util/workerpool"
)

// Named failure scenarios run by the stress runner
const (
	ScenarioPayloadLoss    = "payload_loss"
	ScenarioNavigationLoss = "navigation_loss"
	ScenarioPowerLoss      = "power_loss"
	ScenarioCommLoss       = "comm_loss"
	ScenarioTotalLoss      = "total_loss"
	ScenarioMasterLoss     = "master_loss"
	ScenarioRandomLoss     = "random_loss"
)

var scenarioKills = map[string][]model.NodeID{
	ScenarioPayloadLoss:    {model.NodeOLI2, model.NodeTIRS2},
	ScenarioNavigationLoss: {model.NodeSTA, model.NodeSTB},
	ScenarioPowerLoss:      {model.NodeEPS},
	ScenarioCommLoss:       {model.NodeXBand, model.NodeSBand},
	ScenarioTotalLoss:      model.RosterIDs(),
	ScenarioMasterLoss:     {model.InitialMaster},
}

// Scenarios lists every known scenario name in a stable order
func Scenarios() []string {
	names := make([]string, 0, len(scenarioKills)+1)
	for name := range scenarioKills {
		names = append(names, name)
	}
	names = append(names, ScenarioRandomLoss)
	sort.Strings(names)
	return names
}

// StressConfig controls a batch run
type StressConfig struct {
	Runs      int
	Workers   int
	QueueSize int
	MaxCycles int
	RegenRate float64
	Seed      int64
}

// ScenarioReport summarizes every run of one scenario
type ScenarioReport struct {
	Scenario             string  `json:"scenario"`
	Runs                 int     `json:"runs"`
	Recovered            int     `json:"recovered"`
	Unrecoverable        int     `json:"unrecoverable"`
	Exhausted            int     `json:"exhausted"`
	Errors               int     `json:"errors"`
	MeanCyclesToRecovery float64 `json:"mean_cycles_to_recovery"`
	ValidationFailures   int     `json:"validation_failures"`
	MeanFinalFeasibility float64 `json:"mean_final_feasibility"`
}

type runOutcome struct {
	state              model.NetworkState
	cycles             int
	validationFailures int
	finalFeasibility   float64
}

// StressRunner drives many independent networks through failure scenarios
type StressRunner struct {
	cfg    StressConfig
	logger *zap.Logger
}

// NewStressRunner creates a runner
func NewStressRunner(cfg StressConfig, logger *zap.Logger) *StressRunner {
	if cfg.Runs <= 0 {
		cfg.Runs = 1
	}
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = 50
	}
	return &StressRunner{cfg: cfg, logger: logger}
}

// Run executes cfg.Runs networks per scenario on a bounded worker pool and
// returns one report per scenario in input order.
func (r *StressRunner) Run(ctx context.Context, scenarios []string) ([]ScenarioReport, error) {
	for _, name := range scenarios {
		if _, ok := scenarioKills[name]; !ok && name != ScenarioRandomLoss {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
	}

	pool := workerpool.NewWorkerPool(workerpool.Config{
		Name:       "stress",
		MaxWorkers: r.cfg.Workers,
		QueueSize:  r.cfg.QueueSize,
		Logger:     r.logger,
	})

	var (
		mu       sync.Mutex
		outcomes = make(map[string][]runOutcome, len(scenarios))
		failures = make(map[string]int, len(scenarios))
	)

	for _, name := range scenarios {
		for i := 0; i < r.cfg.Runs; i++ {
			name, run := name, i
			err := pool.SubmitWithContext(ctx, workerpool.Task{
				ID: fmt.Sprintf("%s-%d", name, run),
				Fn: func(context.Context) error {
					out, err := r.runOnce(ctx, name, run)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failures[name]++
						return err
					}
					outcomes[name] = append(outcomes[name], out)
					return nil
				},
			})
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to submit stress run: %w", err)
			}
		}
	}
	pool.Close()

	stats := pool.Stats()
	r.logger.Info("Stress run complete",
		zap.Int("scenarios", len(scenarios)),
		zap.Uint64("completed", stats.CompletedTasks),
		zap.Uint64("failed", stats.FailedTasks))

	reports := make([]ScenarioReport, 0, len(scenarios))
	for _, name := range scenarios {
		reports = append(reports, summarize(name, outcomes[name], failures[name]))
	}
	return reports, ctx.Err()
}

func (r *StressRunner) killSet(name string, run int) []model.NodeID {
	if name != ScenarioRandomLoss {
		return scenarioKills[name]
	}
	rng := rand.New(rand.NewSource(r.cfg.Seed + int64(run)))
	var kill []model.NodeID
	for _, id := range model.RosterIDs() {
		if rng.Intn(2) == 0 {
			kill = append(kill, id)
		}
	}
	return kill
}

func (r *StressRunner) runOnce(ctx context.Context, name string, run int) (runOutcome, error) {
	net, err := NewNetworkService(NetworkConfig{
		TwinID:    fmt.Sprintf("stress-%s-%d", name, run),
		RegenRate: r.cfg.RegenRate,
	}, zap.NewNop())
	if err != nil {
		return runOutcome{}, err
	}

	var out runOutcome
	res, err := net.InjectChaos(ctx, r.killSet(name, run))
	if err != nil {
		return runOutcome{}, err
	}
	if !res.Validation.Passed() {
		out.validationFailures++
	}
	out.finalFeasibility = res.Feasibility

	for out.cycles < r.cfg.MaxCycles {
		if err := ctx.Err(); err != nil {
			return runOutcome{}, err
		}
		state := net.NetworkState()
		if state != model.NetworkStateDegraded {
			break
		}
		res, err := net.ProcessRegeneration(ctx)
		if err != nil {
			return runOutcome{}, err
		}
		out.cycles++
		out.finalFeasibility = res.Feasibility
		if res.Validation != nil && !res.Validation.Passed() {
			out.validationFailures++
		}
	}
	out.state = net.NetworkState()
	return out, nil
}

func summarize(name string, outcomes []runOutcome, errs int) ScenarioReport {
	rep := ScenarioReport{Scenario: name, Runs: len(outcomes) + errs, Errors: errs}
	var cycles, feas float64
	for _, o := range outcomes {
		switch o.state {
		case model.NetworkStateNominal:
			rep.Recovered++
			cycles += float64(o.cycles)
		case model.NetworkStateUnrecoverable:
			rep.Unrecoverable++
		default:
			rep.Exhausted++
		}
		rep.ValidationFailures += o.validationFailures
		feas += o.finalFeasibility
	}
	if rep.Recovered > 0 {
		rep.MeanCyclesToRecovery = cycles / float64(rep.Recovered)
	}
	if len(outcomes) > 0 {
		rep.MeanFinalFeasibility = feas / float64(len(outcomes))
	}
	return rep
}
