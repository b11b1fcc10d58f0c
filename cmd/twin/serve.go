package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LemonScripter/metaspace-fdir-public/internal/config"
	"github.com/LemonScripter/metaspace-fdir-public/internal/health"
	"github.com/LemonScripter/metaspace-fdir-public/internal/metrics"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
	"github.com/LemonScripter/metaspace-fdir-public/internal/server"
	"github.com/LemonScripter/metaspace-fdir-public/internal/service"
	"github.com/LemonScripter/metaspace-fdir-public/internal/store"
	"github.com/LemonScripter/metaspace-fdir-public/internal/telemetry"
)

const healthCheckInterval = 10 * time.Second

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the twin control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := initLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	twinID := cfg.Server.TwinID
	logger = logger.With(zap.String("twin_id", twinID))

	logger.Info("Configuration loaded",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend))

	svc, err := service.NewNetworkService(service.NetworkConfig{
		TwinID:       twinID,
		RegenRate:    cfg.Network.RegenRate,
		EventLimit:   cfg.Network.EventLimit,
		HistoryLimit: cfg.Network.HistoryLimit,
	}, logger)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics(twinID, prometheus.DefaultRegisterer)
	svc.SetMetrics(m)

	bioStore, err := openBioCodeStore(cfg, logger)
	if err != nil {
		return err
	}
	if bioStore != nil {
		defer bioStore.Close()
		svc.SetBioCodeStore(bioStore)
	}

	if cfg.Audit.PostgresDSN != "" {
		pool, err := store.ConnectPostgres(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return err
		}
		auditStore := store.NewPostgresAuditStore(pool, twinID)
		defer auditStore.Close()
		if err := auditStore.EnsureSchema(ctx); err != nil {
			return err
		}
		svc.SetAuditStore(auditStore)
		logger.Info("Audit archive attached")
	}

	if len(cfg.Telemetry.Readings) > 0 {
		readings := make(map[model.NodeID]float64, len(cfg.Telemetry.Readings))
		for id, h := range cfg.Telemetry.Readings {
			readings[model.NodeID(id)] = h
		}
		svc.SetTelemetrySource(telemetry.NewStaticSource(readings))
	}

	if cfg.Gossip.Enabled {
		gossip, err := service.NewGossipService(&service.GossipConfig{
			Enabled:        true,
			BindAddr:       cfg.Gossip.BindAddr,
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
		}, twinID, m, logger)
		if err != nil {
			logger.Error("Failed to initialize gossip service", zap.Error(err))
		} else {
			defer gossip.Shutdown()
			svc.SetPublisher(gossip)
		}
	}

	hcCfg := &health.HealthCheckConfig{TwinID: twinID}
	if cfg.Storage.Backend == config.BackendFile {
		hcCfg.BioCodeDir = cfg.Storage.BioCodeDir
	}
	hc := health.NewHealthChecker(hcCfg, svc, logger)
	srv := server.NewServer(cfg, svc, hc, logger)

	var metricsSrv *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsSrv = server.NewMetricsServer(&server.MetricsServerConfig{
			Port:            cfg.Metrics.Port,
			Path:            cfg.Metrics.Path,
			DataDir:         hcCfg.BioCodeDir,
			CollectInterval: cfg.Metrics.CollectInterval,
		}, m, prometheus.DefaultGatherer, logger)
		if err := metricsSrv.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		hc.Start(gctx, healthCheckInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		hc.SetReadiness(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	logger.Info("Twin service started")
	return g.Wait()
}

func openBioCodeStore(cfg *config.Config, logger *zap.Logger) (store.BioCodeStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendFile:
		if err := os.MkdirAll(cfg.Storage.BioCodeDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create biocode directory: %w", err)
		}
		return store.NewFileBioCodeStore(cfg.Storage.BioCodeDir, logger), nil
	case config.BackendRedis:
		client, err := store.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return store.NewRedisBioCodeStore(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL, logger), nil
	default:
		return store.NewMemoryBioCodeStore(), nil
	}
}
