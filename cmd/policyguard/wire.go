package main

import (
	"context"
	"fmt"

	"github.com/PrateekKumar1709/policyguard/internal/compliance"
	"github.com/PrateekKumar1709/policyguard/internal/config"
	"github.com/PrateekKumar1709/policyguard/internal/engine"
	"github.com/PrateekKumar1709/policyguard/internal/incident"
	"github.com/PrateekKumar1709/policyguard/internal/metrics"
	"github.com/PrateekKumar1709/policyguard/internal/policy"
	"github.com/PrateekKumar1709/policyguard/internal/server"
	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"github.com/PrateekKumar1709/policyguard/internal/trust"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds everything built from config that needs closing on exit.
type app struct {
	guard    *server.Guard
	backend  storage.Backend
	writer   storage.EventWriter
	redis    *redis.Client
	registry *prometheus.Registry
}

func (a *app) Close() {
	a.writer.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.backend.Close()
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	backend, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		DataDir:     cfg.Storage.DataDir,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, logger)
	if err != nil {
		return nil, err
	}
	a := &app{backend: backend, registry: prometheus.NewRegistry()}

	// Decision event mirror: ClickHouse or LogWriter fallback
	if cfg.Storage.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(ctx, cfg.Storage.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			a.writer = storage.NewLogWriter(logger)
		} else {
			a.writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		a.writer = storage.NewLogWriter(logger)
	}

	var notifier trust.Notifier
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, suspension broadcasts may fail", zap.Error(err))
		}
		notifier = trust.NewRedisNotifier(a.redis, logger)
	}

	g, err := server.New(ctx, server.Deps{
		Backend:  backend,
		Writer:   a.writer,
		Notifier: notifier,
		Metrics:  metrics.New(a.registry),
		Engine: engine.Config{
			SuspendedSeverity: incident.Severity(cfg.Engine.SuspendedSeverity),
			DenySeverity:      incident.Severity(cfg.Engine.DenySeverity),
			ApprovalSeverity:  incident.Severity(cfg.Engine.ApprovalSeverity),
		},
		Compliance: compliance.Config{
			Window:        cfg.Compliance.Window,
			PenaltyWeight: cfg.Compliance.PenaltyWeight,
		},
		AuditLimit: cfg.Audit.DefaultLimit,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.guard = g

	if cfg.Policy.DefaultFile != "" {
		params, err := policy.LoadFile(cfg.Policy.DefaultFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load default policies: %w", err)
		}
		if err := g.LoadPolicies(ctx, params); err != nil {
			a.Close()
			return nil, fmt.Errorf("load default policies: %w", err)
		}
		logger.Info("default policies loaded",
			zap.String("file", cfg.Policy.DefaultFile),
			zap.Int("count", len(params)),
		)
	}
	return a, nil
}
