package cmd

import (
	"fmt"

	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/internal/logger"
	"github.com/tesola/staking-sync/internal/metrics"
	"github.com/tesola/staking-sync/pkg/clients/solana"
	"github.com/tesola/staking-sync/pkg/discrepancy"
	"github.com/tesola/staking-sync/pkg/metadata"
	"github.com/tesola/staking-sync/pkg/postgres"
	"github.com/tesola/staking-sync/pkg/postgres/migrations"
	"github.com/tesola/staking-sync/pkg/reconciler"
	pgStorage "github.com/tesola/staking-sync/pkg/storage/postgres"
	"github.com/tesola/staking-sync/pkg/syncLog"
	"go.uber.org/zap"
)

type dependencies struct {
	cfg         *config.Config
	logger      *zap.Logger
	metricsSink *metrics.MetricsSink
	db          *postgres.Postgres
	mirror      *pgStorage.PostgresMirrorStore
	chain       *solana.Client
	detector    *discrepancy.Detector
	synthesizer *metadata.Synthesizer
	reconciler  *reconciler.Reconciler
	syncLogger  *syncLog.SyncLogger
}

func (d *dependencies) Close() {
	if d.db != nil && d.db.Db != nil {
		_ = d.db.Db.Close()
	}
	_ = d.logger.Sync()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Name: "staking-sync"})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

func newMetricsSink(cfg *config.Config, l *zap.Logger) (*metrics.MetricsSink, error) {
	metricsClients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to setup metrics clients: %w", err)
	}
	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, metricsClients)
	if err != nil {
		return nil, fmt.Errorf("failed to setup metrics sink: %w", err)
	}
	return sink, nil
}

// openDatabase connects to postgres and applies pending migrations.
func openDatabase(cfg *config.Config, l *zap.Logger) (*postgres.Postgres, *pgStorage.PostgresMirrorStore, error) {
	pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
	pgConfig.CreateDbIfNotExists = true

	pg, err := postgres.NewPostgres(pgConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup postgres connection: %w", err)
	}

	grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gorm instance: %w", err)
	}

	migrator := migrations.NewMigrator(pg.Db, grm, l, cfg)
	if err = migrator.MigrateAll(); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return pg, pgStorage.NewPostgresMirrorStore(grm, l, cfg), nil
}

func newChainClient(cfg *config.Config, l *zap.Logger) (*solana.Client, error) {
	client, err := solana.NewClient(solana.ConvertGlobalConfigToSolanaConfig(&cfg.SolanaConfig), l)
	if err != nil {
		return nil, fmt.Errorf("failed to create solana client: %w", err)
	}
	return client, nil
}

// buildDependencies wires every reconciliation component from the current viper configuration.
func buildDependencies() (*dependencies, error) {
	cfg := config.NewConfig()

	l, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	sink, err := newMetricsSink(cfg, l)
	if err != nil {
		return nil, err
	}

	chain, err := newChainClient(cfg, l)
	if err != nil {
		return nil, err
	}

	pg, mirror, err := openDatabase(cfg, l)
	if err != nil {
		return nil, err
	}

	detector := discrepancy.NewDetector(chain, mirror, mirror, sink, l, cfg)
	synthesizer := metadata.NewSynthesizer(mirror, mirror, l, cfg)
	rec := reconciler.NewReconciler(chain, mirror, mirror, detector, synthesizer, sink, l, cfg)

	return &dependencies{
		cfg:         cfg,
		logger:      l,
		metricsSink: sink,
		db:          pg,
		mirror:      mirror,
		chain:       chain,
		detector:    detector,
		synthesizer: synthesizer,
		reconciler:  rec,
		syncLogger:  syncLog.NewSyncLogger(mirror, l),
	}, nil
}
