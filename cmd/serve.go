package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/internal/metrics/prometheus"
	"github.com/tesola/staking-sync/internal/shutdown"
	"github.com/tesola/staking-sync/pkg/rpcServer"
	"github.com/tesola/staking-sync/pkg/security"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin and cron reconciliation endpoints",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)

		deps, err := buildDependencies()
		if err != nil {
			cobra.CheckErr(err)
		}
		defer deps.Close()
		l := deps.logger
		cfg := deps.cfg

		var promServer *prometheus.PrometheusServer
		if cfg.PrometheusConfig.Enabled {
			promServer = prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: cfg.PrometheusConfig.Port,
			}, l)
			promServer.Start()
		}

		resolver, err := security.NewClientIPResolver(cfg.SecurityConfig.TrustedProxies)
		if err != nil {
			l.Sugar().Fatalw("Invalid trusted proxy configuration", zap.Error(err))
		}
		windowStore := security.NewMemoryWindowStore(time.Minute)
		rules, fallback := security.RulesFromConfig(&cfg.SecurityConfig)
		limiter := security.NewRateLimiter(rules, fallback, windowStore, resolver, deps.metricsSink, l)
		gate := security.NewGate(&cfg.SecurityConfig, l)

		server := rpcServer.NewRpcServer(deps.reconciler, gate, limiter, deps.syncLogger, deps.metricsSink, l, cfg)
		if err := server.Start(); err != nil {
			l.Sugar().Fatalw("Failed to start HTTP server", zap.Error(err))
		}

		l.Sugar().Infow("Started staking sync",
			zap.String("programId", deps.chain.ProgramID().String()),
			zap.Int("accountLimit", cfg.ReconcilerConfig.AccountLimit),
		)

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()

		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdown, done, func() {
			l.Sugar().Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				l.Sugar().Errorw("Failed to shut down HTTP server", zap.Error(err))
			}
			if promServer != nil {
				if err := promServer.Shutdown(ctx); err != nil {
					l.Sugar().Errorw("Failed to shut down prometheus server", zap.Error(err))
				}
			}
			windowStore.Stop()
		}, time.Second*5, l)
	},
}
