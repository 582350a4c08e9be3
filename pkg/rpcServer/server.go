package rpcServer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/internal/metrics"
	"github.com/tesola/staking-sync/pkg/reconciler"
	"github.com/tesola/staking-sync/pkg/security"
	"github.com/tesola/staking-sync/pkg/syncLog"
	"go.uber.org/zap"
)

const (
	AdminSyncPath = "/api/admin/sync-staking"
	CronSyncPath  = "/api/cron/sync-staking"
	HealthPath    = "/api/health"
)

type RpcServer struct {
	Logger       *zap.Logger
	reconciler   *reconciler.Reconciler
	gate         *security.Gate
	limiter      *security.RateLimiter
	syncLogger   *syncLog.SyncLogger
	metricsSink  *metrics.MetricsSink
	globalConfig *config.Config
	httpServer   *http.Server
}

func NewRpcServer(
	rec *reconciler.Reconciler,
	gate *security.Gate,
	limiter *security.RateLimiter,
	sl *syncLog.SyncLogger,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *RpcServer {
	return &RpcServer{
		Logger:       l,
		reconciler:   rec,
		gate:         gate,
		limiter:      limiter,
		syncLogger:   sl,
		metricsSink:  ms,
		globalConfig: cfg,
	}
}

func (s *RpcServer) corsHandler(next http.Handler) http.Handler {
	origins := s.globalConfig.ServerConfig.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", adminKeyHeader, cronSecretHeader},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         600,
	}).Handler(next)
}

// Handler builds the routed handler: request id, metrics, CORS, rate limit, then the mux.
func (s *RpcServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(AdminSyncPath, s.handleAdminSync)
	mux.HandleFunc(CronSyncPath, s.handleCronSync)
	mux.HandleFunc(HealthPath, s.handleHealth)

	var h http.Handler = mux
	h = s.limiter.Wrap(h)
	h = s.corsHandler(h)
	h = s.instrument(h)
	h = withRequestId(h)
	return h
}

func (s *RpcServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.globalConfig.ServerConfig.HttpPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Logger.Sugar().Infow("Starting HTTP server", zap.Int("port", s.globalConfig.ServerConfig.HttpPort))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Sugar().Fatalw("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *RpcServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
