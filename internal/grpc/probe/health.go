package probe

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"dashguard/internal/domain/services"
	"dashguard/internal/infrastructure/cache"
	"dashguard/pkg/logger"
)

// ServiceName is the health service name reported alongside the overall status
const ServiceName = "dashguard.v1.Dashboard"

const defaultInterval = 10 * time.Second

// FeedStatus reports whether a feed load has completed
type FeedStatus interface {
	LastResult() *services.FeedResult
}

// HealthChecker keeps the gRPC health status in step with the feed and Redis
type HealthChecker struct {
	server   *health.Server
	feed     FeedStatus
	cache    *cache.RedisCache
	interval time.Duration
	logger   *logger.Logger
}

// NewHealthChecker creates a checker. cache may be nil when Redis is disabled.
func NewHealthChecker(feed FeedStatus, c *cache.RedisCache, log *logger.Logger) *HealthChecker {
	hc := &HealthChecker{
		server:   health.NewServer(),
		feed:     feed,
		cache:    c,
		interval: defaultInterval,
		logger:   log.WithComponent("grpc-health"),
	}
	hc.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return hc
}

// Register registers the health service with a gRPC server
func (hc *HealthChecker) Register(grpcServer *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcServer, hc.server)
}

// Server exposes the underlying health server
func (hc *HealthChecker) Server() *health.Server {
	return hc.server
}

// Run re-checks on every interval until ctx is done, then reports NOT_SERVING
func (hc *HealthChecker) Run(ctx context.Context) {
	hc.Check(ctx)

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hc.server.Shutdown()
			return
		case <-ticker.C:
			hc.Check(ctx)
		}
	}
}

// Check probes the dependencies once and updates the serving status
func (hc *HealthChecker) Check(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	healthy := true

	if hc.feed != nil && hc.feed.LastResult() == nil {
		healthy = false
	}

	if hc.cache != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := hc.cache.Ping(pingCtx)
		cancel()
		if err != nil {
			hc.logger.Warn().Err(err).Msg("redis health check failed")
			healthy = false
		}
	}

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	hc.set(status)
	return status
}

func (hc *HealthChecker) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	hc.server.SetServingStatus("", status)
	hc.server.SetServingStatus(ServiceName, status)
}
