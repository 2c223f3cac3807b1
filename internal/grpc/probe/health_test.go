package probe

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"

	"dashguard/internal/domain/services"
	"dashguard/internal/infrastructure/cache"
	"dashguard/pkg/logger"
)

type feedState struct {
	result *services.FeedResult
}

func (f *feedState) LastResult() *services.FeedResult { return f.result }

func status(t *testing.T, hc *HealthChecker, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hc.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthChecker_FollowsFeed(t *testing.T) {
	feed := &feedState{}
	hc := NewHealthChecker(feed, nil, logger.NewNop())

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status(t, hc, ""))

	feed.result = &services.FeedResult{Loader: "mock", Accepted: 1}
	hc.Check(context.Background())

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, hc, ""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status(t, hc, ServiceName))
}

func TestHealthChecker_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewFromClient(client, "test:", logger.NewNop())

	feed := &feedState{result: &services.FeedResult{Loader: "mock"}}
	hc := NewHealthChecker(feed, c, logger.NewNop())

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, hc.Check(context.Background()))

	mr.Close()
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, hc.Check(context.Background()))
}
