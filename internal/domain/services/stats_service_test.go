package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashguard/internal/domain/models"
	"dashguard/internal/infrastructure/cache"
	"dashguard/pkg/logger"
)

func newCachedStats(t *testing.T) (*StatsService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rc := cache.NewFromClient(client, "test:", logger.NewNop())
	return NewStatsService(rc, time.Minute, logger.NewNop()), mr
}

func TestStatsService_CachesByVersion(t *testing.T) {
	svc, mr := newCachedStats(t)
	ctx := context.Background()

	first := []models.Threat{
		located("1", "France", models.SeverityHigh),
		located("2", "Germany", models.SeverityLow),
	}
	q := StatsQuery{Scope: "ws-1:visible", Version: 1, Options: AggregateOptions{Now: day(3)}}

	snap := svc.Snapshot(ctx, q, first)
	assert.Equal(t, 2, snap.Total)
	assert.Len(t, mr.Keys(), 1)

	// same version answers from the cache even for different input
	snap = svc.Snapshot(ctx, q, nil)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.CountBySeverity[models.SeverityHigh])

	q.Version = 2
	snap = svc.Snapshot(ctx, q, nil)
	assert.Equal(t, 0, snap.Total)
	assert.Len(t, mr.Keys(), 2)
}

func TestStatsService_ExpiresWithTTL(t *testing.T) {
	svc, mr := newCachedStats(t)
	ctx := context.Background()
	q := StatsQuery{Scope: "ws-1:all", Version: 1, Options: AggregateOptions{Now: day(3)}}

	svc.Snapshot(ctx, q, []models.Threat{sampleThreat("1", models.SeverityHigh)})
	mr.FastForward(2 * time.Minute)

	snap := svc.Snapshot(ctx, q, nil)
	assert.Equal(t, 0, snap.Total)
}

func TestStatsService_RangeNarrowsAndSetsWindow(t *testing.T) {
	svc := NewStatsService(nil, time.Minute, logger.NewNop())

	old := sampleThreat("1", models.SeverityHigh)
	old.DateAdded = day(1)
	recent := sampleThreat("2", models.SeverityLow)
	recent.DateAdded = day(9)

	snap := svc.Snapshot(context.Background(), StatsQuery{
		Range:   models.TimeRange24Hours,
		Options: AggregateOptions{Now: day(9)},
	}, []models.Threat{old, recent})

	assert.Equal(t, 1, snap.Total)
	require.Len(t, snap.DailyCounts, 1)
	assert.Equal(t, 1, snap.DailyCounts[0].Count)

	snap = svc.Snapshot(context.Background(), StatsQuery{
		Range:   models.TimeRange30Days,
		Options: AggregateOptions{Now: day(9)},
	}, []models.Threat{old, recent})
	assert.Equal(t, 2, snap.Total)
	assert.Len(t, snap.DailyCounts, 30)
}
