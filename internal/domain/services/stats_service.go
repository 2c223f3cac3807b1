package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dashguard/internal/domain/models"
	"dashguard/internal/infrastructure/cache"
	"dashguard/internal/metrics"
	"dashguard/pkg/logger"
)

// StatsQuery identifies one snapshot of one threat collection
type StatsQuery struct {
	// Scope names the collection, typically a workspace id plus "visible" or "all"
	Scope string
	// Version changes whenever the collection does
	Version uint64
	// Range restricts the collection to a relative window; empty means no restriction
	Range   models.TimeRange
	Options AggregateOptions
}

// StatsService computes snapshots and caches them in Redis when available
type StatsService struct {
	cache  *cache.RedisCache
	ttl    time.Duration
	logger *logger.Logger
}

// NewStatsService creates a new StatsService. redis may be nil.
func NewStatsService(redis *cache.RedisCache, ttl time.Duration, log *logger.Logger) *StatsService {
	return &StatsService{
		cache:  redis,
		ttl:    ttl,
		logger: log.WithComponent("stats"),
	}
}

// Snapshot returns the snapshot for q computed over threats. A query with a
// range narrows threats with WithinRange and uses the range's day count as
// the daily window.
func (s *StatsService) Snapshot(ctx context.Context, q StatsQuery, threats []models.Threat) models.StatsSnapshot {
	opts := q.Options.withDefaults()
	if q.Range != "" {
		opts.DailyWindow = q.Range.Days()
	}

	compute := func() models.StatsSnapshot {
		input := threats
		if q.Range != "" {
			input = WithinRange(threats, q.Range, opts.Now)
		}
		return Aggregate(input, opts)
	}

	if s.cache == nil || s.ttl <= 0 || q.Scope == "" {
		metrics.StatsCacheLookups.WithLabelValues("bypass").Inc()
		return compute()
	}

	key := statsKey(q, opts)

	var snap models.StatsSnapshot
	err := s.cache.GetCachedStats(ctx, key, &snap)
	if err == nil {
		metrics.StatsCacheLookups.WithLabelValues("hit").Inc()
		return snap
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Msg("failed to read cached stats")
	}
	metrics.StatsCacheLookups.WithLabelValues("miss").Inc()

	snap = compute()
	if err := s.cache.CacheStats(ctx, key, snap, s.ttl); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache stats")
	}
	return snap
}

// statsKey covers every input that shapes the snapshot. The calendar date is
// part of the key because daily counts roll over at midnight.
func statsKey(q StatsQuery, opts AggregateOptions) string {
	today := opts.Now.In(opts.Location).Format(dateLayout)
	return fmt.Sprintf("%s:v%d:%s:c%d:s%d:d%d:%s:%s",
		q.Scope, q.Version, q.Range,
		opts.TopCountries, opts.TopSources, opts.DailyWindow,
		opts.Location.String(), today)
}
