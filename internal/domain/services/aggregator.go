package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dashguard/internal/config"
	"dashguard/internal/domain/models"
	"dashguard/internal/infrastructure/cache"
	"dashguard/internal/metrics"
	"dashguard/pkg/logger"
)

// ErrLoadInProgress is returned when a feed load is requested while one runs
var ErrLoadInProgress = errors.New("feed load already in progress")

// FeedLoader produces raw threat records
type FeedLoader interface {
	// Slug returns the unique identifier for this loader
	Slug() string

	// Name returns a human-readable name
	Name() string

	// Load retrieves the full record set
	Load(ctx context.Context) ([]models.Threat, error)
}

// Enricher fills in missing threat fields after normalization
type Enricher interface {
	EnrichAll(threats []models.Threat) int
}

// FeedSink receives every successfully loaded threat set
type FeedSink interface {
	LoadAll(threats []models.Threat, version int64)
}

// EventPublisher defines the interface for publishing feed events
type EventPublisher interface {
	// PublishFeedLoad publishes a feed load completion event
	PublishFeedLoad(ctx context.Context, loaderSlug string, accepted, rejected, enriched int, duration time.Duration, err error) error
}

// FeedResult summarizes one feed load
type FeedResult struct {
	Loader    string        `json:"loader"`
	Accepted  int           `json:"accepted"`
	Rejected  int           `json:"rejected"`
	Enriched  int           `json:"enriched"`
	Version   int64         `json:"version"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Errors    []string      `json:"errors,omitempty"`
}

// maxReportedErrors caps the rejection messages kept on a FeedResult
const maxReportedErrors = 20

// Aggregator loads the threat feed, normalizes and enriches it, and hands the
// result to the registered sinks
type Aggregator struct {
	config     config.FeedConfig
	loader     FeedLoader
	normalizer *Normalizer
	enricher   Enricher
	cache      *cache.RedisCache
	publisher  EventPublisher
	logger     *logger.Logger

	mu         sync.RWMutex
	sinks      []FeedSink
	isRunning  bool
	threats    []models.Threat
	version    int64
	lastResult *FeedResult
}

// NewAggregator creates a new Aggregator. enricher and redis may be nil.
func NewAggregator(
	cfg config.FeedConfig,
	loader FeedLoader,
	normalizer *Normalizer,
	enricher Enricher,
	redis *cache.RedisCache,
	log *logger.Logger,
) *Aggregator {
	return &Aggregator{
		config:     cfg,
		loader:     loader,
		normalizer: normalizer,
		enricher:   enricher,
		cache:      redis,
		threats:    []models.Threat{},
		logger:     log.WithComponent("aggregator"),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (a *Aggregator) SetEventPublisher(publisher EventPublisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publisher = publisher
	a.logger.Info().Msg("event publisher configured")
}

// AddSink registers a receiver for loaded threat sets
func (a *Aggregator) AddSink(sink FeedSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, sink)
}

// Run loads the feed once and then on every refresh interval until ctx ends.
// A zero interval loads once.
func (a *Aggregator) Run(ctx context.Context) error {
	if _, err := a.RunOnce(ctx); err != nil && !errors.Is(err, ErrLoadInProgress) {
		a.logger.Error().Err(err).Msg("initial feed load failed")
	}

	if a.config.RefreshInterval <= 0 {
		return nil
	}

	a.logger.Info().Dur("interval", a.config.RefreshInterval).Msg("starting feed refresh loop")

	ticker := time.NewTicker(a.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("feed refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil && !errors.Is(err, ErrLoadInProgress) {
				a.logger.Warn().Err(err).Msg("feed refresh failed")
			}
		}
	}
}

// RunOnce performs one load. On failure the previous threat set stays current.
func (a *Aggregator) RunOnce(ctx context.Context) (*FeedResult, error) {
	a.mu.Lock()
	if a.isRunning {
		a.mu.Unlock()
		return nil, ErrLoadInProgress
	}
	a.isRunning = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.isRunning = false
		a.mu.Unlock()
	}()

	slug := a.loader.Slug()
	result := &FeedResult{Loader: slug, StartedAt: time.Now()}

	raws, err := a.loader.Load(ctx)
	if err != nil {
		result.Duration = time.Since(result.StartedAt)
		metrics.FeedLoads.WithLabelValues(slug, "error").Inc()
		a.publish(ctx, result, err)
		a.logger.Error().Err(err).Str("loader", slug).Msg("feed load failed")
		return nil, fmt.Errorf("load %s: %w", slug, err)
	}

	threats, errs := a.normalizer.NormalizeBatch(raws)
	result.Accepted = len(threats)
	result.Rejected = len(errs)
	metrics.FeedRecordsRejected.Add(float64(len(errs)))
	for i, e := range errs {
		if i == maxReportedErrors {
			break
		}
		result.Errors = append(result.Errors, e.Error())
	}

	if a.enricher != nil {
		result.Enriched = a.enricher.EnrichAll(threats)
	}

	version := a.nextVersion(ctx)
	result.Version = version
	result.Duration = time.Since(result.StartedAt)

	a.mu.Lock()
	a.threats = threats
	a.version = version
	a.lastResult = result
	sinks := append([]FeedSink(nil), a.sinks...)
	a.mu.Unlock()

	for _, sink := range sinks {
		sink.LoadAll(threats, version)
	}

	metrics.FeedLoads.WithLabelValues(slug, "success").Inc()
	a.publish(ctx, result, nil)

	a.logger.Info().
		Str("loader", slug).
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Int("enriched", result.Enriched).
		Int64("version", version).
		Dur("duration", result.Duration).
		Msg("feed loaded")

	return result, nil
}

// Threats returns a copy of the current threat set
func (a *Aggregator) Threats() []models.Threat {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return models.CloneThreats(a.threats)
}

// Version returns the version of the current threat set, zero before the first load
func (a *Aggregator) Version() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}

// LastResult returns the summary of the last successful load, or nil
func (a *Aggregator) LastResult() *FeedResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastResult == nil {
		return nil
	}
	r := *a.lastResult
	r.Errors = append([]string(nil), a.lastResult.Errors...)
	return &r
}

// IsRunning reports whether a load is in flight
func (a *Aggregator) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isRunning
}

// nextVersion bumps the shared feed version in Redis so replicas agree,
// falling back to a local counter
func (a *Aggregator) nextVersion(ctx context.Context) int64 {
	a.mu.RLock()
	local := a.version + 1
	a.mu.RUnlock()

	if a.cache == nil {
		return local
	}
	v, err := a.cache.IncrementFeedVersion(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to bump feed version in redis")
		return local
	}
	if v < local {
		return local
	}
	return v
}

func (a *Aggregator) publish(ctx context.Context, result *FeedResult, loadErr error) {
	a.mu.RLock()
	publisher := a.publisher
	a.mu.RUnlock()

	if publisher == nil {
		return
	}
	if err := publisher.PublishFeedLoad(ctx, result.Loader, result.Accepted, result.Rejected, result.Enriched, result.Duration, loadErr); err != nil {
		a.logger.Warn().Err(err).Msg("failed to publish feed event")
	}
}
