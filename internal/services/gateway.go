package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobby-s-dev/wsenergy/internal/models"
	"github.com/bobby-s-dev/wsenergy/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	SourceTemperature = "temperature"
	SourceConsumption = "consumption"
	SourceProduction  = "production"
)

// TemperatureSource is the weather upstream.
type TemperatureSource interface {
	GetGroupTemperatures(ctx context.Context) (*models.TemperaturePayload, error)
}

// GridSource is the electricity upstream.
type GridSource interface {
	GetShortTermConsumption(ctx context.Context) (*models.ConsumptionPayload, error)
	GetGenerationMix(ctx context.Context) (*models.ProductionPayload, error)
}

type statsProvider interface {
	GetStats() map[string]interface{}
}

// Gateway serves aggregates from cached upstream snapshots. A snapshot is
// fetched on demand when missing or expired, and at most one fetch per
// source is in flight at any time.
type Gateway struct {
	weather TemperatureSource
	grid    GridSource
	cache   PayloadCache
	ttl     time.Duration
	logger  *zap.Logger
	group   singleflight.Group

	mu           sync.RWMutex
	lastRefresh  time.Time
	successCount int
	failureCount int
}

func NewGateway(weather TemperatureSource, grid GridSource, cache PayloadCache, ttl time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		weather: weather,
		grid:    grid,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
	}
}

func (g *Gateway) Temperature(ctx context.Context) (*models.AggregatedTemperature, error) {
	payload, err := g.temperaturePayload(ctx, false)
	if err != nil {
		return nil, err
	}
	return AverageTemperature(payload)
}

func (g *Gateway) Consumption(ctx context.Context) (*models.AggregatedConsumption, error) {
	payload, err := g.consumptionPayload(ctx, false)
	if err != nil {
		return nil, err
	}
	return InstantConsumption(payload)
}

func (g *Gateway) Production(ctx context.Context) (*models.AggregatedProduction, error) {
	payload, err := g.productionPayload(ctx, false)
	if err != nil {
		return nil, err
	}
	return InstantProduction(payload)
}

// Summary loads the three aggregates concurrently and merges them. The first
// failure cancels the remaining loads.
func (g *Gateway) Summary(ctx context.Context) (*models.Summary, error) {
	var (
		temperature *models.AggregatedTemperature
		consumption *models.AggregatedConsumption
		production  *models.AggregatedProduction
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		temperature, err = g.Temperature(egCtx)
		return err
	})
	eg.Go(func() (err error) {
		consumption, err = g.Consumption(egCtx)
		return err
	})
	eg.Go(func() (err error) {
		production, err = g.Production(egCtx)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return Merge(temperature, consumption, production), nil
}

// Refresh re-fetches every source concurrently, bypassing the cache. It
// returns a joined error naming each source that failed.
func (g *Gateway) Refresh(ctx context.Context) error {
	startTime := time.Now()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	refreshers := []func(context.Context) error{
		func(ctx context.Context) error { _, err := g.temperaturePayload(ctx, true); return err },
		func(ctx context.Context) error { _, err := g.consumptionPayload(ctx, true); return err },
		func(ctx context.Context) error { _, err := g.productionPayload(ctx, true); return err },
	}

	for i, refresh := range refreshers {
		wg.Add(1)
		go func(i int, refresh func(context.Context) error) {
			defer wg.Done()
			errs[i] = refresh(ctx)
		}(i, refresh)
	}
	wg.Wait()

	err := errors.Join(errs...)

	g.mu.Lock()
	if err == nil {
		g.lastRefresh = time.Now()
	}
	g.mu.Unlock()

	if err != nil {
		observability.RefreshRunsTotal.WithLabelValues("failure").Inc()
		g.logger.Warn("Upstream refresh incomplete",
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err))
		return err
	}

	observability.RefreshRunsTotal.WithLabelValues("success").Inc()
	g.logger.Info("Upstream refresh completed",
		zap.Duration("duration", time.Since(startTime)))

	return nil
}

func (g *Gateway) temperaturePayload(ctx context.Context, force bool) (*models.TemperaturePayload, error) {
	return load(ctx, g, SourceTemperature, force, g.weather.GetGroupTemperatures)
}

func (g *Gateway) consumptionPayload(ctx context.Context, force bool) (*models.ConsumptionPayload, error) {
	return load(ctx, g, SourceConsumption, force, g.grid.GetShortTermConsumption)
}

func (g *Gateway) productionPayload(ctx context.Context, force bool) (*models.ProductionPayload, error) {
	return load(ctx, g, SourceProduction, force, g.grid.GetGenerationMix)
}

// load returns a private copy of the snapshot for source. Unless force is
// set, a cached snapshot is used when present. Concurrent fetches for the
// same source are coalesced into one upstream call.
func load[T any](ctx context.Context, g *Gateway, source string, force bool, fetch func(context.Context) (*T, error)) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !force {
		if payload, ok := cached[T](ctx, g, source); ok {
			return payload, nil
		}
	}

	// The shared call outlives any single caller, so it runs detached from
	// the caller's cancellation while keeping its values.
	ch := g.group.DoChan(source, func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithDeadline(fetchCtx, deadline)
			defer cancel()
		}
		return g.fetchAndStore(fetchCtx, source, func(ctx context.Context) (interface{}, error) {
			return fetch(ctx)
		})
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return decodeSnapshot[T](res.Val.([]byte))
	}
}

func cached[T any](ctx context.Context, g *Gateway, source string) (*T, bool) {
	raw, ok, err := g.cache.Get(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		g.logger.Warn("Cache read failed, fetching upstream",
			zap.String("source", source),
			zap.Error(err))
		return nil, false
	}
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(source).Inc()
		g.logger.Debug("Cache miss", zap.String("source", source))
		return nil, false
	}

	payload, err := decodeSnapshot[T](raw)
	if err != nil {
		g.logger.Warn("Cached snapshot unreadable, fetching upstream",
			zap.String("source", source),
			zap.Error(err))
		return nil, false
	}

	observability.CacheHitsTotal.WithLabelValues(source).Inc()
	return payload, true
}

// fetchAndStore calls the upstream and caches the encoded snapshot. The
// encoded bytes are returned so each waiter decodes its own copy.
func (g *Gateway) fetchAndStore(ctx context.Context, source string, fetch func(context.Context) (interface{}, error)) ([]byte, error) {
	payload, err := fetch(ctx)
	if err != nil {
		g.recordFetch(false)
		g.logger.Error("Upstream fetch failed",
			zap.String("source", source),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	g.recordFetch(true)

	raw, err := json.Marshal(models.Snapshot[interface{}]{
		Payload:   payload,
		FetchedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encoding snapshot: %w", source, err)
	}

	if err := g.cache.Set(ctx, source, raw, g.ttl); err != nil {
		g.logger.Warn("Cache write failed",
			zap.String("source", source),
			zap.Error(err))
	}

	g.logger.Debug("Upstream snapshot stored",
		zap.String("source", source),
		zap.Int("size", len(raw)),
		zap.Duration("ttl", g.ttl))

	return raw, nil
}

func decodeSnapshot[T any](raw []byte) (*T, error) {
	var snapshot models.Snapshot[*T]
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snapshot.Payload == nil {
		return nil, fmt.Errorf("%w: empty snapshot", ErrInvalidPayload)
	}
	return snapshot.Payload, nil
}

func (g *Gateway) recordFetch(ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ok {
		g.successCount++
	} else {
		g.failureCount++
	}
}

// LastRefresh is the time of the last fully successful Refresh.
func (g *Gateway) LastRefresh() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastRefresh
}

func (g *Gateway) GetStats() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := map[string]interface{}{
		"last_refresh":  g.lastRefresh,
		"success_count": g.successCount,
		"failure_count": g.failureCount,
		"cache_ttl":     g.ttl.String(),
	}
	if sp, ok := g.cache.(statsProvider); ok {
		stats["cache_stats"] = sp.GetStats()
	}
	return stats
}
