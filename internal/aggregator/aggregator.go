package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harborline/backend-tracking/internal/cache"
	"github.com/harborline/backend-tracking/internal/lock"
	"github.com/harborline/backend-tracking/internal/obs"
	"github.com/harborline/backend-tracking/internal/provider"
	"github.com/harborline/backend-tracking/internal/ratelimit"
	"github.com/harborline/backend-tracking/internal/routing"
)

var (
	// ErrTemporarilyUnavailable means every provider failed for a reason
	// that may clear on its own. Callers should retry later.
	ErrTemporarilyUnavailable = errors.New("tracking temporarily unavailable")
	// ErrNotFound means every provider that answered said the number does
	// not exist. Callers should verify the tracking number.
	ErrNotFound = errors.New("tracking number not found")
)

// Config tunes the aggregation run.
type Config struct {
	// EarlyExitReliability stops the provider sweep once a full success
	// from a provider at or above this reliability arrives. Zero or
	// negative disables early exit.
	EarlyExitReliability float64
	// OverallTimeout bounds one whole aggregation run across all
	// providers. Zero means the caller's context is the only bound.
	OverallTimeout time.Duration
	// LockTTL caps how long a fetch-collapsing lock may be held.
	LockTTL time.Duration
}

// Aggregator queries providers in router order, records failures, caches
// results and merges whatever arrived into one consolidated shipment.
type Aggregator struct {
	registry *provider.Registry
	router   *routing.Router
	results  *cache.Results
	minute   *ratelimit.WindowLimiter
	hourly   ratelimit.Limiter
	history  *History
	locker   *lock.Locker
	logger   zerolog.Logger
	cfg      Config
	now      func() time.Time
}

// New wires an aggregator. The redis-backed hourly limiter and the locker
// are optional; pass a zero Limiter and a nil locker to run without them.
func New(registry *provider.Registry, router *routing.Router, results *cache.Results, minute *ratelimit.WindowLimiter, hourly ratelimit.Limiter, history *History, locker *lock.Locker, logger zerolog.Logger, cfg Config) *Aggregator {
	if minute == nil {
		minute = ratelimit.NewWindowLimiter(time.Minute)
	}
	if history == nil {
		history = NewHistory(0)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Aggregator{
		registry: registry,
		router:   router,
		results:  results,
		minute:   minute,
		hourly:   hourly,
		history:  history,
		locker:   locker,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// History exposes the failure history, mainly for status endpoints.
func (a *Aggregator) History() *History { return a.history }

// Options carries per-request routing preferences.
type Options struct {
	Kind                    provider.Kind
	UserTier                string
	CostOptimization        bool
	ReliabilityOptimization bool
	BypassCache             bool
}

// Fetch returns the consolidated shipment for the number, serving from
// cache when possible. Concurrent cache misses for the same number collapse
// onto one upstream sweep when a locker is configured.
func (a *Aggregator) Fetch(ctx context.Context, trackingNumber string, opts Options) (*ConsolidatedShipment, error) {
	number := provider.NormalizeNumber(trackingNumber)
	key := cache.Key("shipment", number, string(opts.Kind))

	if !opts.BypassCache {
		if shipment, ok := a.cached(ctx, key); ok {
			return shipment, nil
		}
	}

	if a.locker == nil || opts.BypassCache {
		return a.fetchAndCache(ctx, number, key, opts)
	}

	var (
		shipment *ConsolidatedShipment
		fetchErr error
	)
	err := a.locker.WithLock(ctx, "fetch:"+key, a.cfg.LockTTL, func(ctx context.Context) error {
		// Another process may have finished while we waited.
		if hit, ok := a.cached(ctx, key); ok {
			shipment = hit
			return nil
		}
		shipment, fetchErr = a.fetchAndCache(ctx, number, key, opts)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire fetch lock: %w", err)
	}
	return shipment, fetchErr
}

// Refresh bypasses the cache, sweeps the providers again and overwrites the
// cached shipment. Used by the background refresh worker and the explicit
// refresh endpoint.
func (a *Aggregator) Refresh(ctx context.Context, trackingNumber string, kind provider.Kind) (*ConsolidatedShipment, error) {
	return a.Fetch(ctx, trackingNumber, Options{Kind: kind, BypassCache: true})
}

func (a *Aggregator) cached(ctx context.Context, key string) (*ConsolidatedShipment, bool) {
	if a.results == nil {
		return nil, false
	}
	var shipment ConsolidatedShipment
	hit, err := a.results.GetJSON(ctx, key, &shipment)
	if err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("shipment cache read failed")
		return nil, false
	}
	if obs.CacheLookupTotal != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		obs.CacheLookupTotal.WithLabelValues("shipment", result).Inc()
	}
	if !hit {
		return nil, false
	}
	return &shipment, true
}

func (a *Aggregator) fetchAndCache(ctx context.Context, number, key string, opts Options) (*ConsolidatedShipment, error) {
	results, errs, err := a.FetchFromMultipleSources(ctx, number, opts)
	if err != nil {
		return nil, err
	}

	shipment, err := Merge(number, a.resolveKind(number, opts), results, a.now().UTC())
	if err != nil {
		// Unreachable when FetchFromMultipleSources returned results,
		// but keep the binary classification honest.
		return nil, classifyFailure(errs)
	}

	if a.results != nil {
		if cacheErr := a.results.SetJSON(ctx, key, shipment); cacheErr != nil {
			a.logger.Warn().Err(cacheErr).Str("key", key).Msg("shipment cache write failed")
		}
	}
	return shipment, nil
}

func (a *Aggregator) resolveKind(number string, opts Options) provider.Kind {
	if opts.Kind != "" && opts.Kind != provider.KindAuto {
		return opts.Kind
	}
	return a.router.OrderProviders(routing.Context{TrackingNumber: number, Kind: opts.Kind}).Kind
}

// FetchFromMultipleSources sweeps the providers in router order and returns
// every usable result plus every categorized failure. The sweep stops early
// once a sufficiently reliable provider fully succeeds. A nil error implies
// at least one usable result; otherwise the error is one of the two
// sentinels wrapped with detail.
func (a *Aggregator) FetchFromMultipleSources(ctx context.Context, trackingNumber string, opts Options) ([]provider.RawResult, []provider.CategorizedError, error) {
	number := provider.NormalizeNumber(trackingNumber)
	decision := a.router.OrderProviders(routing.Context{
		TrackingNumber:          number,
		Kind:                    opts.Kind,
		UserTier:                opts.UserTier,
		CostOptimization:        opts.CostOptimization,
		ReliabilityOptimization: opts.ReliabilityOptimization,
		PreviousFailures:        a.history.Snapshot(),
	})

	if a.cfg.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.OverallTimeout)
		defer cancel()
	}

	ctx, span := otel.Tracer("aggregator").Start(ctx, "aggregator.sweep")
	span.SetAttributes(
		attribute.String("tracking.kind", string(decision.Kind)),
		attribute.Int("routing.candidates", len(decision.Providers)),
	)
	defer span.End()

	var (
		results   []provider.RawResult
		errs      []provider.CategorizedError
		attempted int
	)
	for _, name := range decision.Providers {
		adapter, ok := a.registry.Get(name)
		if !ok {
			continue
		}
		cfg := adapter.Config()

		if cerr := a.checkBudgets(ctx, cfg); cerr != nil {
			errs = append(errs, *cerr)
			continue
		}

		attempted++
		a.minute.Record(name)
		start := a.now()
		res := adapter.Track(ctx, number, decision.Kind)
		a.observeAttempt(name, res, start)
		span.AddEvent("provider_attempt", trace.WithAttributes(
			attribute.String("provider", name),
			attribute.String("result", string(res.Status)),
		))

		if res.Status == provider.StatusError {
			a.history.Record(name)
			if res.Err != nil {
				errs = append(errs, *res.Err)
			}
			if ctx.Err() != nil {
				a.logger.Warn().Str("tracking_number", number).Msg("aggregation deadline reached")
				break
			}
			continue
		}

		a.history.Clear(name)
		results = append(results, res)
		a.cacheRaw(ctx, number, opts.Kind, res)

		if a.cfg.EarlyExitReliability > 0 &&
			res.Status == provider.StatusSuccess &&
			res.Reliability >= a.cfg.EarlyExitReliability {
			a.logger.Debug().Str("provider", name).Float64("reliability", res.Reliability).Msg("early exit, reliable result")
			break
		}
	}

	if obs.AggregationProvidersAttempted != nil {
		obs.AggregationProvidersAttempted.Observe(float64(attempted))
	}

	if len(results) == 0 {
		err := classifyFailure(errs)
		a.recordOutcome(err)
		return nil, errs, err
	}
	a.recordOutcome(nil)
	return results, errs, nil
}

// checkBudgets enforces the in-process per-minute budget and the shared
// per-hour ceiling. A nil return means the provider may be called.
func (a *Aggregator) checkBudgets(ctx context.Context, cfg provider.Config) *provider.CategorizedError {
	if cfg.RequestsPerMinute > 0 && !a.minute.Allow(cfg.Name, cfg.RequestsPerMinute) {
		if obs.ProviderThrottledTotal != nil {
			obs.ProviderThrottledTotal.WithLabelValues(cfg.Name, "minute").Inc()
		}
		return &provider.CategorizedError{
			Provider:   cfg.Name,
			Kind:       provider.ErrKindRateLimit,
			Message:    "per-minute request budget exhausted",
			RetryAfter: time.Minute,
		}
	}
	if a.hourly.Client != nil && cfg.RequestsPerHour > 0 {
		allowed, _, reset, err := a.hourly.Allow(ctx, ratelimit.ProviderKey(cfg.Name), time.Hour, cfg.RequestsPerHour)
		if err != nil {
			// Fail open: a broken limiter backend must not take every
			// provider down with it.
			a.logger.Warn().Err(err).Str("provider", cfg.Name).Msg("hourly limiter unavailable")
			return nil
		}
		if !allowed {
			if obs.ProviderThrottledTotal != nil {
				obs.ProviderThrottledTotal.WithLabelValues(cfg.Name, "hour").Inc()
			}
			return &provider.CategorizedError{
				Provider:   cfg.Name,
				Kind:       provider.ErrKindRateLimit,
				Message:    "hourly request ceiling reached",
				RetryAfter: time.Until(reset),
			}
		}
	}
	return nil
}

func (a *Aggregator) observeAttempt(name string, res provider.RawResult, start time.Time) {
	result := string(res.Status)
	if res.Status == provider.StatusError && res.Err != nil {
		result = string(res.Err.Kind)
	}
	if obs.ProviderRequestTotal != nil {
		obs.ProviderRequestTotal.WithLabelValues(name, result).Inc()
	}
	if obs.ProviderRequestLatency != nil {
		obs.ProviderRequestLatency.WithLabelValues(name).Observe(float64(a.now().Sub(start).Milliseconds()))
	}
}

func (a *Aggregator) cacheRaw(ctx context.Context, number string, kind provider.Kind, res provider.RawResult) {
	if a.results == nil {
		return
	}
	key := cache.Key("raw", number, string(kind)) + ":" + res.Provider
	if err := a.results.SetJSON(ctx, key, res); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("raw result cache write failed")
	}
}

func (a *Aggregator) recordOutcome(err error) {
	if obs.AggregationTotal == nil {
		return
	}
	switch {
	case err == nil:
		obs.AggregationTotal.WithLabelValues("merged").Inc()
	case errors.Is(err, ErrNotFound):
		obs.AggregationTotal.WithLabelValues("not_found").Inc()
	default:
		obs.AggregationTotal.WithLabelValues("unavailable").Inc()
	}
}

// classifyFailure reduces a total failure to one of two user-facing
// families. Any transient failure (rate limit, network) means the sweep may
// succeed on retry; without one, nothing suggests the providers are at fault
// and the number itself is the most likely culprit.
func classifyFailure(errs []provider.CategorizedError) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w: no providers available", ErrTemporarilyUnavailable)
	}
	for _, e := range errs {
		if e.Kind.Transient() {
			return fmt.Errorf("%w: %d providers failed", ErrTemporarilyUnavailable, len(errs))
		}
	}
	return fmt.Errorf("%w: checked %d providers", ErrNotFound, len(errs))
}
