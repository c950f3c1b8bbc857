// Package routing decides which providers to query for a tracking number and
// in what order. It is pure computation: no I/O, deterministic for identical
// inputs, which keeps it unit-testable without network doubles.
package routing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harborline/backend-tracking/internal/provider"
)

// Strategy names the fallback posture chosen for a request.
type Strategy string

const (
	StrategyFreeFirst        Strategy = "free_first"
	StrategyPaidFirst        Strategy = "paid_first"
	StrategyReliabilityFirst Strategy = "reliability_first"
)

// Context carries everything the router needs to order providers for one
// request. PreviousFailures is a snapshot of recent per-provider failure
// counts for this number.
type Context struct {
	TrackingNumber          string
	Kind                    provider.Kind
	UserTier                string
	PreviousFailures        map[string]int
	CostOptimization        bool
	ReliabilityOptimization bool
}

// Decision is the router's output: a provider priority order plus the
// reasoning that produced it.
type Decision struct {
	Providers        []string
	SuggestedCarrier string
	Confidence       float64
	Kind             provider.Kind
	Strategy         Strategy
	Reasoning        []string
}

// Weights tunes the composite provider score. Zero values fall back to the
// defaults below.
type Weights struct {
	Reliability  float64
	Cost         float64
	CarrierMatch float64
	FailureStep  float64
}

func (w Weights) orDefaults() Weights {
	if w.Reliability == 0 {
		w.Reliability = 1.0
	}
	if w.Cost == 0 {
		w.Cost = 0.3
	}
	if w.CarrierMatch == 0 {
		w.CarrierMatch = 0.5
	}
	if w.FailureStep == 0 {
		w.FailureStep = 0.25
	}
	return w
}

// Router orders providers for tracking requests. Construct once at startup
// with the active provider table; it holds no mutable state.
type Router struct {
	patterns  []Pattern
	providers []provider.Config
	weights   Weights
}

// NewRouter builds a router over the active provider configs.
func NewRouter(providers []provider.Config, patterns []Pattern, weights Weights) *Router {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Router{patterns: patterns, providers: providers, weights: weights.orDefaults()}
}

// OrderProviders produces the provider priority order and fallback strategy
// for the request. Pure: identical inputs yield identical decisions.
func (r *Router) OrderProviders(reqCtx Context) Decision {
	number := provider.NormalizeNumber(reqCtx.TrackingNumber)
	m := matchNumber(r.patterns, number)

	kind := reqCtx.Kind
	if kind == "" || kind == provider.KindAuto {
		kind = m.kind
	}

	strategy := chooseStrategy(reqCtx)
	weights := r.weights

	reasoning := make([]string, 0, 4)
	if m.matched {
		reasoning = append(reasoning, fmt.Sprintf("pattern match: %s (confidence %.2f)", m.carrier, m.confidence))
	} else {
		reasoning = append(reasoning, fmt.Sprintf("no pattern match, heuristic kind %q (confidence %.2f)", m.kind, m.confidence))
	}
	reasoning = append(reasoning, "strategy: "+string(strategy))

	type scored struct {
		name  string
		score float64
	}
	eligible := make([]scored, 0, len(r.providers))
	for _, cfg := range r.providers {
		if !cfg.Available() || !cfg.Supports(kind) {
			continue
		}
		score := weights.Reliability * cfg.Reliability
		score -= weights.Cost * costBias(strategy, cfg.Cost)
		if m.matched && strings.EqualFold(cfg.Name, m.provider) {
			score += weights.CarrierMatch * m.confidence
		}
		if failures := reqCtx.PreviousFailures[cfg.Name]; failures > 0 {
			score -= weights.FailureStep * float64(failures)
		}
		eligible = append(eligible, scored{name: cfg.Name, score: score})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		// Providers that just failed for this number rank below clean ones
		// even when the raw score says otherwise.
		aFailed := reqCtx.PreviousFailures[a.name] > 0
		bFailed := reqCtx.PreviousFailures[b.name] > 0
		if aFailed != bFailed {
			return bFailed
		}
		if a.score != b.score {
			return a.score > b.score
		}
		return a.name < b.name
	})

	names := make([]string, len(eligible))
	for i, s := range eligible {
		names[i] = s.name
	}
	if len(names) > 0 {
		reasoning = append(reasoning, "first choice: "+names[0])
	}

	return Decision{
		Providers:        names,
		SuggestedCarrier: m.carrier,
		Confidence:       m.confidence,
		Kind:             kind,
		Strategy:         strategy,
		Reasoning:        reasoning,
	}
}

func chooseStrategy(reqCtx Context) Strategy {
	switch {
	case reqCtx.ReliabilityOptimization:
		return StrategyReliabilityFirst
	case reqCtx.CostOptimization:
		return StrategyFreeFirst
	case strings.EqualFold(reqCtx.UserTier, "free"):
		return StrategyFreeFirst
	case strings.EqualFold(reqCtx.UserTier, "enterprise"):
		return StrategyPaidFirst
	default:
		return StrategyReliabilityFirst
	}
}

// costBias converts a cost tier into a score penalty appropriate for the
// strategy. Under paid_first expensive providers are rewarded instead.
func costBias(strategy Strategy, tier provider.CostTier) float64 {
	switch strategy {
	case StrategyFreeFirst:
		return tier.Weight() * 2
	case StrategyPaidFirst:
		return -tier.Weight()
	default:
		return tier.Weight()
	}
}
