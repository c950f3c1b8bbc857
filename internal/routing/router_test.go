package routing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harborline/backend-tracking/internal/provider"
	"github.com/harborline/backend-tracking/internal/routing"
)

func testProviders() []provider.Config {
	return []provider.Config{
		{
			Name: "maersk", APIKey: "k", Reliability: 0.95, Cost: provider.CostPremium,
			Kinds: []provider.Kind{provider.KindContainer, provider.KindBooking, provider.KindBOL},
		},
		{
			Name: "msc", APIKey: "k", Reliability: 0.9, Cost: provider.CostStandard,
			Kinds: []provider.Kind{provider.KindContainer, provider.KindBooking},
		},
		{
			Name: "searates", APIKey: "k", Reliability: 0.75, Cost: provider.CostFree,
			Kinds: []provider.Kind{provider.KindContainer, provider.KindBOL},
		},
	}
}

func newTestRouter() *routing.Router {
	return routing.NewRouter(testProviders(), nil, routing.Weights{})
}

func TestPatternMatchSuggestsCarrier(t *testing.T) {
	t.Parallel()

	decision := newTestRouter().OrderProviders(routing.Context{TrackingNumber: "maeu1234567"})
	require.Equal(t, "Maersk", decision.SuggestedCarrier)
	require.Equal(t, provider.KindContainer, decision.Kind)
	require.GreaterOrEqual(t, decision.Confidence, 0.9)
	require.Equal(t, "maersk", decision.Providers[0], "matched carrier's provider ranks first")
}

func TestGenericISOContainerLowerConfidence(t *testing.T) {
	t.Parallel()

	decision := newTestRouter().OrderProviders(routing.Context{TrackingNumber: "TRLU9876543"})
	require.Empty(t, decision.SuggestedCarrier)
	require.Equal(t, provider.KindContainer, decision.Kind)
	require.Less(t, decision.Confidence, 0.9)
}

func TestHeuristicFallbackForUnknownFormats(t *testing.T) {
	t.Parallel()

	decision := newTestRouter().OrderProviders(routing.Context{TrackingNumber: "12345678"})
	require.Equal(t, provider.KindBooking, decision.Kind)
	require.Less(t, decision.Confidence, 0.6)
	// searates does not support bookings, so it is excluded.
	require.NotContains(t, decision.Providers, "searates")
}

func TestRecentFailuresDemoteProvider(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	clean := router.OrderProviders(routing.Context{TrackingNumber: "MAEU1234567"})
	require.Equal(t, "maersk", clean.Providers[0])

	demoted := router.OrderProviders(routing.Context{
		TrackingNumber:   "MAEU1234567",
		PreviousFailures: map[string]int{"maersk": 2},
	})
	require.NotEqual(t, "maersk", demoted.Providers[0], "a provider that just failed must not lead")
	require.Contains(t, demoted.Providers, "maersk", "failed providers stay eligible as fallback")
}

func TestCostOptimizationPrefersFreeTier(t *testing.T) {
	t.Parallel()

	decision := newTestRouter().OrderProviders(routing.Context{
		TrackingNumber:   "TRLU9876543",
		CostOptimization: true,
	})
	require.Equal(t, routing.StrategyFreeFirst, decision.Strategy)
	require.Equal(t, "searates", decision.Providers[0])
}

func TestFreeUserTierBiasesFreeFirst(t *testing.T) {
	t.Parallel()

	decision := newTestRouter().OrderProviders(routing.Context{
		TrackingNumber: "TRLU9876543",
		UserTier:       "free",
	})
	require.Equal(t, routing.StrategyFreeFirst, decision.Strategy)
}

func TestReliabilityOptimizationWinsOverCost(t *testing.T) {
	t.Parallel()

	decision := newTestRouter().OrderProviders(routing.Context{
		TrackingNumber:          "TRLU9876543",
		CostOptimization:        true,
		ReliabilityOptimization: true,
	})
	require.Equal(t, routing.StrategyReliabilityFirst, decision.Strategy)
}

func TestDecisionIsDeterministic(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	reqCtx := routing.Context{
		TrackingNumber:   "MSCU7654321",
		PreviousFailures: map[string]int{"msc": 1},
		UserTier:         "standard",
	}
	first := router.OrderProviders(reqCtx)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, router.OrderProviders(reqCtx))
	}
}

func TestUnavailableProvidersExcluded(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	providers[0].APIKey = ""
	router := routing.NewRouter(providers, nil, routing.Weights{})

	decision := router.OrderProviders(routing.Context{TrackingNumber: "MAEU1234567"})
	require.NotContains(t, decision.Providers, "maersk")
}

func TestExplicitKindOverridesInference(t *testing.T) {
	t.Parallel()

	decision := newTestRouter().OrderProviders(routing.Context{
		TrackingNumber: "MAEU1234567",
		Kind:           provider.KindBOL,
	})
	require.Equal(t, provider.KindBOL, decision.Kind)
	// msc has no bol support.
	require.NotContains(t, decision.Providers, "msc")
}
