package track_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harborline/backend-tracking/internal/aggregator"
	"github.com/harborline/backend-tracking/internal/cache"
	"github.com/harborline/backend-tracking/internal/provider"
	"github.com/harborline/backend-tracking/internal/queue"
	"github.com/harborline/backend-tracking/internal/ratelimit"
	"github.com/harborline/backend-tracking/internal/routing"
	"github.com/harborline/backend-tracking/internal/track"
)

type fakeAdapter struct {
	cfg   provider.Config
	track func(ctx context.Context, number string, kind provider.Kind) provider.RawResult
}

func (f *fakeAdapter) Name() string            { return f.cfg.Name }
func (f *fakeAdapter) Available() bool         { return f.cfg.Available() }
func (f *fakeAdapter) Config() provider.Config { return f.cfg }

func (f *fakeAdapter) Track(ctx context.Context, number string, kind provider.Kind) provider.RawResult {
	return f.track(ctx, number, kind)
}

func successAdapter(name string, reliability float64) *fakeAdapter {
	a := &fakeAdapter{cfg: provider.Config{
		Name:        name,
		APIKey:      "secret-key",
		Reliability: reliability,
		Cost:        provider.CostStandard,
		Kinds:       []provider.Kind{provider.KindContainer, provider.KindBooking, provider.KindBOL},
		Specialties: []string{"ocean"},
	}}
	a.track = func(_ context.Context, number string, _ provider.Kind) provider.RawResult {
		return provider.RawResult{
			Provider:       name,
			TrackingNumber: number,
			Reliability:    reliability,
			Status:         provider.StatusSuccess,
			CapturedAt:     time.Now().UTC(),
			Payload: &provider.Payload{
				Carrier: "Maersk",
				Status:  "in transit",
				Timeline: []provider.TimelineEvent{{
					Timestamp: time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
					Status:    "loaded on vessel",
					Location:  "Shanghai",
				}},
			},
		}
	}
	return a
}

func errorAdapter(name string, kind provider.ErrorKind) *fakeAdapter {
	a := &fakeAdapter{cfg: provider.Config{
		Name:        name,
		APIKey:      "k",
		Reliability: 0.9,
		Cost:        provider.CostStandard,
		Kinds:       []provider.Kind{provider.KindContainer, provider.KindBooking, provider.KindBOL},
	}}
	a.track = func(context.Context, string, provider.Kind) provider.RawResult {
		return provider.RawResult{
			Provider: name,
			Status:   provider.StatusError,
			Err:      &provider.CategorizedError{Provider: name, Kind: kind, Message: string(kind)},
		}
	}
	return a
}

type testEnv struct {
	router *chi.Mux
	redis  *redis.Client
}

func newEnv(t *testing.T, withQueue bool, adapters ...*fakeAdapter) testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	list := make([]provider.Adapter, 0, len(adapters))
	configs := make([]provider.Config, 0, len(adapters))
	for _, a := range adapters {
		list = append(list, a)
		configs = append(configs, a.cfg)
	}
	registry := provider.NewRegistryFromAdapters(list...)
	agg := aggregator.New(
		registry,
		routing.NewRouter(configs, nil, routing.Weights{}),
		cache.NewResults(client, 15*time.Minute),
		nil, ratelimit.Limiter{}, nil, nil,
		zerolog.Nop(),
		aggregator.Config{EarlyExitReliability: 0.9},
	)

	h := &track.Handler{
		Agg:      agg,
		Registry: registry,
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}
	if withQueue {
		h.Queue = queue.Enqueuer{R: client, Prefix: "api", DedupTTL: time.Minute}
	}

	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return testEnv{router: r, redis: client}
}

func TestGetTrackingSuccess(t *testing.T) {
	env := newEnv(t, false, successAdapter("maersk", 0.95))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/MAEU1234567?type=container", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data aggregator.ConsolidatedShipment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "MAEU1234567", resp.Data.TrackingNumber)
	require.Equal(t, "maersk", resp.Data.DataSource)
	require.Len(t, resp.Data.Timeline, 1)
}

func TestGetTrackingNotFound(t *testing.T) {
	env := newEnv(t, false, errorAdapter("maersk", provider.ErrKindNotFound))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/MAEU1234567", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
	require.Contains(t, resp.Error.Message, "verify")
}

func TestGetTrackingTemporarilyUnavailable(t *testing.T) {
	env := newEnv(t, false, errorAdapter("maersk", provider.ErrKindNetwork))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/MAEU1234567", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "TEMPORARILY_UNAVAILABLE", resp.Error.Code)
}

func TestGetTrackingRejectsInvalidNumber(t *testing.T) {
	env := newEnv(t, false, successAdapter("maersk", 0.95))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/abc", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRefreshSchedulesTask(t *testing.T) {
	env := newEnv(t, true, successAdapter("maersk", 0.95))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tracking/MAEU1234567/refresh?type=container", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	depth, err := env.redis.ZCard(context.Background(), "api:queue:"+queue.KindRefresh).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestRefreshInlineWithoutQueue(t *testing.T) {
	env := newEnv(t, false, successAdapter("maersk", 0.95))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tracking/MAEU1234567/refresh", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data aggregator.ConsolidatedShipment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "maersk", resp.Data.DataSource)
}

func TestListProvidersHidesCredentials(t *testing.T) {
	env := newEnv(t, false, successAdapter("maersk", 0.95), successAdapter("msc", 0.9))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotContains(t, rr.Body.String(), "apiKey")
	require.NotContains(t, rr.Body.String(), "secret-key")

	var resp struct {
		Data  []map[string]any `json:"data"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	names := []string{resp.Data[0]["name"].(string), resp.Data[1]["name"].(string)}
	require.ElementsMatch(t, []string{"maersk", "msc"}, names)
}
