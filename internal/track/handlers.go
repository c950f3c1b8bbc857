package track

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/harborline/backend-tracking/internal/aggregator"
	"github.com/harborline/backend-tracking/internal/common"
	"github.com/harborline/backend-tracking/internal/provider"
	"github.com/harborline/backend-tracking/internal/queue"
)

// Handler exposes HTTP endpoints for shipment tracking.
type Handler struct {
	Agg      *aggregator.Aggregator
	Registry *provider.Registry
	Queue    queue.Enqueuer
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Routes mounts the tracking endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tracking/{number}", h.GetTracking)
	r.Post("/tracking/{number}/refresh", h.RefreshTracking)
	r.Get("/providers", h.ListProviders)
}

// GetTracking resolves a tracking number across every configured provider
// and returns the consolidated shipment.
func (h *Handler) GetTracking(w http.ResponseWriter, r *http.Request) {
	number, ok := h.trackingNumber(w, r)
	if !ok {
		return
	}
	opts := optionsFromRequest(r)

	shipment, err := h.Agg.Fetch(r.Context(), number, opts)
	if err != nil {
		h.writeFetchError(w, number, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": shipment})
}

// RefreshTracking schedules a background refresh of the shipment. When no
// queue is configured the refresh runs inline.
func (h *Handler) RefreshTracking(w http.ResponseWriter, r *http.Request) {
	number, ok := h.trackingNumber(w, r)
	if !ok {
		return
	}
	kind := provider.ParseKind(r.URL.Query().Get("type"))

	if h.Queue.R == nil {
		shipment, err := h.Agg.Refresh(r.Context(), number, kind)
		if err != nil {
			h.writeFetchError(w, number, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": shipment})
		return
	}

	if err := queue.EnqueueRefresh(r.Context(), h.Queue, number, kind, 0); err != nil {
		h.Logger.Error().Err(err).Str("tracking_number", number).Msg("enqueue refresh failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not schedule refresh", nil)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{
		"data": map[string]any{
			"trackingNumber": provider.NormalizeNumber(number),
			"kind":           string(kind),
			"status":         "scheduled",
		},
	})
}

type providerInfo struct {
	Name              string   `json:"name"`
	Reliability       float64  `json:"reliability"`
	Cost              string   `json:"cost"`
	Kinds             []string `json:"kinds"`
	Specialties       []string `json:"specialties,omitempty"`
	RequestsPerMinute int      `json:"requestsPerMinute,omitempty"`
	RequestsPerHour   int      `json:"requestsPerHour,omitempty"`
	RecentFailures    int      `json:"recentFailures"`
}

// ListProviders reports the active provider set, their reliability tiers and
// recent failure counts. Credentials never appear in the response.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	failures := map[string]int{}
	if h.Agg != nil {
		failures = h.Agg.History().Snapshot()
	}
	configs := h.Registry.Configs()
	infos := make([]providerInfo, 0, len(configs))
	for _, cfg := range configs {
		kinds := make([]string, 0, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			kinds = append(kinds, string(k))
		}
		infos = append(infos, providerInfo{
			Name:              cfg.Name,
			Reliability:       cfg.Reliability,
			Cost:              string(cfg.Cost),
			Kinds:             kinds,
			Specialties:       cfg.Specialties,
			RequestsPerMinute: cfg.RequestsPerMinute,
			RequestsPerHour:   cfg.RequestsPerHour,
			RecentFailures:    failures[cfg.Name],
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"total": len(infos),
	})
}

func (h *Handler) trackingNumber(w http.ResponseWriter, r *http.Request) (string, bool) {
	number := provider.NormalizeNumber(chi.URLParam(r, "number"))
	if h.Validate != nil {
		if err := h.Validate.Var(number, "required,alphanum,min=6,max=30"); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tracking number", nil)
			return "", false
		}
	} else if number == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tracking number", nil)
		return "", false
	}
	return number, true
}

func (h *Handler) writeFetchError(w http.ResponseWriter, number string, err error) {
	var appErr *common.AppError
	switch {
	case errors.Is(err, aggregator.ErrNotFound):
		appErr = common.NewAppError("NOT_FOUND",
			"tracking number not found, verify the number and try again",
			http.StatusNotFound, err)
	case errors.Is(err, aggregator.ErrTemporarilyUnavailable):
		w.Header().Set("Retry-After", strconv.Itoa(int((30 * time.Second).Seconds())))
		appErr = common.NewAppError("TEMPORARILY_UNAVAILABLE",
			"tracking providers are temporarily unavailable, retry later",
			http.StatusServiceUnavailable, err)
	default:
		h.Logger.Error().Err(err).Str("tracking_number", number).Msg("tracking fetch failed")
		appErr = common.NewAppError("INTERNAL", "tracking lookup failed",
			http.StatusInternalServerError, err)
	}
	common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}

func optionsFromRequest(r *http.Request) aggregator.Options {
	q := r.URL.Query()
	opts := aggregator.Options{
		Kind:     provider.ParseKind(q.Get("type")),
		UserTier: strings.TrimSpace(q.Get("tier")),
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("optimize"))) {
	case "cost":
		opts.CostOptimization = true
	case "reliability":
		opts.ReliabilityOptimization = true
	}
	if q.Get("fresh") == "true" {
		opts.BypassCache = true
	}
	return opts
}
