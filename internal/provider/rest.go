package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/harborline/backend-tracking/internal/resilience"
)

// maxResponseBytes bounds how much of an upstream body is read. Tracking
// payloads are small; anything bigger is a misbehaving provider.
const maxResponseBytes = 1 << 20

// RESTAdapter is the single adapter implementation shared by every carrier
// and aggregator. Per-provider behaviour comes from the Config and Table it
// is constructed with, not from subclassing.
type RESTAdapter struct {
	cfg    Config
	table  Table
	client resilience.HTTPClient
	logger zerolog.Logger
}

// NewRESTAdapter builds an adapter for one provider spec. The underlying
// HTTP client applies the provider's retry budget and a circuit breaker
// labelled with the provider name.
func NewRESTAdapter(spec Spec, logger zerolog.Logger) *RESTAdapter {
	cfg := spec.Config
	componentLogger := logger.With().Str("provider", cfg.Name).Logger()
	breaker := resilience.NewBreaker(5, 0.6, 30*time.Second).
		WithProvider(cfg.Name).
		WithLogger(componentLogger)
	return &RESTAdapter{
		cfg:   cfg,
		table: spec.Table,
		client: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBaseDelay,
			MaxBackoff:  cfg.RetryMaxDelay,
			MaxAttempts: cfg.RetryAttempts,
			Jitter:      0.2,
			Timeout:     cfg.Timeout,
		},
		logger: componentLogger,
	}
}

// Name returns the provider identifier.
func (a *RESTAdapter) Name() string { return a.cfg.Name }

// Available reports whether a credential is configured.
func (a *RESTAdapter) Available() bool { return a.cfg.Available() }

// Config returns the static provider descriptor.
func (a *RESTAdapter) Config() Config { return a.cfg }

// Track queries the provider for one tracking number. Failures are always
// recovered into the result's CategorizedError; Track never panics and never
// lets a transport error escape.
func (a *RESTAdapter) Track(ctx context.Context, trackingNumber string, kind Kind) RawResult {
	number := NormalizeNumber(trackingNumber)
	if !a.Available() {
		return ErrorResult(a.cfg, number, &CategorizedError{
			Provider: a.cfg.Name,
			Kind:     ErrKindAuth,
			Message:  "no credential configured",
		})
	}

	req, err := a.buildRequest(ctx, number, kind)
	if err != nil {
		return ErrorResult(a.cfg, number, &CategorizedError{
			Provider: a.cfg.Name,
			Kind:     ErrKindInvalidResponse,
			Message:  "build request: " + err.Error(),
		})
	}

	started := time.Now()
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		if errors.Is(err, resilience.ErrOpenCircuit) {
			return ErrorResult(a.cfg, number, &CategorizedError{
				Provider: a.cfg.Name,
				Kind:     ErrKindNetwork,
				Message:  "provider circuit open",
			})
		}
		cerr := Classify(a.cfg.Name, nil, err, a.table.DefaultRetryAfter)
		a.logAttempt(number, started, cerr)
		return ErrorResult(a.cfg, number, cerr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		cerr := Classify(a.cfg.Name, resp, nil, a.table.DefaultRetryAfter)
		a.logAttempt(number, started, cerr)
		return ErrorResult(a.cfg, number, cerr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		cerr := Classify(a.cfg.Name, nil, err, a.table.DefaultRetryAfter)
		return ErrorResult(a.cfg, number, cerr)
	}

	payload, partial, err := a.decode(body)
	if err != nil {
		return ErrorResult(a.cfg, number, &CategorizedError{
			Provider:   a.cfg.Name,
			Kind:       ErrKindInvalidResponse,
			Message:    "decode response: " + err.Error(),
			StatusCode: resp.StatusCode,
		})
	}

	status := StatusSuccess
	if partial {
		status = StatusPartial
	}
	a.logger.Debug().
		Str("tracking_number", number).
		Str("status", string(status)).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("provider_track")
	return RawResult{
		Provider:       a.cfg.Name,
		TrackingNumber: number,
		Payload:        payload,
		CapturedAt:     time.Now(),
		Reliability:    a.cfg.Reliability,
		Status:         status,
	}
}

func (a *RESTAdapter) buildRequest(ctx context.Context, number string, kind Kind) (*http.Request, error) {
	path := strings.ReplaceAll(a.table.Endpoint(kind), "{number}", url.PathEscape(number))
	target := strings.TrimRight(a.cfg.BaseURL, "/") + path
	if a.table.Auth == AuthQuery {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + url.QueryEscape(a.table.AuthKey) + "=" + url.QueryEscape(a.cfg.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	switch a.table.Auth {
	case AuthBearer:
		req.Header.Set(a.table.AuthKey, "Bearer "+a.cfg.APIKey)
	case AuthHeader:
		req.Header.Set(a.table.AuthKey, a.cfg.APIKey)
	}
	return req, nil
}

// wireDoc is the upstream document shape shared by the integrated providers.
// Vocabulary differences live in the carrier tables, not here.
type wireDoc struct {
	Carrier     string          `json:"carrier"`
	Status      string          `json:"status"`
	ServiceType string          `json:"service_type"`
	Events      []wireEvent     `json:"events"`
	Containers  []wireContainer `json:"containers"`
	Vessel      *wireVessel     `json:"vessel"`
	Route       *wireRoute      `json:"route"`
}

type wireEvent struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Time        string   `json:"time"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Completed   bool     `json:"completed"`
	Latitude    *float64 `json:"lat"`
	Longitude   *float64 `json:"lon"`
}

type wireContainer struct {
	Number string `json:"number"`
	Size   string `json:"size"`
	Type   string `json:"type"`
}

type wireVessel struct {
	Name   string `json:"name"`
	IMO    string `json:"imo"`
	Voyage string `json:"voyage"`
}

type wireRoute struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	ETD         string `json:"etd"`
	ETA         string `json:"eta"`
}

func (a *RESTAdapter) decode(body []byte) (*Payload, bool, error) {
	var doc wireDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false, err
	}

	carrier := doc.Carrier
	if carrier == "" {
		carrier = a.table.Carrier
	}

	timeline := make([]TimelineEvent, 0, len(doc.Events))
	dropped := 0
	for i, ev := range doc.Events {
		ts, err := parseEventTime(ev.Time)
		if err != nil {
			dropped++
			continue
		}
		id := ev.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", a.cfg.Name, i)
		}
		timeline = append(timeline, TimelineEvent{
			ID:          id,
			Timestamp:   ts,
			Status:      a.table.MapEvent(firstNonEmpty(ev.Code, ev.Description)),
			Location:    strings.TrimSpace(ev.Location),
			Description: strings.TrimSpace(ev.Description),
			Completed:   ev.Completed,
			Latitude:    ev.Latitude,
			Longitude:   ev.Longitude,
		})
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})

	payload := &Payload{
		Carrier:     carrier,
		Status:      a.table.MapStatus(doc.Status),
		ServiceType: strings.TrimSpace(doc.ServiceType),
		Timeline:    timeline,
	}
	for _, c := range doc.Containers {
		if strings.TrimSpace(c.Number) == "" {
			continue
		}
		payload.Containers = append(payload.Containers, Container{
			Number: NormalizeNumber(c.Number),
			Size:   c.Size,
			Type:   c.Type,
		})
	}
	if doc.Vessel != nil && doc.Vessel.Name != "" {
		payload.Vessel = &Vessel{Name: doc.Vessel.Name, IMO: doc.Vessel.IMO, Voyage: doc.Vessel.Voyage}
	}
	if doc.Route != nil {
		route := &Route{Origin: doc.Route.Origin, Destination: doc.Route.Destination}
		if ts, err := parseEventTime(doc.Route.ETD); err == nil {
			route.ETD = &ts
		}
		if ts, err := parseEventTime(doc.Route.ETA); err == nil {
			route.ETA = &ts
		}
		if route.Origin != "" || route.Destination != "" || route.ETD != nil || route.ETA != nil {
			payload.Route = route
		}
	}

	partial := len(timeline) == 0 || dropped > 0 || strings.TrimSpace(doc.Status) == ""
	return payload, partial, nil
}

func parseEventTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (a *RESTAdapter) logAttempt(number string, started time.Time, cerr *CategorizedError) {
	a.logger.Warn().
		Str("tracking_number", number).
		Str("error_kind", string(cerr.Kind)).
		Str("error", cerr.Message).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("provider_track_failed")
}
