package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the category of a tracking number.
type Kind string

const (
	// KindContainer tracks an individual container number.
	KindContainer Kind = "container"
	// KindBooking tracks a carrier booking reference.
	KindBooking Kind = "booking"
	// KindBOL tracks a bill of lading number.
	KindBOL Kind = "bol"
	// KindAuto lets the router infer the kind from the number format.
	KindAuto Kind = "auto"
)

// ParseKind normalises a caller-supplied kind string. Unknown or empty values
// resolve to KindAuto.
func ParseKind(value string) Kind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "container":
		return KindContainer
	case "booking":
		return KindBooking
	case "bol", "bill_of_lading", "bill-of-lading":
		return KindBOL
	default:
		return KindAuto
	}
}

// CostTier buckets providers by the commercial cost of a query.
type CostTier string

const (
	CostFree     CostTier = "free"
	CostStandard CostTier = "standard"
	CostPremium  CostTier = "premium"
)

// Weight returns a numeric cost used by the routing score. Free providers
// cost nothing, premium ones the most.
func (t CostTier) Weight() float64 {
	switch t {
	case CostFree:
		return 0
	case CostPremium:
		return 1
	default:
		return 0.5
	}
}

// Config is the immutable descriptor of one upstream tracking provider. It is
// assembled at startup from environment-supplied credentials and never
// mutated afterwards.
type Config struct {
	Name              string
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	RequestsPerHour   int
	Reliability       float64
	Timeout           time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	Kinds             []Kind
	Specialties       []string
	Cost              CostTier
}

// Available reports whether the provider holds a credential. Providers
// without one never enter the active set.
func (c Config) Available() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Supports reports whether the provider can resolve the given kind. KindAuto
// matches any provider.
func (c Config) Supports(kind Kind) bool {
	if kind == KindAuto || kind == "" {
		return true
	}
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TimelineEvent is a single milestone on a shipment timeline. Identity for
// deduplication is the (Timestamp, Status, Location) tuple.
type TimelineEvent struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Status      string     `json:"status"`
	Location    string     `json:"location"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
}

// DedupKey returns the identity tuple used to detect duplicate events across
// providers.
func (e TimelineEvent) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", e.Timestamp.UnixNano(), e.Status, e.Location)
}

// Container describes one container attached to a shipment.
type Container struct {
	Number string `json:"number"`
	Size   string `json:"size,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Vessel describes the vessel currently carrying the shipment.
type Vessel struct {
	Name   string `json:"name"`
	IMO    string `json:"imo,omitempty"`
	Voyage string `json:"voyage,omitempty"`
}

// Route describes origin/destination and schedule estimates.
type Route struct {
	Origin      string     `json:"origin,omitempty"`
	Destination string     `json:"destination,omitempty"`
	ETD         *time.Time `json:"etd,omitempty"`
	ETA         *time.Time `json:"eta,omitempty"`
}

// Payload is the normalised tracking data every adapter produces regardless
// of the upstream wire vocabulary.
type Payload struct {
	Carrier     string          `json:"carrier"`
	Status      string          `json:"status"`
	ServiceType string          `json:"serviceType,omitempty"`
	Timeline    []TimelineEvent `json:"timeline"`
	Containers  []Container     `json:"containers,omitempty"`
	Vessel      *Vessel         `json:"vessel,omitempty"`
	Route       *Route          `json:"route,omitempty"`
}

// ResultStatus is the lifecycle status of one provider attempt.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusPartial ResultStatus = "partial"
	StatusError   ResultStatus = "error"
)

// RawResult is the outcome of asking one provider about one tracking number.
// Status == StatusSuccess implies Payload is non-nil.
type RawResult struct {
	Provider       string            `json:"provider"`
	TrackingNumber string            `json:"trackingNumber"`
	Payload        *Payload          `json:"payload,omitempty"`
	CapturedAt     time.Time         `json:"capturedAt"`
	Reliability    float64           `json:"reliability"`
	Status         ResultStatus      `json:"status"`
	Err            *CategorizedError `json:"error,omitempty"`
}

// Adapter is the uniform capability every carrier or aggregator integration
// exposes. Track never returns a Go error: failures are recovered into the
// result's CategorizedError so the aggregator can continue past any single
// provider.
type Adapter interface {
	Name() string
	Track(ctx context.Context, trackingNumber string, kind Kind) RawResult
	Available() bool
	Config() Config
}

// NormalizeNumber trims and uppercases a raw tracking number before it is
// sent upstream or used as a cache key.
func NormalizeNumber(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
