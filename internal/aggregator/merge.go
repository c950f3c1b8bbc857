package aggregator

import (
	"errors"
	"sort"
	"time"

	"github.com/harborline/backend-tracking/internal/provider"
)

// ErrNoTrackingData is returned by Merge when no result carries a payload.
var ErrNoTrackingData = errors.New("no provider returned tracking data")

// ConsolidatedShipment is the merged view of one tracking number across
// every provider that answered. DataSource names the primary provider whose
// headline fields (carrier, status, vessel, route) won; the timeline is the
// deduplicated union of all sources.
type ConsolidatedShipment struct {
	TrackingNumber string                   `json:"trackingNumber"`
	Kind           provider.Kind            `json:"kind"`
	Carrier        string                   `json:"carrier"`
	Status         string                   `json:"status"`
	ServiceType    string                   `json:"serviceType,omitempty"`
	Timeline       []provider.TimelineEvent `json:"timeline"`
	Containers     []provider.Container     `json:"containers,omitempty"`
	Vessel         *provider.Vessel         `json:"vessel,omitempty"`
	Route          *provider.Route          `json:"route,omitempty"`
	DataSource     string                   `json:"dataSource"`
	Reliability    float64                  `json:"reliability"`
	Sources        []string                 `json:"sources"`
	LastUpdated    time.Time                `json:"lastUpdated"`
}

// Merge consolidates the per-provider results into one shipment. Results
// without a payload are ignored. The primary provider is the most reliable
// one, partial or not; ties keep the earlier result, which preserves the
// router's ordering. Gaps a partial primary leaves (vessel, route) are
// filled from the remaining sources below.
func Merge(trackingNumber string, kind provider.Kind, results []provider.RawResult, mergedAt time.Time) (*ConsolidatedShipment, error) {
	usable := make([]provider.RawResult, 0, len(results))
	for _, r := range results {
		if r.Payload == nil || r.Status == provider.StatusError {
			continue
		}
		usable = append(usable, r)
	}
	if len(usable) == 0 {
		return nil, ErrNoTrackingData
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].Reliability > usable[j].Reliability
	})
	primary := usable[0]

	shipment := &ConsolidatedShipment{
		TrackingNumber: provider.NormalizeNumber(trackingNumber),
		Kind:           kind,
		Carrier:        primary.Payload.Carrier,
		Status:         primary.Payload.Status,
		ServiceType:    primary.Payload.ServiceType,
		Vessel:         primary.Payload.Vessel,
		Route:          primary.Payload.Route,
		DataSource:     primary.Provider,
		Reliability:    primary.Reliability,
		LastUpdated:    mergedAt,
	}

	seenEvents := make(map[string]struct{})
	seenContainers := make(map[string]struct{})
	for _, r := range usable {
		shipment.Sources = append(shipment.Sources, r.Provider)
		for _, ev := range r.Payload.Timeline {
			key := ev.DedupKey()
			if _, dup := seenEvents[key]; dup {
				continue
			}
			seenEvents[key] = struct{}{}
			shipment.Timeline = append(shipment.Timeline, ev)
		}
		for _, c := range r.Payload.Containers {
			if _, dup := seenContainers[c.Number]; dup {
				continue
			}
			seenContainers[c.Number] = struct{}{}
			shipment.Containers = append(shipment.Containers, c)
		}
		if shipment.Vessel == nil {
			shipment.Vessel = r.Payload.Vessel
		}
		if shipment.Route == nil {
			shipment.Route = r.Payload.Route
		}
	}

	sort.SliceStable(shipment.Timeline, func(i, j int) bool {
		return shipment.Timeline[i].Timestamp.Before(shipment.Timeline[j].Timestamp)
	})
	if shipment.Timeline == nil {
		shipment.Timeline = []provider.TimelineEvent{}
	}

	return shipment, nil
}
