package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harborline/backend-tracking/internal/provider"
)

// KindRefresh is the task kind for background shipment refreshes.
const KindRefresh = "tracking:refresh"

// RefreshPayload is the body of one refresh task.
type RefreshPayload struct {
	TrackingNumber string `json:"trackingNumber"`
	Kind           string `json:"kind,omitempty"`
}

// EnqueueRefresh schedules a background refresh for the tracking number. The
// idempotency key is derived from the normalized number and kind, so bursts
// of refresh requests for the same shipment collapse into a single task
// within the dedup window.
func EnqueueRefresh(ctx context.Context, e Enqueuer, trackingNumber string, kind provider.Kind, delay time.Duration) error {
	number := provider.NormalizeNumber(trackingNumber)
	if number == "" {
		return fmt.Errorf("queue: tracking number is required")
	}
	payload, err := json.Marshal(RefreshPayload{TrackingNumber: number, Kind: string(kind)})
	if err != nil {
		return err
	}
	return e.Enqueue(ctx, Task{
		Kind:           KindRefresh,
		Payload:        payload,
		IdempotencyKey: fmt.Sprintf("%s:%s", number, kind),
		Delay:          delay,
	})
}

// DecodeRefresh parses a refresh task payload.
func DecodeRefresh(t Task) (RefreshPayload, error) {
	var p RefreshPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return RefreshPayload{}, fmt.Errorf("queue: decode refresh payload: %w", err)
	}
	if p.TrackingNumber == "" {
		return RefreshPayload{}, fmt.Errorf("queue: refresh payload missing tracking number")
	}
	return p, nil
}
