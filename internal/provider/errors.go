package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind is the fixed taxonomy every adapter failure is classified into.
type ErrorKind string

const (
	ErrKindRateLimit       ErrorKind = "RATE_LIMIT"
	ErrKindNotFound        ErrorKind = "NOT_FOUND"
	ErrKindTimeout         ErrorKind = "TIMEOUT"
	ErrKindInvalidResponse ErrorKind = "INVALID_RESPONSE"
	ErrKindAuth            ErrorKind = "AUTH_ERROR"
	ErrKindNetwork         ErrorKind = "NETWORK_ERROR"
)

// Permanent reports whether retrying the same request can ever succeed.
// Permanent failures terminate the adapter retry loop immediately.
func (k ErrorKind) Permanent() bool {
	return k == ErrKindAuth || k == ErrKindNotFound
}

// Transient reports whether the failure suggests the provider may recover
// shortly. The aggregator's total-failure classification keys off this.
func (k ErrorKind) Transient() bool {
	return k == ErrKindRateLimit || k == ErrKindNetwork
}

// CategorizedError is the structured form every provider failure is recovered
// into. It is safe to aggregate and log; it never wraps a panic.
type CategorizedError struct {
	Provider   string        `json:"provider"`
	Kind       ErrorKind     `json:"kind"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	StatusCode int           `json:"statusCode,omitempty"`
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Classify maps an HTTP outcome onto the fixed error taxonomy. Either resp or
// err must be set. defaultRetryAfter is used for 429 responses that carry no
// Retry-After header.
func Classify(providerName string, resp *http.Response, err error, defaultRetryAfter time.Duration) *CategorizedError {
	if resp != nil {
		return classifyStatus(providerName, resp, defaultRetryAfter)
	}
	if err == nil {
		return &CategorizedError{Provider: providerName, Kind: ErrKindNetwork, Message: "no response received"}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &CategorizedError{Provider: providerName, Kind: ErrKindTimeout, Message: "request timed out"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &CategorizedError{Provider: providerName, Kind: ErrKindTimeout, Message: "request timed out"}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &CategorizedError{Provider: providerName, Kind: ErrKindNetwork, Message: "dns lookup failed: " + dnsErr.Name}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &CategorizedError{Provider: providerName, Kind: ErrKindNetwork, Message: opErr.Error()}
	}
	return &CategorizedError{Provider: providerName, Kind: ErrKindNetwork, Message: err.Error()}
}

func classifyStatus(providerName string, resp *http.Response, defaultRetryAfter time.Duration) *CategorizedError {
	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &CategorizedError{
			Provider:   providerName,
			Kind:       ErrKindAuth,
			Message:    "authentication rejected by provider",
			StatusCode: status,
		}
	case status == http.StatusNotFound:
		return &CategorizedError{
			Provider:   providerName,
			Kind:       ErrKindNotFound,
			Message:    "tracking number not found",
			StatusCode: status,
		}
	case status == http.StatusTooManyRequests:
		return &CategorizedError{
			Provider:   providerName,
			Kind:       ErrKindRateLimit,
			Message:    "provider rate limit exceeded",
			RetryAfter: retryAfterHint(resp, defaultRetryAfter),
			StatusCode: status,
		}
	case status >= 400:
		return &CategorizedError{
			Provider:   providerName,
			Kind:       ErrKindInvalidResponse,
			Message:    "unexpected provider response: " + resp.Status,
			StatusCode: status,
		}
	}
	return &CategorizedError{
		Provider:   providerName,
		Kind:       ErrKindInvalidResponse,
		Message:    "unclassified provider response: " + resp.Status,
		StatusCode: status,
	}
}

func retryAfterHint(resp *http.Response, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return fallback
}

// ErrorResult wraps a CategorizedError into a RawResult with zero reliability.
func ErrorResult(cfg Config, trackingNumber string, cerr *CategorizedError) RawResult {
	return RawResult{
		Provider:       cfg.Name,
		TrackingNumber: trackingNumber,
		CapturedAt:     time.Now(),
		Status:         StatusError,
		Err:            cerr,
	}
}
