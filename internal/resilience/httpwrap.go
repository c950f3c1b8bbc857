package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with bounded retry, per-call timeout and
// circuit-breaker logic. Responses are returned to the caller for
// classification; the wrapper only decides whether another attempt is worth
// making.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	// RetryableStatus reports whether a response status warrants another
	// attempt. Defaults to 408, 429 and all 5xx. Permanent statuses
	// (auth, not-found) must return false so they terminate immediately.
	RetryableStatus func(int) bool
}

// Do executes the request applying retry semantics. The final response or
// transport error is returned as-is so the caller can classify it. When the
// breaker is open ErrOpenCircuit is returned without touching the network.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		// default to a closed breaker that never trips
		breaker = NewBreaker(1, 1, time.Second)
	}
	maxAttempts := cl.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	baseBackoff := cl.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}
	retryable := cl.RetryableStatus
	if retryable == nil {
		retryable = defaultRetryableStatus
	}

	var (
		lastResp *http.Response
		lastErr  error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !breaker.Allow(ctx) {
			if lastResp != nil || lastErr != nil {
				break
			}
			return nil, ErrOpenCircuit
		}
		resp, err := cl.doOnce(ctx, req.Clone(ctx))
		if err == nil && resp.StatusCode < 400 {
			breaker.Report(ctx, true)
			drainAndClose(lastResp)
			return resp, nil
		}
		if err == nil {
			// A 4xx below 500 counts against the provider only when it
			// signals degradation, not a bad tracking number.
			breaker.Report(ctx, resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests)
			if !retryable(resp.StatusCode) {
				drainAndClose(lastResp)
				return resp, nil
			}
			drainAndClose(lastResp)
			lastResp, lastErr = resp, nil
		} else {
			breaker.Report(ctx, false)
			lastResp, lastErr = nil, err
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
		}
		if attempt == maxAttempts {
			break
		}
		sleepFor := Backoff(baseBackoff, attempt, cl.MaxBackoff, cl.Jitter)
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return lastResp, lastErr
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var callCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	// The cancel is tied to the body: callers must close it, which releases
	// the per-attempt context resources.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func defaultRetryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout:
		return true
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_ = resp.Body.Close()
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
