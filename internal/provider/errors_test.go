package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func respWithStatus(status int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Status: http.StatusText(status), Header: header}
}

func TestClassifyHTTPStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, ErrKindAuth},
		{"forbidden", http.StatusForbidden, ErrKindAuth},
		{"not found", http.StatusNotFound, ErrKindNotFound},
		{"too many requests", http.StatusTooManyRequests, ErrKindRateLimit},
		{"unprocessable", http.StatusUnprocessableEntity, ErrKindInvalidResponse},
		{"bad gateway", http.StatusBadGateway, ErrKindInvalidResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cerr := Classify("maersk", respWithStatus(tc.status, nil), nil, time.Second)
			require.Equal(t, tc.want, cerr.Kind)
			require.Equal(t, "maersk", cerr.Provider)
			require.Equal(t, tc.status, cerr.StatusCode)
		})
	}
}

func TestClassifyRetryAfterHint(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("Retry-After", "120")
	cerr := Classify("msc", respWithStatus(http.StatusTooManyRequests, header), nil, 5*time.Second)
	require.Equal(t, 2*time.Minute, cerr.RetryAfter)

	// No header falls back to the provider default.
	cerr = Classify("msc", respWithStatus(http.StatusTooManyRequests, nil), nil, 5*time.Second)
	require.Equal(t, 5*time.Second, cerr.RetryAfter)
}

func TestClassifyTransportErrors(t *testing.T) {
	t.Parallel()

	cerr := Classify("cosco", nil, context.DeadlineExceeded, 0)
	require.Equal(t, ErrKindTimeout, cerr.Kind)

	cerr = Classify("cosco", nil, &net.DNSError{Name: "api.coscoshipping.com", IsNotFound: true}, 0)
	require.Equal(t, ErrKindNetwork, cerr.Kind)

	cerr = Classify("cosco", nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}, 0)
	require.Equal(t, ErrKindNetwork, cerr.Kind)
}

func TestErrorKindFamilies(t *testing.T) {
	t.Parallel()

	require.True(t, ErrKindAuth.Permanent())
	require.True(t, ErrKindNotFound.Permanent())
	require.False(t, ErrKindTimeout.Permanent())

	require.True(t, ErrKindRateLimit.Transient())
	require.True(t, ErrKindNetwork.Transient())
	require.False(t, ErrKindNotFound.Transient())
}
