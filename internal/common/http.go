package common

import (
	"net"
	"net/http"
	"strings"
)

// forwardHeaders in resolution order. The first populated header wins.
var forwardHeaders = []string{"X-Forwarded-For", "X-Real-IP"}

// ClientIP resolves the originating client address, honouring proxy headers
// before falling back to the socket peer.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, header := range forwardHeaders {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			continue
		}
		// X-Forwarded-For may carry a chain; the leftmost entry is the client.
		if first, _, found := strings.Cut(value, ","); found {
			value = first
		}
		if ip := strings.TrimSpace(value); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
