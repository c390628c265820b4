package audit

import (
	"net"
	"net/http"
	"strings"
)

// proxy headers checked in order; the first non-empty value wins.
var ipHeaders = []string{"X-Forwarded-For", "X-Real-IP"}

// ClientIP resolves the originating client address of a request, preferring
// proxy headers over the socket peer.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, header := range ipHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		if comma := strings.IndexByte(value, ','); comma >= 0 {
			value = value[:comma]
		}
		return strings.TrimSpace(value)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
