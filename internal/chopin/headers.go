package chopin

import (
	"net/http"
	"strings"
)

// hopHeaders lists the headers that must never be forwarded verbatim in
// either direction; each hop is expected to set its own. Connection is
// conditionally preserved by rewriteForTarget during an Upgrade handshake,
// since chopd relays that handshake at the hijack boundary itself.
var hopHeaders = []string{
	"Host",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
}

// copyHeader appends every value of src into dst without clobbering
// existing entries under the same key.
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// stripHopHeaders returns a shallow copy of h with hop-by-hop headers
// removed, leaving h itself untouched.
func stripHopHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	copyHeader(out, h)
	for _, hop := range hopHeaders {
		out.Del(hop)
	}
	return out
}

// headerContainsToken reports whether the comma-separated header named key
// contains token, case-insensitively, as one of its tokens (used for the
// Connection: Upgrade check).
func headerContainsToken(h http.Header, key, token string) bool {
	for _, raw := range h.Values(key) {
		for _, part := range strings.Split(raw, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
