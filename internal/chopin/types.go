// Package chopin implements the core request pipeline of the chopd local
// development proxy: identity resolution, the built-in /_chopin control
// routes, the context store, the single-slot serialization queue, and the
// queued-request / pass-through forwarders.
package chopin

import (
	"net/http"
	"regexp"
	"time"
)

// addressPattern matches a lowercase 20-byte hex-encoded account identifier.
var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// IsValidAddress reports whether s has the shape of an Address.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Response captures the target's reply to a queued request, buffered in
// full so it can be recorded on the LogEntry before being streamed to the
// client.
type Response struct {
	Status     int         `json:"status"`
	StatusText string      `json:"statusText"`
	Headers    http.Header `json:"headers"`
	Body       string      `json:"body"`
}

// LogEntry records one mutating request end to end: the request as it was
// received (after identity injection), and, once the target has answered,
// either a Response or a ResponseError. Entries are append-only; only the
// response fields are filled in after creation.
type LogEntry struct {
	RequestId     string      `json:"requestId"`
	Method        string      `json:"method"`
	URL           string      `json:"url"`
	Headers       http.Header `json:"headers"`
	Body          string      `json:"body"`
	Timestamp     time.Time   `json:"timestamp"`
	Response      *Response   `json:"response,omitempty"`
	ResponseError string      `json:"responseError,omitempty"`
	// Contexts is populated at read time from the ContextStore; it is never
	// set directly by the handler that creates the entry.
	Contexts []string `json:"contexts"`
}

// MutatingMethods lists the HTTP methods that are subject to serialization.
var MutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// IsMutating reports whether method is one of the serialized verbs.
func IsMutating(method string) bool {
	return MutatingMethods[method]
}

// IsUpgradeRequest reports whether r is an HTTP-Upgrade (e.g. WebSocket)
// handshake, which always bypasses the serialization queue regardless of
// method.
func IsUpgradeRequest(r *http.Request) bool {
	return headerContainsToken(r.Header, "Connection", "upgrade")
}
