package chopin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/chopinframework/chopd/internal/applog"
	"github.com/chopinframework/chopd/internal/metrics"
	"github.com/google/uuid"
)

// CallbackURLHeader is the header chopd injects on every queued request so
// the target can report context entries back against the right
// RequestId.
const CallbackURLHeader = "x-callback-url"

// responseTracker records whether a response has started, so a panic
// inside handleQueued can still tell the client something went wrong
// instead of hanging the connection — and so the slot is always released
// regardless of how far the handler got.
type responseTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *responseTracker) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *responseTracker) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

// handleQueued handles an already-admitted mutating request: read body
// (capped), assign a RequestId, log the pre-forward entry, forward with
// an injected callback URL, then record and stream the response. The
// caller holds the serialization slot for the whole call and releases it
// via defer regardless of outcome.
func (p *Proxy) handleQueued(w http.ResponseWriter, r *http.Request) {
	tracker := &responseTracker{ResponseWriter: w}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			applog.Emit("error", "queue", map[string]string{"method": r.Method, "url": r.URL.String()},
				fmt.Sprintf("handler panic: %v", rec))
			if !tracker.wroteHeader {
				http.Error(tracker, "internal error", http.StatusInternalServerError)
			}
		}
	}()

	limited := http.MaxBytesReader(tracker, r.Body, p.cfg.QueuedBodyCap)
	body, err := io.ReadAll(limited)
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusInternalServerError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondJSON(tracker, status, map[string]string{"error": "could not read request body", "details": err.Error()})
		return
	}

	id := uuid.NewString()
	p.contexts.Create(id)

	entry := &LogEntry{
		RequestId: id,
		Method:    r.Method,
		URL:       r.URL.RequestURI(),
		Headers:   r.Header.Clone(),
		Body:      string(body),
		Timestamp: time.Now().UTC(),
	}
	p.logs.Append(entry)

	outURL := &url.URL{Scheme: p.target.Scheme, Host: p.target.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, outURL.String(), bytes.NewReader(body))
	if err != nil {
		p.logs.Fail(id, err.Error())
		respondJSON(tracker, http.StatusInternalServerError, map[string]string{"error": "could not build forward request", "details": err.Error()})
		return
	}
	outReq.Header = stripHopHeaders(r.Header)
	outReq.Header.Set(CallbackURLHeader, fmt.Sprintf("http://%s%s/report-context?requestId=%s", p.callbackHost(r), ControlPrefix, id))

	resp, err := p.transport.RoundTrip(outReq)
	if err != nil {
		dur := time.Since(start)
		p.logs.Fail(id, err.Error())
		metrics.ObserveForward(r.Method, http.StatusBadGateway, dur)
		applog.Emit("error", "queue", map[string]string{"request_id": id, "method": r.Method, "url": r.URL.String()}, "forward failed: "+err.Error())
		respondJSON(tracker, http.StatusBadGateway, map[string]string{"error": "Bad Gateway", "details": err.Error()})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		dur := time.Since(start)
		p.logs.Fail(id, err.Error())
		metrics.ObserveForward(r.Method, http.StatusBadGateway, dur)
		respondJSON(tracker, http.StatusBadGateway, map[string]string{"error": "Bad Gateway", "details": err.Error()})
		return
	}

	respHeaders := stripHopHeaders(resp.Header)
	p.logs.Complete(id, &Response{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    respHeaders,
		Body:       string(respBody),
	})

	dur := time.Since(start)
	metrics.ObserveForward(r.Method, resp.StatusCode, dur)
	applog.Emit("info", "queue", map[string]string{"request_id": id, "method": r.Method, "status": fmt.Sprintf("%d", resp.StatusCode)},
		fmt.Sprintf("queued %s %s -> %d in %s", r.Method, r.URL.RequestURI(), resp.StatusCode, dur))

	copyHeader(tracker.Header(), respHeaders)
	tracker.WriteHeader(resp.StatusCode)
	_, _ = tracker.Write(respBody)
}

// respondJSON is the queued-handler counterpart of controlRouter's
// respondJSON: a small helper so every error branch above produces the
// same {error, details} shape.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
