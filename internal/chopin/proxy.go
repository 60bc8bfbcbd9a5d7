package chopin

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/chopinframework/chopd/internal/applog"
)

// Config controls the few knobs chopd exposes beyond the target address
// itself.
type Config struct {
	// ProxyPort is this process's own listening port, used to build the
	// fallback x-callback-url host when the incoming request carries no
	// Host header worth trusting.
	ProxyPort int
	// QueuedBodyCap bounds how much of a mutating request's body chopd
	// will buffer before forwarding it. Default 2 MiB.
	QueuedBodyCap int64
}

const defaultQueuedBodyCap = 2 << 20 // 2 MiB

// Proxy is the top-level handler wired up by cmd/chopd: it serializes
// mutating traffic through exactly one target and correlates its
// side-channel callbacks.
type Proxy struct {
	target    *url.URL
	transport *http.Transport
	queue     *SlotQueue
	contexts  *ContextStore
	logs      *LogStore
	control   *controlRouter
	cfg       Config
}

// New builds a Proxy forwarding to target. The transport keeps connections
// alive and reuses them across serialized mutating requests — a
// reasonable default for talking to a single local development server.
func New(target *url.URL, cfg Config) *Proxy {
	if cfg.QueuedBodyCap <= 0 {
		cfg.QueuedBodyCap = defaultQueuedBodyCap
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     false, // the target is always plain HTTP on localhost
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	contexts := NewContextStore()
	logs := NewLogStore()
	return &Proxy{
		target:    target,
		transport: transport,
		queue:     NewSlotQueue(),
		contexts:  contexts,
		logs:      logs,
		control:   newControlRouter(contexts, logs),
		cfg:       cfg,
	}
}

// ServeHTTP dispatches the control router first, then resolves identity,
// then routes to the queued-request handler for mutating traffic or plain
// pass-through for everything else including WebSocket upgrades.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if IsControlPath(r.URL.Path) {
		p.control.ServeHTTP(w, r)
		return
	}

	InjectIdentity(r)

	if IsUpgradeRequest(r) {
		p.passthroughUpgrade(w, r)
		return
	}

	if IsMutating(r.Method) {
		release := p.queue.Acquire()
		defer release()
		p.handleQueued(w, r)
		return
	}

	p.passthrough(w, r)
}

// rewriteForTarget rewrites outReq in place to point at the target and
// strips hop-by-hop headers, preserving Connection/Upgrade when the
// request is itself an upgrade handshake (those two headers ARE the
// handshake, not hop-by-hop noise to discard).
func (p *Proxy) rewriteForTarget(outReq *http.Request, preserveConnection bool) {
	outReq.URL.Scheme = p.target.Scheme
	outReq.URL.Host = p.target.Host
	outReq.Host = p.target.Host

	for _, h := range hopHeaders {
		if preserveConnection && (h == "Connection") {
			continue
		}
		outReq.Header.Del(h)
	}
}

// callbackHost returns the host the target should use to call back into
// this proxy: the incoming Host header, falling back to
// localhost:<proxyPort> if that header is empty (e.g. an HTTP/1.0 client).
func (p *Proxy) callbackHost(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	return fmt.Sprintf("localhost:%d", p.cfg.ProxyPort)
}

// passthrough forwards a non-mutating, non-upgrade request without
// queueing, logging, or buffering the response body.
func (p *Proxy) passthrough(w http.ResponseWriter, r *http.Request) {
	outReq := r.Clone(r.Context())
	p.rewriteForTarget(outReq, false)

	resp, err := p.transport.RoundTrip(outReq)
	if err != nil {
		applog.Emit("error", "passthrough", map[string]string{"method": r.Method, "url": r.URL.String()}, "forward failed: "+err.Error())
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), stripHopHeaders(resp.Header))
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// passthroughUpgrade relays an HTTP-Upgrade handshake and the subsequent
// duplex byte stream verbatim, without buffering frames: the client
// connection is hijacked, a fresh connection is opened to the target, the
// (rewritten) request line/headers are replayed onto it, and then both
// directions are copied until either side closes.
func (p *Proxy) passthroughUpgrade(w http.ResponseWriter, r *http.Request) {
	targetConn, err := net.DialTimeout("tcp", p.target.Host, 10*time.Second)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer targetConn.Close()

	outReq := r.Clone(r.Context())
	p.rewriteForTarget(outReq, true)

	if err := outReq.Write(targetConn); err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "upgrade not supported by this connection", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		return
	}
	defer clientConn.Close()

	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(targetConn, clientConn); done <- struct{}{} }()
	go func() { _, _ = io.Copy(clientConn, targetConn); done <- struct{}{} }()
	<-done
}
