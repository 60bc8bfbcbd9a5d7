package chopin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chopinframework/chopd/internal/applog"
	"github.com/chopinframework/chopd/internal/metrics"
)

// ControlPrefix is the path prefix that is never queued and never
// forwarded to the target.
const ControlPrefix = "/_chopin"

// ReportContextBodyCap is the default size cap, in bytes, for a single
// /_chopin/report-context body.
const ReportContextBodyCap = 1 << 20

// IsControlPath reports whether path is routed to the control router
// rather than forwarded.
func IsControlPath(path string) bool {
	return path == ControlPrefix || strings.HasPrefix(path, ControlPrefix+"/")
}

// controlRouter dispatches the /_chopin/* namespace. It holds no state of
// its own beyond references to the proxy's shared store — every handler
// here is safe to call concurrently with the serialization queue; the
// queue does not gate report-context calls.
type controlRouter struct {
	contexts *ContextStore
	logs     *LogStore
}

func newControlRouter(contexts *ContextStore, logs *LogStore) *controlRouter {
	return &controlRouter{contexts: contexts, logs: logs}
}

func (c *controlRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, ControlPrefix)
	switch path {
	case "/login":
		c.login(w, r)
	case "/logout":
		c.logout(w, r)
	case "/me":
		c.me(w, r)
	case "/status":
		c.status(w, r)
	case "/logs":
		c.logsHandler(w, r)
	case "/report-context":
		c.reportContext(w, r)
	default:
		c.respondJSON(w, "unknown", http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

// respondJSON writes a JSON body and records a metric. Every control
// handler except logout (which redirects and records its metric itself)
// funnels its response through here; logging is left to the handlers.
func (c *controlRouter) respondJSON(w http.ResponseWriter, route string, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
	metrics.ObserveControlRequest(route, status)
}

func (c *controlRouter) login(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("as")))
	if !IsValidAddress(address) {
		address = RandomAddress()
	}
	token, err := MintToken(address)
	if err != nil {
		applog.Emit("error", "control", map[string]string{"route": "login"}, "failed to mint token: "+err.Error())
		c.respondJSON(w, "login", http.StatusInternalServerError, map[string]string{"error": "could not mint token"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     DevAddressCookie,
		Value:    address,
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
	applog.Emit("info", "control", map[string]string{"route": "login", "address": address}, "login: "+address)
	c.respondJSON(w, "login", http.StatusOK, map[string]any{
		"success": true,
		"address": address,
		"token":   token,
	})
}

func (c *controlRouter) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     DevAddressCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
	applog.Emit("info", "control", map[string]string{"route": "logout"}, "logout")
	metrics.ObserveControlRequest("logout", http.StatusFound)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (c *controlRouter) me(w http.ResponseWriter, r *http.Request) {
	address, ok := ResolveIdentity(r)
	var body map[string]any
	if ok {
		body = map[string]any{"address": address}
	} else {
		body = map[string]any{"address": nil}
	}
	c.respondJSON(w, "me", http.StatusOK, body)
}

func (c *controlRouter) status(w http.ResponseWriter, r *http.Request) {
	c.respondJSON(w, "status", http.StatusOK, map[string]string{"status": "ok"})
}

func (c *controlRouter) logsHandler(w http.ResponseWriter, r *http.Request) {
	c.respondJSON(w, "logs", http.StatusOK, c.logs.Snapshot(c.contexts))
}

func (c *controlRouter) reportContext(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("requestId")
	if id == "" {
		c.respondJSON(w, "report-context", http.StatusBadRequest, map[string]string{"error": "requestId is required"})
		return
	}
	if !c.contexts.Exists(id) {
		c.respondJSON(w, "report-context", http.StatusNotFound, map[string]string{"error": "unknown requestId"})
		return
	}

	limited := http.MaxBytesReader(w, r.Body, ReportContextBodyCap)
	body, err := readAllOrOversize(limited)
	if err != nil {
		c.respondJSON(w, "report-context", http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
		return
	}

	c.contexts.Append(id, body)
	metrics.ContextReportInc()
	applog.Emit("debug", "control", map[string]string{"route": "report-context", "request_id": id}, "context appended")
	c.respondJSON(w, "report-context", http.StatusOK, map[string]bool{"success": true})
}
