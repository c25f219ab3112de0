package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/transitbeacon/beacon/device/internal/display"
	"github.com/transitbeacon/beacon/device/internal/metrics"
	"github.com/transitbeacon/beacon/device/internal/registry"
	"github.com/transitbeacon/beacon/device/internal/security"
)

// Handler serves the device's read-only diagnostics endpoints. Nothing here
// mutates device state; control flows only through the message channels.
type Handler struct {
	device  string
	sources metrics.Sources
	mux     *http.ServeMux
	now     func() time.Time // injectable for deterministic tests

	certMu sync.RWMutex
	cert   *security.CertStatus
}

// New creates a Handler reading from src and registers all routes.
func New(device string, src metrics.Sources) *Handler {
	h := &Handler{device: device, sources: src, mux: http.NewServeMux(), now: time.Now}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/routes", h.listRoutes)
	h.mux.HandleFunc("/api/v1/routes/", h.getRoute) // subtree, extracts {channel}
	h.mux.HandleFunc("/api/v1/frame", h.frame)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// SetBrokerCert records the latest broker certificate check for /health.
func (h *Handler) SetBrokerCert(cs *security.CertStatus) {
	h.certMu.Lock()
	h.cert = cs
	h.certMu.Unlock()
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: flags, route counts, broker cert.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.sources.Registry.Snapshot()
	resp := HealthResponse{
		Device:     h.device,
		Enabled:    snap.Enabled,
		Alert:      snap.Alert,
		RouteCount: len(snap.Routes),
	}
	for _, rt := range snap.Routes {
		if rt.ETA > 0 {
			resp.KnownETAs++
		}
	}
	h.certMu.RLock()
	resp.Broker = h.cert
	h.certMu.RUnlock()

	jsonResp(w, http.StatusOK, resp)
}

// listRoutes returns GET /api/v1/routes: every route ordered by slot.
func (h *Handler) listRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.sources.Registry.Snapshot()
	out := make([]RouteResponse, 0, len(snap.Routes))
	for _, rt := range snap.Routes {
		out = append(out, toRouteResponse(rt))
	}
	jsonResp(w, http.StatusOK, out)
}

// getRoute returns GET /api/v1/routes/{channel}: a single route.
func (h *Handler) getRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	channel := strings.TrimPrefix(r.URL.Path, "/api/v1/routes/")
	if channel == "" {
		h.listRoutes(w, r)
		return
	}

	rt, ok := h.sources.Registry.Get(channel)
	if !ok {
		jsonErr(w, http.StatusNotFound, "route not found")
		return
	}
	jsonResp(w, http.StatusOK, toRouteResponse(rt))
}

// frame returns GET /api/v1/frame: the last rendered frame.
func (h *Handler) frame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildFrame(h.sources.Renderer, h.now()))
}

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", metrics.ContentType())
	if err := metrics.WriteText(w, metrics.Gather(h.sources)); err != nil {
		slog.Error("api: write metrics", "err", err)
	}
}

// --- helpers ----------------------------------------------------------------

// BuildFrame wraps the renderer's last frame for JSON output. It is shared
// with the WebSocket hub.
func BuildFrame(rend *display.Renderer, now time.Time) FrameResponse {
	var f display.Frame
	if rend != nil {
		f = rend.Last()
	}
	return FrameResponse{Frame: f, GeneratedAt: now.UTC().Format(time.RFC3339)}
}

func toRouteResponse(rt registry.Route) RouteResponse {
	out := RouteResponse{
		Name:     rt.Name,
		Channel:  rt.Channel,
		Category: string(rt.Category),
		Color:    string(rt.Color),
		Arrow:    string(rt.Arrow),
		Slot:     rt.Slot,
		ETA:      rt.ETA,
		Policy:   display.Classify(rt.ETA).String(),
	}
	if !rt.UpdatedAt.IsZero() {
		out.UpdatedAt = rt.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
