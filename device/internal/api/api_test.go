package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/transitbeacon/beacon/device/internal/api"
	"github.com/transitbeacon/beacon/device/internal/display"
	"github.com/transitbeacon/beacon/device/internal/metrics"
	"github.com/transitbeacon/beacon/device/internal/registry"
	"github.com/transitbeacon/beacon/device/internal/router"
	"github.com/transitbeacon/beacon/device/internal/security"
)

// --- test helpers -----------------------------------------------------------

func newSources(t *testing.T) metrics.Sources {
	t.Helper()
	reg, err := registry.New([]registry.Route{
		{Name: "12 North", Channel: "R12", Category: registry.CategoryBus, Color: registry.ColorGreen, Arrow: registry.ArrowLeft, Slot: 0},
		{Name: "77 Inbound", Channel: "R77", Category: registry.CategoryBus, Color: registry.ColorRed, Arrow: registry.ArrowRight, Slot: 1},
	}, display.SlotCount)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return metrics.Sources{
		Registry: reg,
		Router:   router.New(reg, "enable", "alert", 16),
		Renderer: display.NewRenderer(reg, nil, 0),
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- tests ------------------------------------------------------------------

func TestHealth(t *testing.T) {
	src := newSources(t)
	src.Router.Route("R77", []byte("240"))
	src.Router.Route("alert", []byte("ON"))
	h := api.New("stop-4021", src)
	h.SetBrokerCert(&security.CertStatus{Broker: "ssl://b:8883", Status: security.StatusValid, DaysLeft: 90})

	rr := get(t, h, "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Device != "stop-4021" || !resp.Enabled || !resp.Alert {
		t.Errorf("health = %+v", resp)
	}
	if resp.RouteCount != 2 || resp.KnownETAs != 1 {
		t.Errorf("counts = %d routes %d known, want 2/1", resp.RouteCount, resp.KnownETAs)
	}
	if resp.Broker == nil || resp.Broker.Status != security.StatusValid {
		t.Errorf("broker cert = %+v", resp.Broker)
	}
}

func TestHealth_NoBrokerCert(t *testing.T) {
	rr := get(t, api.New("d", newSources(t)), "/api/v1/health")
	var m map[string]interface{}
	decode(t, rr, &m)
	if _, ok := m["broker_cert"]; ok {
		t.Error("broker_cert present without a check")
	}
}

func TestListRoutes(t *testing.T) {
	src := newSources(t)
	src.Router.Route("R77", []byte("240"))
	rr := get(t, api.New("d", src), "/api/v1/routes")

	var routes []api.RouteResponse
	decode(t, rr, &routes)
	if len(routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(routes))
	}
	if routes[0].Channel != "R12" || routes[1].Channel != "R77" {
		t.Errorf("order = %q, %q; want slot order", routes[0].Channel, routes[1].Channel)
	}
	r77 := routes[1]
	if r77.ETA != 240 || r77.Policy != "blink(360ms)" || r77.UpdatedAt == "" {
		t.Errorf("R77 = %+v", r77)
	}
	if routes[0].Policy != "off" || routes[0].UpdatedAt != "" {
		t.Errorf("R12 = %+v, want off with no update time", routes[0])
	}
}

func TestGetRoute(t *testing.T) {
	src := newSources(t)
	h := api.New("d", src)

	rr := get(t, h, "/api/v1/routes/R12")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var rt api.RouteResponse
	decode(t, rr, &rt)
	if rt.Name != "12 North" || rt.Color != "green" || rt.Arrow != "left" || rt.Category != "bus" {
		t.Errorf("route = %+v", rt)
	}

	if rr := get(t, h, "/api/v1/routes/bogus"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rr.Code)
	}

	// Bare subtree path lists all routes.
	rr = get(t, h, "/api/v1/routes/")
	var all []api.RouteResponse
	decode(t, rr, &all)
	if len(all) != 2 {
		t.Errorf("bare subtree returned %d routes, want 2", len(all))
	}
}

func TestFrame(t *testing.T) {
	src := newSources(t)
	src.Router.Route("R77", []byte("30"))
	src.Renderer.Tick(time.UnixMilli(10000))

	rr := get(t, api.New("d", src), "/api/v1/frame")
	var resp api.FrameResponse
	decode(t, rr, &resp)
	if resp.GeneratedAt == "" {
		t.Error("generated_at missing")
	}
	f := resp.Frame
	if f.Channel != "R77" || !f.Lit || f.Color != registry.ColorRed || f.Policy != "blink(180ms)" {
		t.Errorf("frame = %+v", f)
	}
}

func TestMetrics(t *testing.T) {
	src := newSources(t)
	src.Router.Route("R77", []byte("240"))
	rr := get(t, api.New("d", src), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `beacon_route_eta_seconds{channel="R77",route="77 Inbound",slot="1"} 240`) {
		t.Errorf("metrics body missing R77 eta:\n%s", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := api.New("d", newSources(t))
	for _, path := range []string{"/api/v1/health", "/api/v1/routes", "/api/v1/routes/R12", "/api/v1/frame", "/metrics"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: status = %d, want 405", path, rr.Code)
		}
	}
}
