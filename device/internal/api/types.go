package api

import (
	"github.com/transitbeacon/beacon/device/internal/display"
	"github.com/transitbeacon/beacon/device/internal/security"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Device     string               `json:"device"`
	Enabled    bool                 `json:"enabled"`
	Alert      bool                 `json:"alert"`
	RouteCount int                  `json:"route_count"`
	KnownETAs  int                  `json:"known_etas"`
	Broker     *security.CertStatus `json:"broker_cert,omitempty"`
}

// RouteResponse is one entry in GET /api/v1/routes or
// GET /api/v1/routes/{channel}.
type RouteResponse struct {
	Name      string `json:"name"`
	Channel   string `json:"channel"`
	Category  string `json:"category"`
	Color     string `json:"color"`
	Arrow     string `json:"arrow"`
	Slot      int    `json:"slot"`
	ETA       int    `json:"eta"`
	Policy    string `json:"policy"`
	UpdatedAt string `json:"updated_at,omitempty"` // RFC3339
}

// FrameResponse is the payload for GET /api/v1/frame.
type FrameResponse struct {
	Frame       display.Frame `json:"frame"`
	GeneratedAt string        `json:"generated_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
