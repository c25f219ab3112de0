package display

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/transitbeacon/beacon/device/internal/output"
	"github.com/transitbeacon/beacon/device/internal/registry"
)

// Frame is everything the panel shows at one instant. It is recomputed from
// the registry on every tick; nothing carries over between frames.
type Frame struct {
	At      time.Time `json:"at"`
	Enabled bool      `json:"enabled"`
	Slot    int       `json:"slot"`

	// Route fields are empty when no route owns the slot.
	Route   string `json:"route,omitempty"`
	Channel string `json:"channel,omitempty"`
	ETA     int    `json:"eta"`
	Policy  string `json:"policy"`

	// Lit is false when route indicators are all off.
	Lit     bool               `json:"lit"`
	Color   registry.Color     `json:"color,omitempty"`
	Arrow   registry.Direction `json:"arrow,omitempty"`
	ArrowOn bool               `json:"arrow_on"`

	Status bool `json:"status"`
}

// Renderer turns registry state into indicator output. It only reads the
// registry.
type Renderer struct {
	reg        *registry.Registry
	sink       output.Sink
	staleAfter time.Duration

	mu    sync.RWMutex
	last  Frame
	ticks atomic.Uint64
}

// NewRenderer returns a Renderer drawing reg onto sink. A positive staleAfter
// blanks routes whose ETA is older than that; zero shows the last ETA forever.
func NewRenderer(reg *registry.Registry, sink output.Sink, staleAfter time.Duration) *Renderer {
	if sink == nil {
		sink = output.Nop{}
	}
	return &Renderer{reg: reg, sink: sink, staleAfter: staleAfter}
}

// Compose computes the frame for now without touching the sink.
func (r *Renderer) Compose(now time.Time) Frame {
	ms := now.UnixMilli()
	slot := ActiveSlot(ms)
	v := r.reg.ViewSlot(slot)

	f := Frame{
		At:      now,
		Enabled: v.Enabled,
		Slot:    slot,
		Policy:  Off.String(),
		Status:  v.Alert,
	}
	if !v.Enabled || !v.Found {
		return f
	}

	eta := v.Route.ETA
	if r.stale(v.Route, now) {
		eta = 0
	}
	f.Route = v.Route.Name
	f.Channel = v.Route.Channel
	f.ETA = eta
	if eta <= 0 {
		return f
	}

	p := Classify(eta)
	f.Policy = p.String()
	f.Lit = true
	f.Color = v.Route.Color
	f.Arrow = v.Route.Arrow
	f.ArrowOn = p.IsOn(ms)
	return f
}

// Tick composes the frame for now, writes it to the sink and remembers it.
func (r *Renderer) Tick(now time.Time) Frame {
	f := r.Compose(now)
	Apply(f, r.sink)

	r.mu.Lock()
	r.last = f
	r.mu.Unlock()
	r.ticks.Add(1)
	return f
}

// Last returns the most recently rendered frame.
func (r *Renderer) Last() Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Ticks returns how many frames have been rendered.
func (r *Renderer) Ticks() uint64 {
	return r.ticks.Load()
}

// Apply writes f to s. The status indicator is written on every frame,
// independently of the route indicators.
func Apply(f Frame, s output.Sink) {
	if f.Lit {
		s.SetColor(f.Color, true)
		s.SetArrow(f.Arrow, f.ArrowOn)
	} else {
		s.AllOff()
	}
	s.SetStatus(f.Status)
}

func (r *Renderer) stale(rt registry.Route, now time.Time) bool {
	if r.staleAfter <= 0 || rt.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(rt.UpdatedAt) >= r.staleAfter
}
