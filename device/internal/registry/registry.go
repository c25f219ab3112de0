package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/transitbeacon/beacon/device/internal/config"
)

// Category is informational only; it never affects rendering.
type Category string

const (
	CategoryBus  Category = "bus"
	CategoryRail Category = "rail"
)

// Color is one of the panel's fixed indicator colors.
type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
	ColorWhite  Color = "white"
)

// Direction is the arrow a route lights.
type Direction string

const (
	ArrowLeft  Direction = "left"
	ArrowRight Direction = "right"
)

// Route is one transit line/direction tracked by the device. Everything but
// ETA and UpdatedAt is fixed at construction.
type Route struct {
	Name     string
	Channel  string
	Category Category
	Color    Color
	Arrow    Direction
	Slot     int

	// ETA is the estimated seconds until arrival. Zero or negative means
	// unknown.
	ETA int

	// UpdatedAt is when ETA was last written. Zero until the first message.
	UpdatedAt time.Time
}

// View is a consistent read of the system flags and the route owning one slot.
type View struct {
	Enabled bool
	Alert   bool
	Route   Route
	Found   bool
}

// Snapshot is a consistent copy of the whole registry.
type Snapshot struct {
	Enabled bool
	Alert   bool
	Routes  []Route // ordered by slot
}

// Registry owns the route table and the two process-wide flags. It is the
// single mutable state shared by the message router (writer) and the
// renderer and diagnostics (readers).
//
// All exported methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	routes    []Route
	byChannel map[string]int
	bySlot    map[int]int
	enabled   bool
	alert     bool
}

// New builds a Registry from routes. Channel keys must be unique and slots
// must be unique and fall in [0, slotCount). The system starts enabled with
// the alert off and every ETA unknown.
func New(routes []Route, slotCount int) (*Registry, error) {
	r := &Registry{
		routes:    make([]Route, 0, len(routes)),
		byChannel: make(map[string]int, len(routes)),
		bySlot:    make(map[int]int, len(routes)),
		enabled:   true,
	}
	for _, rt := range routes {
		if rt.Channel == "" {
			return nil, fmt.Errorf("registry: route %q: empty channel key", rt.Name)
		}
		if _, dup := r.byChannel[rt.Channel]; dup {
			return nil, fmt.Errorf("registry: duplicate channel key %q", rt.Channel)
		}
		if rt.Slot < 0 || rt.Slot >= slotCount {
			return nil, fmt.Errorf("registry: route %q: slot %d out of range 0..%d", rt.Name, rt.Slot, slotCount-1)
		}
		if i, dup := r.bySlot[rt.Slot]; dup {
			return nil, fmt.Errorf("registry: slot %d used by both %q and %q", rt.Slot, r.routes[i].Name, rt.Name)
		}
		rt.ETA = 0
		rt.UpdatedAt = time.Time{}
		r.byChannel[rt.Channel] = len(r.routes)
		r.bySlot[rt.Slot] = len(r.routes)
		r.routes = append(r.routes, rt)
	}
	return r, nil
}

// FromConfig builds a Registry from the configured route table.
func FromConfig(routes []config.Route) (*Registry, error) {
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		out = append(out, Route{
			Name:     r.Name,
			Channel:  r.Channel,
			Category: Category(r.Category),
			Color:    Color(r.Color),
			Arrow:    Direction(r.Arrow),
			Slot:     r.Slot,
		})
	}
	return New(out, config.SlotCount)
}

// SetEnabled sets the master enable flag.
func (r *Registry) SetEnabled(on bool) {
	r.mu.Lock()
	r.enabled = on
	r.mu.Unlock()
}

// SetAlert sets the alert flag.
func (r *Registry) SetAlert(on bool) {
	r.mu.Lock()
	r.alert = on
	r.mu.Unlock()
}

// SetETA overwrites the ETA of the route with the given channel key.
// It returns false, changing nothing, when no route matches.
func (r *Registry) SetETA(channel string, eta int, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byChannel[channel]
	if !ok {
		return false
	}
	r.routes[i].ETA = eta
	r.routes[i].UpdatedAt = at
	return true
}

// Has reports whether a route uses the channel key.
func (r *Registry) Has(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byChannel[channel]
	return ok
}

// Get returns a copy of the route with the given channel key.
func (r *Registry) Get(channel string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byChannel[channel]
	if !ok {
		return Route{}, false
	}
	return r.routes[i], true
}

// ViewSlot returns the flags and the route owning slot under one lock.
func (r *Registry) ViewSlot(slot int) View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v := View{Enabled: r.enabled, Alert: r.alert}
	if i, ok := r.bySlot[slot]; ok {
		v.Route = r.routes[i]
		v.Found = true
	}
	return v
}

// Snapshot returns a copy of the flags and all routes ordered by slot.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		Enabled: r.enabled,
		Alert:   r.alert,
		Routes:  make([]Route, len(r.routes)),
	}
	copy(out.Routes, r.routes)
	sort.Slice(out.Routes, func(i, j int) bool { return out.Routes[i].Slot < out.Routes[j].Slot })
	return out
}

// Channels returns every route channel key, ordered by slot.
func (r *Registry) Channels() []string {
	snap := r.Snapshot()
	out := make([]string, len(snap.Routes))
	for i, rt := range snap.Routes {
		out[i] = rt.Channel
	}
	return out
}
