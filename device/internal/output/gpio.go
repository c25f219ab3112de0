package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/transitbeacon/beacon/device/internal/config"
	"github.com/transitbeacon/beacon/device/internal/registry"
)

// pin is the subset of rpio.Pin the sink drives. Abstracted so tests can
// record writes without /dev/gpiomem.
type pin interface {
	High()
	Low()
}

// GPIO drives one output pin per color, one per arrow and one for status.
// Pin writes are cached so repeating a call on every tick costs nothing.
//
// All exported methods are safe for concurrent use.
type GPIO struct {
	mu      sync.Mutex
	colors  map[registry.Color]pin
	arrows  map[registry.Direction]pin
	status  pin
	levels  map[pin]bool
	closeFn func() error
}

// NewGPIO maps the GPIO register block and configures every pin in cfg as an
// output, initially low. Close releases the mapping.
func NewGPIO(cfg config.PinConfig) (*GPIO, error) {
	if err := config.ValidatePins(cfg); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("output: open gpio: %w", err)
	}
	out := func(n int) pin {
		p := rpio.Pin(uint8(n))
		p.Output()
		return p
	}

	colors := make(map[registry.Color]pin, len(cfg.Colors))
	for c, n := range cfg.Colors {
		colors[registry.Color(c)] = out(n)
	}
	arrows := make(map[registry.Direction]pin, len(cfg.Arrows))
	for a, n := range cfg.Arrows {
		arrows[registry.Direction(a)] = out(n)
	}

	g := newGPIO(colors, arrows, out(cfg.Status), rpio.Close)
	slog.Info("output: gpio ready",
		"colors", len(colors), "arrows", len(arrows), "status_pin", cfg.Status)
	return g, nil
}

func newGPIO(colors map[registry.Color]pin, arrows map[registry.Direction]pin, status pin, closeFn func() error) *GPIO {
	g := &GPIO{
		colors:  colors,
		arrows:  arrows,
		status:  status,
		levels:  make(map[pin]bool),
		closeFn: closeFn,
	}
	for _, p := range colors {
		g.force(p, false)
	}
	for _, p := range arrows {
		g.force(p, false)
	}
	g.force(status, false)
	return g
}

func (g *GPIO) SetColor(c registry.Color, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !on {
		if p, ok := g.colors[c]; ok {
			g.write(p, false)
		}
		return
	}
	for k, p := range g.colors {
		g.write(p, k == c)
	}
}

// SetArrow shows dir's arrow at level on. The other arrow is always lowered,
// so a route whose arrow is dark never inherits the previous route's arrow.
func (g *GPIO) SetArrow(dir registry.Direction, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, p := range g.arrows {
		g.write(p, on && k == dir)
	}
}

func (g *GPIO) SetStatus(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.write(g.status, on)
}

func (g *GPIO) AllOff() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.colors {
		g.write(p, false)
	}
	for _, p := range g.arrows {
		g.write(p, false)
	}
}

// Close turns every pin off and releases the GPIO mapping.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.colors {
		g.write(p, false)
	}
	for _, p := range g.arrows {
		g.write(p, false)
	}
	g.write(g.status, false)
	if g.closeFn == nil {
		return nil
	}
	return g.closeFn()
}

// write sets p to level unless it is already there. Caller holds mu.
func (g *GPIO) write(p pin, level bool) {
	if cur, ok := g.levels[p]; ok && cur == level {
		return
	}
	g.force(p, level)
}

func (g *GPIO) force(p pin, level bool) {
	if level {
		p.High()
	} else {
		p.Low()
	}
	g.levels[p] = level
}
