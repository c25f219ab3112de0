package output

import (
	"github.com/transitbeacon/beacon/device/internal/registry"
)

// Sink is the indicator hardware as seen by the renderer. Every call is
// idempotent and cheap enough to repeat on every tick.
//
// The panel shows one route at a time: lighting a color turns the other
// colors off, and lighting an arrow turns the other arrow off. AllOff clears
// colors and arrows but leaves the status indicator alone.
type Sink interface {
	SetArrow(dir registry.Direction, on bool)
	SetColor(c registry.Color, on bool)
	SetStatus(on bool)
	AllOff()
}

// Nop discards all output.
type Nop struct{}

func (Nop) SetArrow(registry.Direction, bool) {}
func (Nop) SetColor(registry.Color, bool)     {}
func (Nop) SetStatus(bool)                    {}
func (Nop) AllOff()                           {}

// Multi fans every call out to each sink in order.
type Multi []Sink

func (m Multi) SetArrow(dir registry.Direction, on bool) {
	for _, s := range m {
		s.SetArrow(dir, on)
	}
}

func (m Multi) SetColor(c registry.Color, on bool) {
	for _, s := range m {
		s.SetColor(c, on)
	}
}

func (m Multi) SetStatus(on bool) {
	for _, s := range m {
		s.SetStatus(on)
	}
}

func (m Multi) AllOff() {
	for _, s := range m {
		s.AllOff()
	}
}
